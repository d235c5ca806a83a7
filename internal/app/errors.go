package app

// DomainError is a business rule violation that maps onto a specific
// HTTP status and machine-readable code in the response body.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}
