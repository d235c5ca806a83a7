// Package export renders posts to PDF for offline reading.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const FormatPDF Format = "pdf"

// Request contains parameters for an export operation
type Request struct {
	Slug            string
	Format          Format
	IncludeComments bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// Post is the post content handed to the renderer.
type Post struct {
	Title     string
	Excerpt   string
	Content   string
	Author    string
	Tags      []string
	UpdatedAt time.Time
}

// Comment is one node of the comment tree handed to the renderer.
type Comment struct {
	Author    string
	Content   string
	CreatedAt time.Time
	Replies   []Comment
}

var (
	// ErrContentUnavailable indicates post content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
