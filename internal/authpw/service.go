// Package authpw provides email/password authentication.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gazette/api/internal/rbac"
	"gazette/api/internal/store"
	"gazette/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when email or password does not match.
// Callers should not distinguish between an unknown email and a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrEmailTaken is returned when signing up with an email that already has an account.
var ErrEmailTaken = errors.New("email already registered")

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

// Service provides email/password authentication
type Service struct {
	store UserStore
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Name     string
	Email    string
	Password string
	Avatar   string
}

// Validate checks the sign-up parameters and returns a user-facing error
// when any of them is unacceptable.
func (r SignUpRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" || r.Email == "" || r.Password == "" {
		return errors.New("name, email, and password are required")
	}
	if len(strings.TrimSpace(r.Name)) < 2 {
		return errors.New("name must be at least 2 characters")
	}
	if !strings.Contains(r.Email, "@") {
		return errors.New("invalid email address")
	}
	if len(r.Password) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	return nil
}

// SignUp creates a new user account. New accounts always start with the
// USER role; promotion to EDITOR or ADMIN happens through user management.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	if err := req.Validate(); err != nil {
		return store.User{}, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Avatar:       req.Avatar,
		PasswordHash: string(hash),
		Role:         string(rbac.RoleUser),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignIn authenticates a user by email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if user.PasswordHash == "" {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// HashPassword hashes a plaintext password for storage. Used by user
// management when an admin sets a password directly.
func HashPassword(password string) (string, error) {
	if len(password) < 6 {
		return "", errors.New("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
