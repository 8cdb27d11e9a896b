package model

import (
	"errors"
	"fmt"
)

// Domain errors. Callers match them with errors.Is.
var (
	ErrUserExists       = errors.New("user already exists")
	ErrUserNotFound     = errors.New("user not found")
	ErrWrongPassword    = errors.New("wrong password")
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidUsername  = errors.New("invalid username")
	ErrInvalidAvatar    = errors.New("invalid avatar file type")
	ErrAvatarTooLarge   = errors.New("avatar file too large")
	ErrStoreUnavailable = errors.New("user store unavailable")
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the JSON endpoints.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
