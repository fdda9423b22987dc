package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a qnadeck error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrDeclined       ErrorCode = "DECLINED"        // user said no to a confirmation prompt
	ErrTransport      ErrorCode = "TRANSPORT"       // 502
	ErrUpstream       ErrorCode = "UPSTREAM"        // backend status passed through
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// maxBodyInMessage caps how much of a backend error body ends up in a message.
const maxBodyInMessage = 200

// QnaError represents a structured error with code, status, and details.
type QnaError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *QnaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *QnaError {
	return &QnaError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing question or category.
func NewNotFound(identifier string) *QnaError {
	return &QnaError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *QnaError {
	return &QnaError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewDeclined reports that the user declined a confirmation prompt.
// Nothing was sent to the backend.
func NewDeclined(prompt string) *QnaError {
	return &QnaError{
		Code:    ErrDeclined,
		Message: "cancelled: " + prompt,
		Details: map[string]any{"prompt": prompt},
	}
}

// NewTransport wraps a network failure talking to the backend.
func NewTransport(method, url string, err error) *QnaError {
	return &QnaError{
		Code:    ErrTransport,
		Status:  502,
		Message: fmt.Sprintf("%s %s: %v", method, url, err),
		Details: map[string]any{"method": method, "url": url},
	}
}

// NewUpstream creates an error for a backend status with no better mapping.
func NewUpstream(status int, body string) *QnaError {
	return &QnaError{
		Code:    ErrUpstream,
		Status:  status,
		Message: fmt.Sprintf("backend returned %d: %s", status, clip(body)),
		Details: map[string]any{"status": status},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *QnaError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &QnaError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// FromStatus maps a non-2xx backend response onto a QnaError.
func FromStatus(status int, body string) *QnaError {
	detail := clip(body)
	switch status {
	case 400, 422:
		e := NewInvalidRequest(detail)
		e.Status = status
		return e
	case 404:
		return &QnaError{Code: ErrNotFound, Status: 404, Message: "not found: " + detail}
	case 409:
		return NewConflict(detail)
	default:
		return NewUpstream(status, body)
	}
}

// Is checks if an error is a QnaError with the given code.
func Is(err error, code ErrorCode) bool {
	var qErr *QnaError
	if stderrors.As(err, &qErr) {
		return qErr.Code == code
	}
	return false
}

func clip(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return "(empty body)"
	}
	if len(body) > maxBodyInMessage {
		return body[:maxBodyInMessage] + "..."
	}
	return body
}
