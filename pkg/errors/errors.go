package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes returned by the chat core. Handlers map them to HTTP statuses
// through AppError.Status; callers match them with Is.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeBadRequest        = "BAD_REQUEST"
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeChatLimitExceeded = "CHAT_LIMIT_EXCEEDED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeTimeout           = "TIMEOUT"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

// InvalidTransition reports a lifecycle precondition violation, e.g. archiving
// a chat that is already archived.
func InvalidTransition(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidTransition,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// ChatLimitExceeded names the configured cap so the message stays actionable.
func ChatLimitExceeded(limit int) *AppError {
	return &AppError{
		Code:    CodeChatLimitExceeded,
		Message: fmt.Sprintf("active chat limit of %d reached; archive a conversation to start a new one", limit),
		Status:  http.StatusBadRequest,
	}
}

// RateLimited tells the caller how long until the next attempt may succeed.
func RateLimited(retryAfter time.Duration) *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Message: fmt.Sprintf("too many requests; retry in %s", retryAfter.Round(time.Second)),
		Status:  http.StatusTooManyRequests,
	}
}

func Timeout(message string, err error) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: message,
		Status:  http.StatusGatewayTimeout,
		Err:     err,
	}
}

func StoreUnavailable(message string, err error) *AppError {
	return &AppError{
		Code:    CodeStoreUnavailable,
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
