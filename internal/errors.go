package internal

import (
	"errors"
	"net/http"
)

// AppError is the error shape returned to API callers. Code doubles as the
// HTTP status the handler layer responds with; Kind names the taxonomy bucket
// so callers (and tests) can tell a conflict from a plain validation failure
// even when both map to 400.
type AppError struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

const (
	KindValidation   = "validation"
	KindConflict     = "conflict"
	KindInvalidState = "invalid_state"
	KindAccessDenied = "access_denied"
	KindNotFound     = "not_found"
)

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code int, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Taxonomy constructors. Services only ever fail with one of these; anything
// else reaching the handler layer is treated as a 500.

func ValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: KindValidation, Message: msg}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: KindConflict, Message: msg}
}

func InvalidStateError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: KindInvalidState, Message: msg}
}

func AccessDeniedError(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Kind: KindAccessDenied, Message: msg}
}

func NotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Kind: KindNotFound, Message: msg}
}

// AsAppError unwraps err to an *AppError if one is in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
