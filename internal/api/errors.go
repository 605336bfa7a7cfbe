package api

import (
	"errors"
	"net/http"
)

// AppError is an error whose message is safe to show to the caller.
type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

var (
	ErrUnauthorized   = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrServiceOff     = &AppError{Code: http.StatusServiceUnavailable, Message: "billing is not configured"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

// NewForbiddenError wraps err so its message reaches the caller with a 403.
func NewForbiddenError(err error) *AppError {
	return &AppError{Code: http.StatusForbidden, Message: err.Error(), Err: err}
}

// NewUpstreamError wraps an extraction failure. Its message is passed through.
func NewUpstreamError(err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: err.Error(), Err: err}
}

// HandleError writes err as a JSON error body. Anything that is not an
// AppError is reported as a generic internal error.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONErrorMessage(w, appErr.Code, appErr.Message)
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, ErrInternalServer.Message)
}
