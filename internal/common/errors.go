package common

import (
	"errors"
	"net/http"
)

// AppError is an error that knows how it should be rendered to API clients.
// Err, when set, is the internal cause and never leaves the process.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Code + ": " + e.Err.Error()
	default:
		return e.Code + ": " + e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func BadRequest(code, message string) *AppError {
	return NewAppError(code, message, http.StatusBadRequest, nil)
}

func NotFound(code, message string) *AppError {
	return NewAppError(code, message, http.StatusNotFound, nil)
}

// WithDetails attaches extra payload rendered alongside the error.
func (e *AppError) WithDetails(details any) *AppError {
	if e != nil {
		e.Details = details
	}
	return e
}

// WriteError renders err with its AppError metadata. Anything else is an
// opaque 500 so internal messages are not leaked.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr == nil {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
		return
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
}
