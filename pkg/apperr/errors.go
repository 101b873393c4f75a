package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is an application error carrying the HTTP status it maps to.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(code int, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func Validation(message string, err error) *Error {
	return New(http.StatusBadRequest, message, err)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message, nil)
}

func NotFound(message string, err error) *Error {
	return New(http.StatusNotFound, message, err)
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, "internal error", err)
}

type body struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Write renders err as a JSON error body. Errors that are not *Error are
// reported as internal errors with the cause in the detail field.
func Write(w http.ResponseWriter, err error) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Internal(err)
	}
	b := body{Code: appErr.Code, Message: appErr.Message}
	if appErr.Err != nil {
		b.Detail = appErr.Err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code)
	_ = json.NewEncoder(w).Encode(b)
}
