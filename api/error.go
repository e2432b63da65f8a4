package api

import (
	"fmt"
	"net/http"
)

// Error is an error with an HTTP status. Handlers return it to choose the
// status and message of the error envelope.
type Error struct {
	StatusCode int
	Message    string
}

func NewError(statusCode int, message string) *Error {
	return &Error{StatusCode: statusCode, Message: message}
}

func Errorf(statusCode int, format string, args ...interface{}) *Error {
	return NewError(statusCode, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

func (e *Error) Body() ErrorBody {
	return ErrorBody{Error: e.Message, StatusCode: e.StatusCode}
}

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
}

var (
	ErrInternal = NewError(http.StatusInternalServerError, "Internal server error")
	ErrNotFound = NewError(http.StatusNotFound, "Not found")
)
