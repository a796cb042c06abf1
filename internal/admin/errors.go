package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/skirmish/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Error codes
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeUnknownCommand  = "UNKNOWN_COMMAND"
	CodeUsage           = "USAGE"
	CodeUnknownField    = "UNKNOWN_FIELD"
	CodeInvalidValue    = "INVALID_VALUE"
	CodeAccountNotFound = "ACCOUNT_NOT_FOUND"
	CodeNotOnline       = "NOT_ONLINE"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	WriteJSON(w, he.status, ErrorResponse{Error: he.apiError})
}

func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	var usage *UsageError
	if errors.As(err, &usage) {
		return &httpError{http.StatusBadRequest, APIError{CodeUsage, usage.Error()}}
	}

	switch {
	case errors.Is(err, ErrUnknownCommand):
		return &httpError{http.StatusNotFound, APIError{CodeUnknownCommand, err.Error()}}
	case errors.Is(err, ErrUnknownField):
		return &httpError{http.StatusBadRequest, APIError{CodeUnknownField, err.Error()}}
	case errors.Is(err, ErrInvalidValue), errors.Is(err, model.ErrCharacterNotFound):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidValue, err.Error()}}
	case errors.Is(err, model.ErrAccountNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeAccountNotFound, "Account not found"}}
	case errors.Is(err, model.ErrNoSession):
		return &httpError{http.StatusConflict, APIError{CodeNotOnline, "Account is not online"}}
	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
