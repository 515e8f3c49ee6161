package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Error codes carried by APIError and exposed as the error_code extension
const (
	CodeInvalidParameter   = "INVALID_PARAMETER"
	CodeNotFound           = "NOT_FOUND"
	CodeRunNotFound        = "RUN_NOT_FOUND"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// APIError is a request failure the results API reports with a fixed status
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ParameterError names the rejected request parameter
type ParameterError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidParameter rejects one query or path parameter
func InvalidParameter(field, message string) *APIError {
	return &APIError{
		StatusCode: http.StatusBadRequest,
		ErrorCode:  CodeInvalidParameter,
		Message:    fmt.Sprintf("invalid %s", field),
		Details:    ParameterError{Field: field, Message: message},
	}
}

// RunNotFound reports an unknown run ID
func RunNotFound(id string) *APIError {
	return &APIError{
		StatusCode: http.StatusNotFound,
		ErrorCode:  CodeRunNotFound,
		Message:    fmt.Sprintf("run %s not found", id),
		Details:    id,
	}
}

// Unavailable reports a dependency the API cannot serve without
func Unavailable(reason string) *APIError {
	return &APIError{
		StatusCode: http.StatusServiceUnavailable,
		ErrorCode:  CodeServiceUnavailable,
		Message:    reason,
	}
}
