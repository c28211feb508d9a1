package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation is returned when request fields are missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized is returned when the bearer token is missing, invalid or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the actor neither owns the entity nor is an admin.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when the entity is in a state that does not allow the operation.
	ErrConflict = errors.New("conflict")
	// ErrExternalAuth is returned when the login provider rejects the exchange.
	ErrExternalAuth = errors.New("external auth failed")
	// ErrConfiguration is returned when a provider is called without credentials.
	ErrConfiguration = errors.New("provider not configured")
	// ErrStorage is returned when the object store fails.
	ErrStorage = errors.New("storage failure")
	// ErrAnalysisParse is returned when the model reply carries no usable JSON payload.
	ErrAnalysisParse = errors.New("analysis parse failure")
	// ErrPersistence is returned when the database fails.
	ErrPersistence = errors.New("persistence failure")
	// ErrUnavailable is returned when background capacity is exhausted.
	ErrUnavailable = errors.New("service unavailable")
)

// ErrorResponse is the failure half of the response envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Success: false,
		Message: e.Message,
		Code:    e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Provider and storage
// failures collapse into a generic 500 so internals never reach the client.
func MapErrorToHTTP(err error) *HTTPError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, ErrUnauthorized):
		return NewHTTPError(http.StatusUnauthorized, "invalid or expired token", "UNAUTHORIZED")
	case errors.Is(err, ErrForbidden):
		return NewHTTPError(http.StatusForbidden, "access denied", "FORBIDDEN")
	case errors.Is(err, ErrNotFound):
		return NewHTTPError(http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, ErrConflict):
		return NewHTTPError(http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, ErrUnavailable):
		return NewHTTPError(http.StatusServiceUnavailable, "service busy, try again later", "UNAVAILABLE")
	case errors.Is(err, ErrExternalAuth):
		return NewHTTPError(http.StatusBadGateway, "login provider rejected the request", "EXTERNAL_AUTH_ERROR")
	case errors.Is(err, ErrConfiguration):
		return NewHTTPError(http.StatusInternalServerError, "service not configured", "CONFIGURATION_ERROR")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
