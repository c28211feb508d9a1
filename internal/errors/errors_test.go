package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapErrorToHTTP(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", fmt.Errorf("%w: title is required", ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", fmt.Errorf("recording: %w", ErrForbidden), http.StatusForbidden, "FORBIDDEN"},
		{"not found", fmt.Errorf("report: %w", ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", ErrConflict, http.StatusConflict, "CONFLICT"},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"external auth", fmt.Errorf("%w: errcode 40029", ErrExternalAuth), http.StatusBadGateway, "EXTERNAL_AUTH_ERROR"},
		{"configuration", ErrConfiguration, http.StatusInternalServerError, "CONFIGURATION_ERROR"},
		{"storage", fmt.Errorf("%w: bucket missing", ErrStorage), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"persistence", ErrPersistence, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := MapErrorToHTTP(tt.err)
			assert.Equal(t, tt.wantStatus, httpErr.StatusCode)
			assert.Equal(t, tt.wantCode, httpErr.Code)
			assert.False(t, httpErr.ToErrorResponse().Success)
		})
	}
}

func TestMapErrorToHTTP_HidesInternalDetail(t *testing.T) {
	httpErr := MapErrorToHTTP(fmt.Errorf("%w: dial tcp 10.0.0.3:3306: refused", ErrPersistence))
	assert.Equal(t, "internal server error", httpErr.Message)
	assert.Nil(t, MapErrorToHTTP(nil))
}
