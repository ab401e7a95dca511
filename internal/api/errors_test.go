//
//
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnonymousTalent/opsradar/internal/ledger"
	"github.com/AnonymousTalent/opsradar/internal/telemetry"
)

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name           string
		inputError     error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "source error maps to 503",
			inputError:     &telemetry.SourceError{Source: "modbus plc:502", Err: errors.New("i/o timeout")},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "UNAVAILABLE",
		},
		{
			name:           "wrapped unavailable maps to 503",
			inputError:     fmt.Errorf("poll: %w", telemetry.ErrSourceUnavailable),
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "UNAVAILABLE",
		},
		{
			name:           "deadline maps to 503",
			inputError:     context.DeadlineExceeded,
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "UNAVAILABLE",
		},
		{
			name:           "malformed sample maps to 500",
			inputError:     fmt.Errorf("%w: short", telemetry.ErrMalformedSample),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "INTERNAL",
		},
		{
			name:           "invalid modules maps to 400",
			inputError:     fmt.Errorf("%w: duplicate", telemetry.ErrInvalidModules),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "BAD_REQUEST",
		},
		{
			name:           "ledger not found maps to 404",
			inputError:     ledger.ErrNotFound,
			expectedStatus: http.StatusNotFound,
			expectedCode:   "NOT_FOUND",
		},
		{
			name:           "api error passes through",
			inputError:     fmt.Errorf("wrap: %w", NewAPIError("BUSY", "busy", http.StatusServiceUnavailable, nil)),
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "BUSY",
		},
		{
			name:           "unknown error maps to 500",
			inputError:     errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := ToAPIError(tt.inputError)
			require.NotNil(t, apiErr)
			assert.Equal(t, tt.expectedStatus, apiErr.StatusCode)
			assert.Equal(t, tt.expectedCode, apiErr.Code)
			assert.NotEmpty(t, apiErr.Message)
		})
	}

	assert.Nil(t, ToAPIError(nil))
}

func TestToAPIError_SourceDetails(t *testing.T) {
	apiErr := ToAPIError(&telemetry.SourceError{Source: "random", Err: errors.New("x")})
	assert.Equal(t, map[string]interface{}{"source": "random"}, apiErr.Details)
	assert.Equal(t, "UNAVAILABLE: Telemetry source is temporarily unavailable", apiErr.Error())
}

func TestUnknownErrorDoesNotLeak(t *testing.T) {
	apiErr := ToAPIError(errors.New("password=hunter2"))
	assert.NotContains(t, apiErr.Message, "hunter2")
	assert.Nil(t, apiErr.Details)
}
