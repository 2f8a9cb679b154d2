package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"message": "test"}

		err := WriteJSON(w, http.StatusOK, data)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		err = json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err)
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusNoContent, nil)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteOK(w, map[string]string{"response": "hello"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "hello", response["response"])
	assert.NotContains(t, response, "data")
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter) error
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{
			name: "bad request",
			write: func(w http.ResponseWriter) error {
				return WriteBadRequest(w, "question is required", map[string]interface{}{"question": "required"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "bad_request",
			wantError:  "question is required",
		},
		{
			name:       "not found default message",
			write:      func(w http.ResponseWriter) error { return WriteNotFound(w, "") },
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
			wantError:  "resource not found",
		},
		{
			name:       "method not allowed",
			write:      WriteMethodNotAllowed,
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   "method_not_allowed",
			wantError:  "method not allowed",
		},
		{
			name:       "too many requests",
			write:      func(w http.ResponseWriter) error { return WriteTooManyRequests(w, "", nil) },
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "rate_limit_exceeded",
			wantError:  "rate limit exceeded",
		},
		{
			name:       "bad gateway",
			write:      func(w http.ResponseWriter) error { return WriteBadGateway(w, "model service returned an error", nil) },
			wantStatus: http.StatusBadGateway,
			wantCode:   "bad_gateway",
			wantError:  "model service returned an error",
		},
		{
			name:       "service unavailable",
			write:      func(w http.ResponseWriter) error { return WriteServiceUnavailable(w, "", nil) },
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "service_unavailable",
			wantError:  "service unavailable",
		},
		{
			name:       "gateway timeout",
			write:      func(w http.ResponseWriter) error { return WriteGatewayTimeout(w, "model call timed out", nil) },
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "gateway_timeout",
			wantError:  "model call timed out",
		},
		{
			name:       "internal server error",
			write:      func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") },
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
			wantError:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w))

			assert.Equal(t, tt.wantStatus, w.Code)

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantCode, response.Code)
			assert.Equal(t, tt.wantError, response.Error)
		})
	}
}
