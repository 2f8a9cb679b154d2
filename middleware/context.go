package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/llm-blackbox/internal/observability"
)

// RequestIDHeader carries the correlation id on requests and responses
const RequestIDHeader = "X-Request-ID"

// Correlation puts a request id on the context for handlers, the model
// client and telemetry. It reuses the id set by chi's RequestID
// middleware when present and echoes it in the response header.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := chimw.GetReqID(r.Context())
		if requestID == "" {
			requestID = r.Header.Get(RequestIDHeader)
		}
		if requestID == "" {
			requestID = observability.NewRequestID()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := observability.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
