package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/llm-blackbox/internal/observability"
	"go.uber.org/zap"
)

// RequestLogger logs one line per HTTP request with the correlation ids.
// Health probes are logged at debug.
func RequestLogger(logger *observability.ContextLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}

			switch {
			case isProbe(r.URL.Path):
				logger.Debug(r.Context(), "http request", fields...)
			case status >= http.StatusInternalServerError:
				logger.Warn(r.Context(), "http request", fields...)
			default:
				logger.Info(r.Context(), "http request", fields...)
			}
		})
	}
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}
