package mockgateway

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/medcore/gateway-reconciler/internal/logging"
)

// LoggingMiddleware writes one record per admin API call received by the mock,
// including the request body and the status returned. A nil logger disables it.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var body []byte
			if r.Body != nil {
				body, _ = io.ReadAll(r.Body) //nolint:errcheck // a short read only shortens the log line
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"token", logging.MaskHeader("Kong-Admin-Token", r.Header.Get("Kong-Admin-Token")),
			}
			if key, ok := routeKeyFromPath(r.URL.Path); ok {
				attrs = append(attrs, "route", key)
			}
			if len(body) > 0 {
				attrs = append(attrs, "body", string(logging.MaskJSONBody(body, nil)))
			}
			logger.Info("mock gateway call", attrs...)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
