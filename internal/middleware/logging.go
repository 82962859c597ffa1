// Package middleware provides HTTP middleware shared by the admin and RPC surfaces.
package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/medcore/gateway-reconciler/internal/logging"
)

// quietPaths are logged at debug so probes do not flood the access log.
var quietPaths = map[string]bool{"/health": true, "/ready": true}

// HTTPLogging writes one access log record per request. At debug level the
// record also carries masked headers and bodies; JSON keys outside allowlist
// are redacted (nil keeps every key except known secrets).
func HTTPLogging(logger *slog.Logger, allowlist []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			debug := logger.Enabled(ctx, slog.LevelDebug)

			var reqBody []byte
			if debug && r.Body != nil {
				var err error
				if reqBody, err = io.ReadAll(r.Body); err != nil {
					logger.Warn("failed to read request body for logging", "error", err)
				}
				r.Body = io.NopCloser(bytes.NewReader(reqBody))
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK, capture: debug}
			start := time.Now()
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			attrs := []any{
				"request_id", GetRequestID(ctx),
				"method", r.Method,
				"path", r.URL.Path,
				"route", routePattern(r),
				"status", rec.statusCode,
				"bytes", rec.written,
				"duration_ms", duration.Milliseconds(),
			}

			if !debug {
				if quietPaths[r.URL.Path] {
					return
				}
				logger.Info("http request", attrs...)
				return
			}

			attrs = append(attrs,
				"query", r.URL.RawQuery,
				"request_headers", maskHeaders(r.Header),
				"request_body", maskBody(reqBody, allowlist),
				"response_headers", maskHeaders(rec.Header()),
				"response_body", maskBody(rec.body.Bytes(), allowlist),
			)
			logger.Debug("http request", attrs...)
		})
	}
}

// routePattern returns the matched chi pattern, e.g. /api/endpoints/{id}.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func maskHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) > 0 {
			out[k] = logging.MaskHeader(k, v[0])
		}
	}
	return out
}

func maskBody(body []byte, allowlist []string) string {
	if len(body) == 0 {
		return ""
	}
	if !utf8.Valid(body) {
		return logging.FormatBinaryData(body)
	}
	return string(logging.MaskJSONBody(body, allowlist))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	written    int
	capture    bool
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.capture {
		r.body.Write(b)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
