package gateway

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/medcore/gateway-reconciler/internal/logging"
	"github.com/medcore/gateway-reconciler/internal/middleware"
)

// LoggingTransport logs every admin API exchange at debug level. Token headers
// are masked and secret JSON keys are redacted from both bodies.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *slog.Logger
	Prefix    string // "GATEWAY" in the service, "MOCK" in tests
}

// RoundTrip implements http.RoundTripper.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	if !t.Logger.Enabled(req.Context(), slog.LevelDebug) {
		return next.RoundTrip(req)
	}

	log := t.Logger.With(
		"prefix", t.Prefix,
		"request_id", middleware.GetRequestID(req.Context()),
		"method", req.Method,
		"url", req.URL.String(),
	)

	sent, err := drain(&req.Body)
	if err != nil {
		return nil, err
	}
	log.Debug("gateway request",
		"headers", maskHeaders(req.Header),
		"body", bodyForLog(sent),
	)

	start := time.Now()
	resp, err := next.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("gateway request failed", "duration_ms", elapsed, "error", err)
		return nil, err
	}

	received, err := drain(&resp.Body)
	if err != nil {
		return nil, err
	}
	log.Debug("gateway response",
		"status_code", resp.StatusCode,
		"duration_ms", elapsed,
		"body", bodyForLog(received),
	)

	return resp, nil
}

// drain reads *body fully and swaps in a replayable copy.
func drain(body *io.ReadCloser) ([]byte, error) {
	if *body == nil || *body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(*body)
	if err != nil {
		return nil, err
	}
	_ = (*body).Close()
	*body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func bodyForLog(data []byte) string {
	if !utf8.Valid(data) {
		return logging.FormatBinaryData(data)
	}
	return string(logging.MaskJSONBody(data, nil))
}

func maskHeaders(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) > 0 {
			result[k] = logging.MaskHeader(k, v[0])
		}
	}
	return result
}
