package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()
	v, err := NewVerifier(mustHash(t, "tok"))
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gotActor string
	handler := Middleware(v, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantActor  string
	}{
		{"bearer", map[string]string{"Authorization": "Bearer tok"}, http.StatusNoContent, DefaultActor},
		{"lowercase scheme", map[string]string{"Authorization": "bearer tok"}, http.StatusNoContent, DefaultActor},
		{"x-admin-token", map[string]string{"X-Admin-Token": "tok", ActorHeader: "ops-bot"}, http.StatusNoContent, "ops-bot"},
		{"missing", nil, http.StatusUnauthorized, ""},
		{"wrong token", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized, ""},
		{"basic scheme", map[string]string{"Authorization": "Basic tok"}, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotActor = ""
			req := httptest.NewRequest(http.MethodGet, "/api/endpoints", nil)
			for k, val := range tt.headers {
				req.Header.Set(k, val)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotActor != tt.wantActor {
				t.Errorf("actor = %q, want %q", gotActor, tt.wantActor)
			}
			if tt.wantStatus == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), "invalid_credentials") {
				t.Errorf("body = %s, want invalid_credentials", rec.Body.String())
			}
		})
	}
}
