package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/medcore/gateway-reconciler/internal/metrics"
)

// ActorHeader optionally names the operator behind an admin request for audit fields.
const ActorHeader = "X-Admin-Actor"

// Middleware returns Chi-compatible middleware that requires a valid admin token
// in "Authorization: Bearer <token>" or the X-Admin-Token header.
func Middleware(v *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)

			if err := v.Verify(token); err != nil {
				reason := "invalid_token"
				if errors.Is(err, ErrMissingToken) {
					reason = "missing_token"
				}
				metrics.RecordAuthFailure(reason)
				logger.Warn("admin authentication failed", "reason", reason, "remote_addr", r.RemoteAddr)
				writeJSONError(w, http.StatusUnauthorized, "invalid_credentials", "missing or invalid admin token")
				return
			}

			actor := strings.TrimSpace(r.Header.Get(ActorHeader))
			ctx := WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken reads the bearer token, falling back to X-Admin-Token.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get("X-Admin-Token"))
}

// writeJSONError writes a JSON error response
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // headers already sent
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
