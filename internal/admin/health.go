package admin

import (
	"context"
	"net/http"
	"time"
)

const readyTimeout = 5 * time.Second

// HandleHealth reports process liveness
// GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady reports whether the registry database can serve requests
// GET /ready
//
// The most recent background sync is included for operators but never affects
// readiness: a gateway outage must not take the registry out of rotation.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "database": "connected"}
	status := http.StatusOK

	switch {
	case h.svc.DB == nil:
		status = http.StatusServiceUnavailable
		body["status"], body["database"] = "error", "not configured"
	default:
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := h.svc.DB.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			status = http.StatusServiceUnavailable
			body["status"], body["database"] = "error", "unavailable"
		}
	}

	if h.svc.Queue != nil {
		if st := h.svc.Queue.Status(); st.FinishedAt != nil {
			last := map[string]any{"finishedAt": st.FinishedAt}
			if st.Error != "" {
				last["error"] = st.Error
			} else if st.Result != nil {
				last["failed"] = len(st.Result.Failures)
			}
			body["lastSync"] = last
		}
	}

	writeJSON(w, status, body)
}
