package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/medcore/gateway-reconciler/internal/auth"
	"github.com/medcore/gateway-reconciler/internal/middleware"
	"github.com/medcore/gateway-reconciler/internal/registry"
)

// HandleSyncAll runs a full reconciliation
// POST /api/sync[?async=true]
//
// The synchronous form runs detached from the request context, so a client
// disconnect does not abort a sync halfway through. It also lifts the server's
// write deadline; gateway calls stay bounded by the client timeout.
func (h *Handler) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	async, _ := strconv.ParseBool(r.URL.Query().Get("async")) //nolint:errcheck // absent or malformed means synchronous

	if async {
		if h.svc.Queue == nil {
			WriteError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "background sync is not configured")
			return
		}
		req := registry.SyncRequest{
			RequestID: middleware.GetRequestID(r.Context()),
			Actor:     auth.ActorFromContext(r.Context()),
		}
		if err := h.svc.Queue.Request(req); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		h.logger.Info("full sync enqueued", "request_id", req.RequestID, "actor", req.Actor)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	if h.svc.Syncer == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "gateway sync is not configured")
		return
	}

	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("write deadline not adjustable", "error", err)
	}

	result, err := h.svc.Syncer.SyncAll(context.WithoutCancel(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleSyncStatus reports the most recent background sync
// GET /api/sync/status
func (h *Handler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if h.svc.Queue == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "background sync is not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Queue.Status())
}
