package admin

import (
	"net/http"

	"github.com/medcore/gateway-reconciler/internal/reconcile"
	"github.com/medcore/gateway-reconciler/internal/registry"
)

// HandleListEndpoints returns active endpoints
// GET /api/endpoints?module=
func (h *Handler) HandleListEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.svc.Endpoints.List(r.Context(), r.URL.Query().Get("module"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoints)
}

// HandleCreateEndpoint registers or overwrites an endpoint by path and method
// POST /api/endpoints
func (h *Handler) HandleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var in registry.EndpointInput
	if !decodeJSON(w, r, &in) {
		return
	}

	e, err := h.svc.Endpoints.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.logger.Info("endpoint registered", "endpoint_id", e.ID, "path", e.Path, "method", e.Method, "version", e.Version)
	writeJSON(w, http.StatusCreated, e)
}

// HandleGetEndpoint returns one endpoint
// GET /api/endpoints/{id}
func (h *Handler) HandleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	e, err := h.svc.Endpoints.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleUpdateEndpoint applies a partial update
// PATCH /api/endpoints/{id}
func (h *Handler) HandleUpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var in registry.EndpointPatchInput
	if !decodeJSON(w, r, &in) {
		return
	}

	e, err := h.svc.Endpoints.Update(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleDeleteEndpoint removes the gateway route and soft-deletes the endpoint
// DELETE /api/endpoints/{id}
func (h *Handler) HandleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Endpoints.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSyncEndpoint pushes one endpoint to the gateway
// POST /api/endpoints/{id}/sync
func (h *Handler) HandleSyncEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	e, err := h.svc.Endpoints.Sync(r.Context(), id)
	if err != nil {
		if _, upstream := reconcile.IsUpstream(err); upstream && e != nil {
			err = &registry.SyncError{EndpointID: e.ID, Err: err}
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
