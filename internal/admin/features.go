package admin

import (
	"net/http"

	"github.com/medcore/gateway-reconciler/internal/registry"
)

// HandleListFeatures returns live features
// GET /api/features
func (h *Handler) HandleListFeatures(w http.ResponseWriter, r *http.Request) {
	features, err := h.svc.Features.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, features)
}

// HandleCreateFeature registers or overwrites a feature by code
// POST /api/features
func (h *Handler) HandleCreateFeature(w http.ResponseWriter, r *http.Request) {
	var in registry.FeatureInput
	if !decodeJSON(w, r, &in) {
		return
	}

	f, err := h.svc.Features.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// HandleGetFeature returns one feature
// GET /api/features/{id}
func (h *Handler) HandleGetFeature(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	f, err := h.svc.Features.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HandleUpdateFeature applies a partial update
// PATCH /api/features/{id}
func (h *Handler) HandleUpdateFeature(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var in registry.FeaturePatchInput
	if !decodeJSON(w, r, &in) {
		return
	}

	f, err := h.svc.Features.Update(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HandleDeleteFeature soft-deletes a feature
// DELETE /api/features/{id}
func (h *Handler) HandleDeleteFeature(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Features.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
