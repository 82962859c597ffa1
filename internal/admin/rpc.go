package admin

import (
	"net/http"
	"strings"
)

// HandleEndpointByPath is the edge guard's lookup by concrete route
// GET /rpc/endpoints/by-path?path=&method=
func (h *Handler) HandleEndpointByPath(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	e, err := h.svc.Endpoints.GetByPath(r.Context(), q.Get("path"), q.Get("method"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleEndpointByResource is the edge guard's lookup by permission tuple
// GET /rpc/endpoints/by-resource?resource=&action=&method=
func (h *Handler) HandleEndpointByResource(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	e, err := h.svc.Endpoints.GetByResource(r.Context(), q.Get("resource"), q.Get("action"), q.Get("method"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleNavigation returns the navigation forest for a role set
// GET /rpc/navigation?role=A&role=B or ?roles=A,B
func (h *Handler) HandleNavigation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roles := append([]string{}, q["role"]...)
	for _, csv := range q["roles"] {
		roles = append(roles, strings.Split(csv, ",")...)
	}

	tree, err := h.svc.Navigator.Tree(r.Context(), roles)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}
