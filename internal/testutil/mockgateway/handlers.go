package mockgateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// routeBody is the accepted request body for route create/replace.
type routeBody struct {
	Name      string      `json:"name"`
	Paths     []string    `json:"paths"`
	Methods   []string    `json:"methods"`
	StripPath bool        `json:"strip_path"`
	Service   *ServiceRef `json:"service"`
}

// pluginBody is the accepted request body for attaching a plugin.
type pluginBody struct {
	Name    string         `json:"name"`
	Config  map[string]any `json:"config"`
	Enabled *bool          `json:"enabled"`
}

// page slices items by the offset/size query parameters and builds the next link.
func page[T any](r *http.Request, items []T, defaultSize int) ListResponse[T] {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	size := defaultSize
	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s > 0 {
		size = s
	}
	if offset < 0 || offset > len(items) {
		offset = len(items)
	}

	end := min(offset+size, len(items))
	resp := ListResponse[T]{Data: items[offset:end]}
	if resp.Data == nil {
		resp.Data = []T{}
	}
	if end < len(items) {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(end))
		q.Set("size", strconv.Itoa(size))
		resp.Next = r.URL.Path + "?" + q.Encode()
	}
	return resp
}

// handleListServiceRoutes handles GET /services/{serviceID}/routes.
func (s *Server) handleListServiceRoutes(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")

	s.state.mu.RLock()
	defer s.state.mu.RUnlock()

	if !s.state.services[serviceID] {
		writeError(w, http.StatusNotFound, "not found", "Not found")
		return
	}

	routes := make([]Route, 0)
	for _, id := range s.state.routeOrder {
		route := s.state.routes[id]
		if route.Service != nil && route.Service.ID == serviceID {
			routes = append(routes, *route)
		}
	}

	writeJSON(w, http.StatusOK, page(r, routes, s.state.pageSize))
}

// handleCreateRoute handles POST /services/{serviceID}/routes.
func (s *Server) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")

	var body routeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "schema violation", "invalid JSON body")
		return
	}
	if len(body.Paths) == 0 && len(body.Methods) == 0 {
		writeError(w, http.StatusBadRequest, "schema violation", "must set one of 'methods', 'hosts', 'headers', 'paths', 'snis'")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if !s.state.services[serviceID] {
		writeError(w, http.StatusNotFound, "not found", "Not found")
		return
	}
	if body.Name != "" && s.state.routeByKey(body.Name) != nil {
		writeError(w, http.StatusConflict, "unique constraint violation",
			fmt.Sprintf("UNIQUE violation detected on '{name=\"%s\"}'", body.Name))
		return
	}

	id := s.state.insertRoute(serviceID, body.Name, body.Paths, body.Methods)
	route := s.state.routes[id]
	route.StripPath = body.StripPath

	writeJSON(w, http.StatusCreated, route)
}

// handleGetRoute handles GET /routes/{route}.
func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "route")

	s.state.mu.RLock()
	defer s.state.mu.RUnlock()

	route := s.state.routeByKey(key)
	if route == nil {
		writeError(w, http.StatusNotFound, "not found", "Not found")
		return
	}

	writeJSON(w, http.StatusOK, route)
}

// handlePutRoute handles PUT /routes/{route}: replace if present, create otherwise.
func (s *Server) handlePutRoute(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "route")

	var body routeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "schema violation", "invalid JSON body")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	route := s.state.routeByKey(key)
	if route == nil {
		if body.Service == nil || !s.state.services[body.Service.ID] {
			writeError(w, http.StatusBadRequest, "schema violation", "service: required field missing")
			return
		}
		name := body.Name
		if name == "" {
			name = key
		}
		id := s.state.insertRoute(body.Service.ID, name, body.Paths, body.Methods)
		route = s.state.routes[id]
		route.StripPath = body.StripPath
		writeJSON(w, http.StatusOK, route)
		return
	}

	if body.Name != "" {
		route.Name = body.Name
	}
	route.Paths = slices.Clone(body.Paths)
	route.Methods = slices.Clone(body.Methods)
	route.StripPath = body.StripPath
	if body.Service != nil {
		route.Service = &ServiceRef{ID: body.Service.ID}
	}
	route.UpdatedAt = time.Now().Unix()

	writeJSON(w, http.StatusOK, route)
}

// handleDeleteRoute handles DELETE /routes/{route}. Attached plugins go with it.
func (s *Server) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "route")

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	route := s.state.routeByKey(key)
	if route == nil {
		writeError(w, http.StatusNotFound, "not found", "Not found")
		return
	}

	s.state.removeRoute(route.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleListRoutePlugins handles GET /routes/{route}/plugins.
func (s *Server) handleListRoutePlugins(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "route")

	s.state.mu.RLock()
	defer s.state.mu.RUnlock()

	route := s.state.routeByKey(key)
	if route == nil {
		writeError(w, http.StatusNotFound, "not found", "Not found")
		return
	}

	writeJSON(w, http.StatusOK, page(r, s.state.pluginsFor(route.ID), s.state.pageSize))
}

// handleAddPlugin handles POST /routes/{route}/plugins.
// Like the real gateway, a plugin name can be attached to a route only once.
func (s *Server) handleAddPlugin(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "route")

	var body pluginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "schema violation", "invalid JSON body")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "schema violation", "name: required field missing")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	route := s.state.routeByKey(key)
	if route == nil {
		writeError(w, http.StatusNotFound, "not found", "Not found")
		return
	}

	for _, p := range s.state.pluginsFor(route.ID) {
		if p.Name == body.Name {
			writeError(w, http.StatusConflict, "unique constraint violation",
				fmt.Sprintf("UNIQUE violation detected on '{name=\"%s\",route={id=\"%s\"}}'", body.Name, route.ID))
			return
		}
	}

	id := s.state.insertPlugin(route.ID, body.Name, body.Config)
	plugin := s.state.pluginMap[id]
	if body.Enabled != nil {
		plugin.Enabled = *body.Enabled
	}

	writeJSON(w, http.StatusCreated, plugin)
}

// handleDeletePlugin handles DELETE /plugins/{id}.
func (s *Server) handleDeletePlugin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if _, ok := s.state.pluginMap[id]; !ok {
		writeError(w, http.StatusNotFound, "not found", "Not found")
		return
	}

	delete(s.state.pluginMap, id)
	s.state.pluginList = slices.DeleteFunc(s.state.pluginList, func(x string) bool { return x == id })
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response with correct Content-Type and no trailing newline.
func writeJSON(w http.ResponseWriter, status int, v any) {
	//nolint:errcheck
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck
	w.Write(data)
}

// writeError writes an error response in the admin API format.
func writeError(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, ErrorResponse{
		Name:    name,
		Message: message,
	})
}
