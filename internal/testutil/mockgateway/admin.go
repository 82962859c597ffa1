package mockgateway

import (
	"encoding/json"
	"net/http"
)

// CreateServiceRequest is the request body for POST /admin/services
type CreateServiceRequest struct {
	ID string `json:"id"`
}

// StateResponse is the response for GET /admin/state
type StateResponse struct {
	Services []string `json:"services"`
	Routes   []Route  `json:"routes"`
	Plugins  []Plugin `json:"plugins"`
}

// handleAdminCreateService handles POST /admin/services
func (s *Server) handleAdminCreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "schema violation", "id is required")
		return
	}

	s.AddService(req.ID)
	writeJSON(w, http.StatusCreated, req)
}

// handleAdminReset handles DELETE /admin/reset
// Clears all services, routes and plugins along with failure injection and the request log.
func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	fresh := NewState()
	s.state.services = fresh.services
	s.state.routes = fresh.routes
	s.state.routeOrder = nil
	s.state.pluginMap = fresh.pluginMap
	s.state.pluginList = nil
	s.state.pageSize = fresh.pageSize
	s.state.requests = nil
	s.state.nextError = nil
	s.state.nextErrorCount = 0
	s.state.routeFailures = fresh.routeFailures
	s.state.pathFailures = fresh.pathFailures
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminState handles GET /admin/state
// Returns the full server state for debugging
func (s *Server) handleAdminState(w http.ResponseWriter, r *http.Request) {
	s.state.mu.RLock()
	resp := StateResponse{
		Services: make([]string, 0, len(s.state.services)),
		Routes:   make([]Route, 0, len(s.state.routeOrder)),
		Plugins:  make([]Plugin, 0, len(s.state.pluginList)),
	}
	for id := range s.state.services {
		resp.Services = append(resp.Services, id)
	}
	for _, id := range s.state.routeOrder {
		resp.Routes = append(resp.Routes, *s.state.routes[id])
	}
	for _, id := range s.state.pluginList {
		resp.Plugins = append(resp.Plugins, *s.state.pluginMap[id])
	}
	s.state.mu.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}
