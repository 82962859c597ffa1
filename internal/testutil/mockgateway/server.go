package mockgateway

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Server is a mock gateway admin API server for testing.
type Server struct {
	*httptest.Server
	state  *State
	router chi.Router
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger logs every request and response handled by the mock.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates and starts a new mock gateway admin API server.
func New(opts ...Option) *Server {
	s := &Server{state: NewState()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(LoggingMiddleware(s.logger))
	r.Use(s.recordAndInject)

	r.Get("/services/{serviceID}/routes", s.handleListServiceRoutes)
	r.Post("/services/{serviceID}/routes", s.handleCreateRoute)

	r.Get("/routes/{route}", s.handleGetRoute)
	r.Put("/routes/{route}", s.handlePutRoute)
	r.Delete("/routes/{route}", s.handleDeleteRoute)
	r.Get("/routes/{route}/plugins", s.handleListRoutePlugins)
	r.Post("/routes/{route}/plugins", s.handleAddPlugin)

	r.Delete("/plugins/{id}", s.handleDeletePlugin)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/state", s.handleAdminState)
		r.Post("/services", s.handleAdminCreateService)
		r.Delete("/reset", s.handleAdminReset)
	})

	s.router = r
	s.Server = httptest.NewServer(r)
	return s
}

// Handler returns the HTTP handler for use with a standalone http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// URL returns the base URL of the running mock server.
func (s *Server) URL() string {
	return s.Server.URL
}

// AddService registers a service routes can attach to.
func (s *Server) AddService(id string) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.services[id] = true
}

// AddRoute seeds a route directly into state and returns its id.
func (s *Server) AddRoute(serviceID, name string, paths, methods []string) string {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.services[serviceID] = true
	return s.state.insertRoute(serviceID, name, paths, methods)
}

// AddPlugin seeds a plugin on a route directly into state and returns its id.
func (s *Server) AddPlugin(routeID, name string, config map[string]any) string {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.insertPlugin(routeID, name, config)
}

// GetRoute returns a copy of the route with the given name or id, or nil.
func (s *Server) GetRoute(key string) *Route {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	r := s.state.routeByKey(key)
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Routes returns copies of all routes in creation order.
func (s *Server) Routes() []Route {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	out := make([]Route, 0, len(s.state.routeOrder))
	for _, id := range s.state.routeOrder {
		out = append(out, *s.state.routes[id])
	}
	return out
}

// Plugins returns copies of the plugins attached to a route, in creation order.
func (s *Server) Plugins(routeID string) []Plugin {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	return s.state.pluginsFor(routeID)
}

// Requests returns the "METHOD /path" log of API calls received (admin calls excluded).
func (s *Server) Requests() []string {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	return slices.Clone(s.state.requests)
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.requests = nil
}

// SetPageSize changes how many items list endpoints return per page.
func (s *Server) SetPageSize(n int) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if n > 0 {
		s.state.pageSize = n
	}
}

// SetNextError makes the next count API requests fail with status and message.
func (s *Server) SetNextError(status int, message string, count int) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.nextError = &injectedError{status: status, message: message}
	s.state.nextErrorCount = count
}

// FailRoute makes every request addressing the named route (by name or id,
// including its plugin endpoints) fail with status until ClearFailures is called.
func (s *Server) FailRoute(name string, status int) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.routeFailures[name] = status
}

// FailPath makes requests with the exact method and path fail with status.
func (s *Server) FailPath(method, path string, status int) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.pathFailures[method+" "+path] = status
}

// ClearFailures removes all injected failures.
func (s *Server) ClearFailures() {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.nextError = nil
	s.state.nextErrorCount = 0
	s.state.routeFailures = make(map[string]int)
	s.state.pathFailures = make(map[string]int)
}

// recordAndInject logs API calls and short-circuits them with injected failures.
func (s *Server) recordAndInject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/admin/") {
			next.ServeHTTP(w, r)
			return
		}

		s.state.mu.Lock()
		s.state.requests = append(s.state.requests, r.Method+" "+r.URL.Path)
		injected := s.state.takeFailure(r)
		s.state.mu.Unlock()

		if injected != nil {
			writeError(w, injected.status, "injected failure", injected.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// takeFailure returns the failure to inject for r, if any. Caller holds the lock.
func (st *State) takeFailure(r *http.Request) *injectedError {
	if st.nextError != nil && st.nextErrorCount > 0 {
		st.nextErrorCount--
		e := st.nextError
		if st.nextErrorCount == 0 {
			st.nextError = nil
		}
		return e
	}

	if status, ok := st.pathFailures[r.Method+" "+r.URL.Path]; ok {
		return &injectedError{status: status, message: "injected path failure"}
	}

	if len(st.routeFailures) > 0 {
		if key, ok := routeKeyFromPath(r.URL.Path); ok {
			name := key
			if route := st.routeByKey(key); route != nil {
				name = route.Name
			}
			if status, ok := st.routeFailures[name]; ok {
				return &injectedError{status: status, message: "injected route failure"}
			}
		}
	}

	return nil
}

// routeKeyFromPath extracts {route} from /routes/{route}[/...].
func routeKeyFromPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/routes/")
	if !ok || rest == "" {
		return "", false
	}
	key, _, _ := strings.Cut(rest, "/")
	return key, true
}

// insertRoute creates a route. Caller holds the lock.
func (st *State) insertRoute(serviceID, name string, paths, methods []string) string {
	now := time.Now().Unix()
	id := uuid.NewString()
	st.routes[id] = &Route{
		ID:        id,
		Name:      name,
		Paths:     slices.Clone(paths),
		Methods:   slices.Clone(methods),
		Service:   &ServiceRef{ID: serviceID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	st.routeOrder = append(st.routeOrder, id)
	return id
}

// insertPlugin attaches a plugin. Caller holds the lock.
func (st *State) insertPlugin(routeID, name string, config map[string]any) string {
	id := uuid.NewString()
	st.pluginMap[id] = &Plugin{
		ID:        id,
		Name:      name,
		Config:    config,
		Enabled:   true,
		Route:     &RouteRef{ID: routeID},
		CreatedAt: time.Now().Unix(),
	}
	st.pluginList = append(st.pluginList, id)
	return id
}

// pluginsFor returns copies of a route's plugins. Caller holds the lock.
func (st *State) pluginsFor(routeID string) []Plugin {
	out := make([]Plugin, 0)
	for _, id := range st.pluginList {
		p := st.pluginMap[id]
		if p.Route != nil && p.Route.ID == routeID {
			out = append(out, *p)
		}
	}
	return out
}

// removeRoute deletes a route and its plugins. Caller holds the lock.
func (st *State) removeRoute(id string) {
	delete(st.routes, id)
	st.routeOrder = slices.DeleteFunc(st.routeOrder, func(x string) bool { return x == id })
	st.pluginList = slices.DeleteFunc(st.pluginList, func(pid string) bool {
		p := st.pluginMap[pid]
		if p.Route != nil && p.Route.ID == id {
			delete(st.pluginMap, pid)
			return true
		}
		return false
	})
}
