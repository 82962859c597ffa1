// Package mockgateway provides a stateful mock of a Kong-compatible gateway
// admin API for testing the reconciler.
package mockgateway

import (
	"sync"
)

// ServiceRef references the service a route belongs to.
type ServiceRef struct {
	ID string `json:"id"`
}

// RouteRef references the route a plugin is scoped to.
type RouteRef struct {
	ID string `json:"id"`
}

// Route is a route held by the mock gateway.
type Route struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Paths     []string    `json:"paths"`
	Methods   []string    `json:"methods"`
	StripPath bool        `json:"strip_path"`
	Service   *ServiceRef `json:"service,omitempty"`
	CreatedAt int64       `json:"created_at"`
	UpdatedAt int64       `json:"updated_at"`
}

// Plugin is a plugin instance held by the mock gateway.
type Plugin struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config"`
	Enabled   bool           `json:"enabled"`
	Route     *RouteRef      `json:"route,omitempty"`
	CreatedAt int64          `json:"created_at"`
}

// ListResponse is the paginated envelope used by list endpoints.
type ListResponse[T any] struct {
	Data []T    `json:"data"`
	Next string `json:"next"`
}

// ErrorResponse represents an error response from the admin API.
type ErrorResponse struct {
	Name    string            `json:"name,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// injectedError is a scheduled failure returned instead of a real response.
type injectedError struct {
	status  int
	message string
}

// State holds the internal mock server state.
type State struct {
	mu sync.RWMutex

	services map[string]bool

	routes     map[string]*Route // by id
	routeOrder []string
	pluginMap  map[string]*Plugin // by id
	pluginList []string

	pageSize int
	requests []string

	// Failure injection
	nextError      *injectedError
	nextErrorCount int
	routeFailures  map[string]int // route name -> status
	pathFailures   map[string]int // "METHOD /path" -> status
}

// NewState creates a new State instance for the mock server.
func NewState() *State {
	return &State{
		services:      make(map[string]bool),
		routes:        make(map[string]*Route),
		pluginMap:     make(map[string]*Plugin),
		pageSize:      100,
		routeFailures: make(map[string]int),
		pathFailures:  make(map[string]int),
	}
}

// routeByKey resolves a route by id or name. Caller holds the lock.
func (st *State) routeByKey(key string) *Route {
	if r, ok := st.routes[key]; ok {
		return r
	}
	for _, id := range st.routeOrder {
		if r := st.routes[id]; r.Name == key {
			return r
		}
	}
	return nil
}
