// Package gateway is a client for the Kong-compatible gateway admin API.
package gateway

// Plugin names attached by the reconciler.
const (
	PluginJWT          = "jwt"
	PluginRateLimiting = "rate-limiting"
)

// ServiceRef references the upstream service a route belongs to.
type ServiceRef struct {
	ID string `json:"id"`
}

// Route is a gateway route as returned by the admin API.
type Route struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Paths     []string    `json:"paths"`
	Methods   []string    `json:"methods"`
	StripPath bool        `json:"strip_path"`
	Service   *ServiceRef `json:"service,omitempty"`
	CreatedAt int64       `json:"created_at,omitempty"`
	UpdatedAt int64       `json:"updated_at,omitempty"`
}

// RouteRequest is the body sent when creating or replacing a route.
type RouteRequest struct {
	Name      string      `json:"name"`
	Paths     []string    `json:"paths"`
	Methods   []string    `json:"methods"`
	StripPath bool        `json:"strip_path"`
	Service   *ServiceRef `json:"service,omitempty"`
}

// RouteRef references the route a plugin is scoped to.
type RouteRef struct {
	ID string `json:"id"`
}

// Plugin is a plugin instance attached to a route.
type Plugin struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config"`
	Enabled   bool           `json:"enabled"`
	Route     *RouteRef      `json:"route,omitempty"`
	CreatedAt int64          `json:"created_at,omitempty"`
}

// PluginRequest is the body sent when attaching a plugin to a route.
type PluginRequest struct {
	Name    string         `json:"name"`
	Config  map[string]any `json:"config"`
	Enabled bool           `json:"enabled"`
}

// ListRoutesResponse is one page of a route listing. Next is empty on the last page.
type ListRoutesResponse struct {
	Data []Route `json:"data"`
	Next string  `json:"next"`
}

// ListPluginsResponse is one page of a plugin listing. Next is empty on the last page.
type ListPluginsResponse struct {
	Data []Plugin `json:"data"`
	Next string   `json:"next"`
}
