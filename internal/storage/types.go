package storage

import "time"

// Rate limit windows understood by the gateway rate-limiting plugin.
const (
	WindowSecond = "second"
	WindowMinute = "minute"
	WindowHour   = "hour"
	WindowDay    = "day"
)

// RateLimit is an optional request budget attached to an endpoint.
type RateLimit struct {
	Requests int    `json:"requests"`
	Window   string `json:"window"`
}

// Audit holds the bookkeeping columns shared by endpoints and features.
type Audit struct {
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	CreatedBy string     `json:"createdBy,omitempty"`
	UpdatedBy string     `json:"updatedBy,omitempty"`
	Version   int64      `json:"version"`
	IsActive  bool       `json:"isActive"`
}

// Endpoint is the canonical description of one API route.
type Endpoint struct {
	ID               int64      `json:"id"`
	Path             string     `json:"path"`
	Method           string     `json:"method"`
	Description      string     `json:"description,omitempty"`
	Module           string     `json:"module,omitempty"`
	IsPublic         bool       `json:"isPublic"`
	RoleCodes        []string   `json:"roleCodes"`
	RateLimit        *RateLimit `json:"rateLimit,omitempty"`
	ResourceName     string     `json:"resourceName,omitempty"`
	Action           string     `json:"action,omitempty"`
	GatewayRouteID   string     `json:"gatewayRouteId,omitempty"`
	GatewayRouteName string     `json:"gatewayRouteName,omitempty"`
	Audit
}

// EndpointFields is the full set of mutable endpoint fields used by UpsertEndpoint.
type EndpointFields struct {
	Description  string
	Module       string
	IsPublic     bool
	RoleCodes    []string
	RateLimit    *RateLimit
	ResourceName string
	Action       string
	Actor        string
}

// EndpointPatch carries a partial endpoint update. Nil fields are left unchanged.
type EndpointPatch struct {
	Path         *string
	Method       *string
	Description  *string
	Module       *string
	IsPublic     *bool
	RoleCodes    *[]string
	RateLimit    *RateLimit
	ClearRate    bool
	ResourceName *string
	Action       *string

	// ExpectedVersion, when set, must match the stored version or ErrConflict is returned.
	ExpectedVersion *int64
	Actor           string
}

// Feature is one node of the navigation hierarchy.
type Feature struct {
	ID         int64    `json:"id"`
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Icon       string   `json:"icon,omitempty"`
	Route      string   `json:"route,omitempty"`
	ParentID   *int64   `json:"parentId,omitempty"`
	OrderIndex int      `json:"orderIndex"`
	RoleCodes  []string `json:"roleCodes"`
	Audit
}

// FeatureFields is the full set of mutable feature fields used by UpsertFeature.
type FeatureFields struct {
	Name       string
	Icon       string
	Route      string
	ParentID   *int64
	OrderIndex int
	RoleCodes  []string
	Actor      string
}

// FeaturePatch carries a partial feature update. Nil fields are left unchanged.
type FeaturePatch struct {
	Name        *string
	Icon        *string
	Route       *string
	ParentID    *int64
	ClearParent bool
	OrderIndex  *int
	IsActive    *bool
	RoleCodes   *[]string

	ExpectedVersion *int64
	Actor           string
}
