package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/medcore/gateway-reconciler/internal/auth"
	"github.com/medcore/gateway-reconciler/internal/storage"
)

// EndpointStore is the persistence the endpoint service needs.
type EndpointStore interface {
	UpsertEndpoint(ctx context.Context, path, method string, fields storage.EndpointFields) (*storage.Endpoint, error)
	UpdateEndpoint(ctx context.Context, id int64, patch storage.EndpointPatch) (*storage.Endpoint, error)
	DeleteEndpoint(ctx context.Context, id int64, actor string) error
	GetEndpoint(ctx context.Context, id int64) (*storage.Endpoint, error)
	GetEndpointByPath(ctx context.Context, path, method string) (*storage.Endpoint, error)
	GetEndpointByResource(ctx context.Context, resourceName, action, method string) (*storage.Endpoint, error)
	ListEndpoints(ctx context.Context, module string) ([]*storage.Endpoint, error)
}

// RouteSyncer pushes a single endpoint to the gateway and removes gateway routes.
type RouteSyncer interface {
	SyncOne(ctx context.Context, e *storage.Endpoint) error
	DeleteRoute(ctx context.Context, routeID string) error
}

// RateLimitInput is the wire form of a rate limit.
type RateLimitInput struct {
	Requests int    `json:"requests" validate:"gt=0"`
	Window   string `json:"window" validate:"oneof=second minute hour day"`
}

// EndpointInput is the full definition used to create or overwrite an endpoint.
type EndpointInput struct {
	Path         string          `json:"path" validate:"required,startswith=/,max=512"`
	Method       string          `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Description  string          `json:"description" validate:"max=1024"`
	Module       string          `json:"module" validate:"max=128"`
	IsPublic     bool            `json:"isPublic"`
	RoleCodes    []string        `json:"roleCodes" validate:"dive,required,max=64"`
	RateLimit    *RateLimitInput `json:"rateLimit" validate:"omitempty"`
	ResourceName string          `json:"resourceName" validate:"max=128"`
	Action       string          `json:"action" validate:"max=64"`
}

// EndpointPatchInput is a partial update. Absent fields are left unchanged;
// clearRateLimit removes an existing limit.
type EndpointPatchInput struct {
	Path            *string         `json:"path" validate:"omitempty,startswith=/,max=512"`
	Method          *string         `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Description     *string         `json:"description" validate:"omitempty,max=1024"`
	Module          *string         `json:"module" validate:"omitempty,max=128"`
	IsPublic        *bool           `json:"isPublic"`
	RoleCodes       *[]string       `json:"roleCodes" validate:"omitempty,dive,required,max=64"`
	RateLimit       *RateLimitInput `json:"rateLimit" validate:"omitempty"`
	ClearRateLimit  bool            `json:"clearRateLimit"`
	ResourceName    *string         `json:"resourceName" validate:"omitempty,max=128"`
	Action          *string         `json:"action" validate:"omitempty,max=64"`
	ExpectedVersion *int64          `json:"expectedVersion"`
}

// SyncError reports that a mutation was committed but pushing it to the gateway failed.
type SyncError struct {
	EndpointID int64
	Err        error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("endpoint %d saved but gateway sync failed: %v", e.EndpointID, e.Err)
}

// Unwrap returns the underlying sync error.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// EndpointService validates and applies endpoint registry changes.
type EndpointService struct {
	store          EndpointStore
	syncer         RouteSyncer
	bus            *Bus
	cache          *cache.Cache
	logger         *slog.Logger
	syncOnMutation bool
}

// EndpointOption configures an EndpointService.
type EndpointOption func(*EndpointService)

// WithSyncer enables gateway route removal on delete and, when syncOnMutation is
// true, an immediate SyncOne after each create or update.
func WithSyncer(syncer RouteSyncer, syncOnMutation bool) EndpointOption {
	return func(s *EndpointService) {
		s.syncer = syncer
		s.syncOnMutation = syncOnMutation
	}
}

// WithBus publishes change events after each committed mutation.
func WithBus(bus *Bus) EndpointOption {
	return func(s *EndpointService) {
		s.bus = bus
	}
}

// WithLookupCacheTTL sets how long by-path and by-resource lookups are cached. Zero disables caching.
func WithLookupCacheTTL(ttl time.Duration) EndpointOption {
	return func(s *EndpointService) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = cache.New(ttl, 2*ttl)
	}
}

// WithEndpointLogger sets the logger.
func WithEndpointLogger(logger *slog.Logger) EndpointOption {
	return func(s *EndpointService) {
		s.logger = logger
	}
}

// NewEndpointService creates an EndpointService.
func NewEndpointService(store EndpointStore, opts ...EndpointOption) *EndpointService {
	s := &EndpointService{
		store:  store,
		cache:  cache.New(30*time.Second, time.Minute),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeMethod(m string) string {
	return strings.ToUpper(strings.TrimSpace(m))
}

func toRateLimit(in *RateLimitInput) *storage.RateLimit {
	if in == nil {
		return nil
	}
	return &storage.RateLimit{Requests: in.Requests, Window: in.Window}
}

// Create registers an endpoint, overwriting the active one with the same path and method.
// If the gateway sync fails the saved record is returned together with a *SyncError.
func (s *EndpointService) Create(ctx context.Context, in EndpointInput) (*storage.Endpoint, error) {
	in.Method = normalizeMethod(in.Method)
	in.Path = strings.TrimSpace(in.Path)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if in.ResourceName == "" && in.Action == "" {
		if resource, action, ok := auth.InferResourceAction(in.Method, in.Path); ok {
			in.ResourceName, in.Action = resource, action
		}
	}

	e, err := s.store.UpsertEndpoint(ctx, in.Path, in.Method, storage.EndpointFields{
		Description:  in.Description,
		Module:       in.Module,
		IsPublic:     in.IsPublic,
		RoleCodes:    in.RoleCodes,
		RateLimit:    toRateLimit(in.RateLimit),
		ResourceName: in.ResourceName,
		Action:       in.Action,
		Actor:        auth.ActorFromContext(ctx),
	})
	if err != nil {
		return nil, err
	}

	s.changed(e.ID, "upsert")
	return e, s.syncAfterMutation(ctx, e)
}

// Update applies a partial change. Like Create, a failed sync returns the saved record and a *SyncError.
func (s *EndpointService) Update(ctx context.Context, id int64, in EndpointPatchInput) (*storage.Endpoint, error) {
	if in.Method != nil {
		m := normalizeMethod(*in.Method)
		in.Method = &m
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.RateLimit != nil && in.ClearRateLimit {
		return nil, &ValidationError{Field: "rateLimit", Message: "cannot be set and cleared in the same request"}
	}

	e, err := s.store.UpdateEndpoint(ctx, id, storage.EndpointPatch{
		Path:            in.Path,
		Method:          in.Method,
		Description:     in.Description,
		Module:          in.Module,
		IsPublic:        in.IsPublic,
		RoleCodes:       in.RoleCodes,
		RateLimit:       toRateLimit(in.RateLimit),
		ClearRate:       in.ClearRateLimit,
		ResourceName:    in.ResourceName,
		Action:          in.Action,
		ExpectedVersion: in.ExpectedVersion,
		Actor:           auth.ActorFromContext(ctx),
	})
	if err != nil {
		return nil, err
	}

	s.changed(e.ID, "update")
	return e, s.syncAfterMutation(ctx, e)
}

// Delete removes the endpoint's gateway route and then soft-deletes the record.
// If the gateway refuses, the record is left active.
func (s *EndpointService) Delete(ctx context.Context, id int64) error {
	e, err := s.store.GetEndpoint(ctx, id)
	if err != nil {
		return err
	}

	if s.syncer != nil && e.GatewayRouteID != "" {
		if err := s.syncer.DeleteRoute(ctx, e.GatewayRouteID); err != nil {
			return err
		}
	}

	if err := s.store.DeleteEndpoint(ctx, id, auth.ActorFromContext(ctx)); err != nil {
		return err
	}

	s.changed(id, "delete")
	s.logger.Info("endpoint deleted", "endpoint_id", id, "path", e.Path, "method", e.Method)
	return nil
}

// Sync pushes one endpoint to the gateway on demand.
func (s *EndpointService) Sync(ctx context.Context, id int64) (*storage.Endpoint, error) {
	if s.syncer == nil {
		return nil, errors.New("gateway sync is not configured")
	}
	e, err := s.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.syncer.SyncOne(ctx, e); err != nil {
		return e, err
	}
	s.InvalidateLookups()
	return e, nil
}

// Get returns an active endpoint by id.
func (s *EndpointService) Get(ctx context.Context, id int64) (*storage.Endpoint, error) {
	return s.store.GetEndpoint(ctx, id)
}

// List returns active endpoints, optionally restricted to a module.
func (s *EndpointService) List(ctx context.Context, module string) ([]*storage.Endpoint, error) {
	return s.store.ListEndpoints(ctx, module)
}

// GetByPath looks up an active endpoint by path and method. Results are cached.
func (s *EndpointService) GetByPath(ctx context.Context, path, method string) (*storage.Endpoint, error) {
	method = normalizeMethod(method)
	if path == "" || method == "" {
		return nil, &ValidationError{Field: "path", Message: "path and method are required"}
	}
	return s.cached("path:"+method+" "+path, func() (*storage.Endpoint, error) {
		return s.store.GetEndpointByPath(ctx, path, method)
	})
}

// GetByResource looks up an active endpoint by resource, action and method. Results are cached.
func (s *EndpointService) GetByResource(ctx context.Context, resource, action, method string) (*storage.Endpoint, error) {
	method = normalizeMethod(method)
	if resource == "" || action == "" || method == "" {
		return nil, &ValidationError{Field: "resource", Message: "resource, action and method are required"}
	}
	return s.cached("res:"+resource+"|"+action+"|"+method, func() (*storage.Endpoint, error) {
		return s.store.GetEndpointByResource(ctx, resource, action, method)
	})
}

// InvalidateLookups drops every cached lookup.
func (s *EndpointService) InvalidateLookups() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

func (s *EndpointService) cached(key string, load func() (*storage.Endpoint, error)) (*storage.Endpoint, error) {
	if s.cache != nil {
		if x, found := s.cache.Get(key); found {
			return x.(*storage.Endpoint), nil
		}
	}
	e, err := load()
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(key, e, cache.DefaultExpiration)
	}
	return e, nil
}

// changed drops local lookups and announces the mutation.
// With a bus attached the lookup cache is also flushed by the change consumer.
func (s *EndpointService) changed(id int64, op string) {
	s.InvalidateLookups()
	s.bus.publishChange(KindEndpoint, id, op)
}

func (s *EndpointService) syncAfterMutation(ctx context.Context, e *storage.Endpoint) error {
	if s.syncer == nil || !s.syncOnMutation {
		return nil
	}
	if err := s.syncer.SyncOne(ctx, e); err != nil {
		s.logger.Warn("gateway sync after mutation failed",
			"endpoint_id", e.ID,
			"path", e.Path,
			"method", e.Method,
			"error", err,
		)
		return &SyncError{EndpointID: e.ID, Err: err}
	}
	// The sync may have written the route identity; lookups cached mid-sync predate it.
	s.InvalidateLookups()
	return nil
}
