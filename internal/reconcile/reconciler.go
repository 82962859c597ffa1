// Package reconcile converges the gateway's routes and plugins onto the endpoint registry.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/medcore/gateway-reconciler/internal/gateway"
	"github.com/medcore/gateway-reconciler/internal/metrics"
	"github.com/medcore/gateway-reconciler/internal/storage"
)

const tracerName = "github.com/medcore/gateway-reconciler/internal/reconcile"

// Store is the slice of the endpoint registry the reconciler needs.
type Store interface {
	ListEndpoints(ctx context.Context, module string) ([]*storage.Endpoint, error)
	SetGatewayRoute(ctx context.Context, id int64, routeID, routeName string) error
}

// Gateway is the slice of the gateway admin API the reconciler drives.
type Gateway interface {
	GetRoute(ctx context.Context, nameOrID string) (*gateway.Route, error)
	CreateRoute(ctx context.Context, serviceID string, req *gateway.RouteRequest) (*gateway.Route, error)
	UpdateRoute(ctx context.Context, nameOrID string, req *gateway.RouteRequest) (*gateway.Route, error)
	DeleteRoute(ctx context.Context, nameOrID string) error
	ListServiceRoutes(ctx context.Context, serviceID string) ([]gateway.Route, error)
	ListRoutePlugins(ctx context.Context, routeID string) ([]gateway.Plugin, error)
	AddPlugin(ctx context.Context, routeID string, req *gateway.PluginRequest) (*gateway.Plugin, error)
	DeletePlugin(ctx context.Context, id string) error
}

// Failure describes one endpoint that could not be synced during SyncAll.
type Failure struct {
	EndpointID int64  `json:"endpointId"`
	Path       string `json:"path"`
	Method     string `json:"method"`
	Error      string `json:"error"`
}

// Result summarizes a full sync.
type Result struct {
	Succeeded      int       `json:"succeeded"`
	Total          int       `json:"total"`
	Failures       []Failure `json:"failures"`
	OrphansDeleted int       `json:"orphansDeleted"`
}

// Reconciler pushes endpoint definitions to the gateway.
type Reconciler struct {
	store       Store
	gw          Gateway
	serviceID   string
	logger      *slog.Logger
	concurrency int
	locks       *keyedMutex
	tracer      trace.Tracer
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithConcurrency sets how many endpoints SyncAll converges at once. Values below 2 mean sequential.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		r.concurrency = n
	}
}

// New creates a Reconciler that attaches every managed route to serviceID.
func New(store Store, gw Gateway, serviceID string, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		gw:          gw,
		serviceID:   serviceID,
		logger:      slog.Default(),
		concurrency: 1,
		locks:       newKeyedMutex(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RouteName returns the deterministic gateway route name for an endpoint.
func RouteName(endpointID int64) string {
	return fmt.Sprintf("route-%d", endpointID)
}

// pluginRequests returns the plugins an endpoint requires, in attach order.
func pluginRequests(e *storage.Endpoint) []*gateway.PluginRequest {
	var reqs []*gateway.PluginRequest
	if !e.IsPublic {
		reqs = append(reqs, &gateway.PluginRequest{
			Name: gateway.PluginJWT,
			Config: map[string]any{
				"header_names":     []string{"Authorization"},
				"claims_to_verify": []string{"exp"},
			},
			Enabled: true,
		})
	}
	if e.RateLimit != nil {
		reqs = append(reqs, &gateway.PluginRequest{
			Name: gateway.PluginRateLimiting,
			Config: map[string]any{
				e.RateLimit.Window: e.RateLimit.Requests,
				"policy":           "local",
			},
			Enabled: true,
		})
	}
	return reqs
}

// SyncOne converges the gateway route and plugins of a single endpoint.
// Gateway failures are returned as *UpstreamGatewayError; a failure to persist
// the route identity is returned as the registry reported it.
func (r *Reconciler) SyncOne(ctx context.Context, e *storage.Endpoint) (err error) {
	name := RouteName(e.ID)

	ctx, span := r.tracer.Start(ctx, "reconcile.SyncOne", trace.WithAttributes(
		attribute.Int64("endpoint.id", e.ID),
		attribute.String("endpoint.path", e.Path),
		attribute.String("endpoint.method", e.Method),
		attribute.String("gateway.route_name", name),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordEndpointSync("failure")
		} else {
			metrics.RecordEndpointSync("success")
		}
		span.End()
	}()

	unlock := r.locks.Lock(name)
	defer unlock()

	req := &gateway.RouteRequest{
		Name:      name,
		Paths:     []string{e.Path},
		Methods:   []string{strings.ToUpper(e.Method)},
		StripPath: false,
		Service:   &gateway.ServiceRef{ID: r.serviceID},
	}

	var route *gateway.Route
	_, err = r.gw.GetRoute(ctx, name)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		route, err = r.gw.CreateRoute(ctx, r.serviceID, req)
		if err != nil {
			return upstream("create route", name, err)
		}
	case err != nil:
		return upstream("get route", name, err)
	default:
		route, err = r.gw.UpdateRoute(ctx, name, req)
		if err != nil {
			return upstream("update route", name, err)
		}
	}

	if route.ID != e.GatewayRouteID || name != e.GatewayRouteName {
		if err := r.store.SetGatewayRoute(ctx, e.ID, route.ID, name); err != nil {
			return err
		}
		e.GatewayRouteID = route.ID
		e.GatewayRouteName = name
	}

	plugins, err := r.gw.ListRoutePlugins(ctx, route.ID)
	if err != nil {
		return upstream("list plugins", name, err)
	}
	for _, p := range plugins {
		if err := r.gw.DeletePlugin(ctx, p.ID); err != nil && !errors.Is(err, gateway.ErrNotFound) {
			return upstream("delete plugin "+p.Name, name, err)
		}
	}

	for _, p := range pluginRequests(e) {
		if _, err := r.gw.AddPlugin(ctx, route.ID, p); err != nil {
			return upstream("attach plugin "+p.Name, name, err)
		}
	}

	r.logger.Debug("endpoint synced",
		"endpoint_id", e.ID,
		"path", e.Path,
		"method", e.Method,
		"route_id", route.ID,
	)
	return nil
}

// SyncAll deletes orphan routes and then converges every active endpoint.
// Per-endpoint failures are collected in the result; only a failure to read the
// registry is returned as an error.
func (r *Reconciler) SyncAll(ctx context.Context) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.SyncAll")
	defer span.End()

	endpoints, err := r.store.ListEndpoints(ctx, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordSyncRun("error")
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}

	result := &Result{
		Total:    len(endpoints),
		Failures: []Failure{},
	}

	result.OrphansDeleted = r.deleteOrphans(ctx, endpoints)

	errs := make([]error, len(endpoints))
	if r.concurrency > 1 {
		var g errgroup.Group
		g.SetLimit(r.concurrency)
		for i, e := range endpoints {
			g.Go(func() error {
				errs[i] = r.SyncOne(ctx, e)
				return nil
			})
		}
		//nolint:errcheck // workers never return errors; failures are collected in errs
		g.Wait()
	} else {
		for i, e := range endpoints {
			errs[i] = r.SyncOne(ctx, e)
		}
	}

	for i, e := range endpoints {
		if errs[i] == nil {
			result.Succeeded++
			continue
		}
		r.logger.Warn("endpoint sync failed",
			"endpoint_id", e.ID,
			"path", e.Path,
			"method", e.Method,
			"error", errs[i],
		)
		result.Failures = append(result.Failures, Failure{
			EndpointID: e.ID,
			Path:       e.Path,
			Method:     e.Method,
			Error:      errs[i].Error(),
		})
	}

	span.SetAttributes(
		attribute.Int("sync.total", result.Total),
		attribute.Int("sync.succeeded", result.Succeeded),
		attribute.Int("sync.orphans_deleted", result.OrphansDeleted),
	)

	switch {
	case len(result.Failures) == 0:
		metrics.RecordSyncRun("success")
	case result.Succeeded == 0:
		span.SetStatus(codes.Error, "all endpoint syncs failed")
		metrics.RecordSyncRun("error")
	default:
		metrics.RecordSyncRun("partial")
	}

	r.logger.Info("full sync finished",
		"succeeded", result.Succeeded,
		"total", result.Total,
		"failed", len(result.Failures),
		"orphans_deleted", result.OrphansDeleted,
	)

	return result, nil
}

// deleteOrphans removes service routes not named after an active endpoint.
// Listing and deletion failures are logged and skipped.
func (r *Reconciler) deleteOrphans(ctx context.Context, endpoints []*storage.Endpoint) int {
	expected := make(map[string]struct{}, len(endpoints))
	for _, e := range endpoints {
		expected[RouteName(e.ID)] = struct{}{}
	}

	routes, err := r.gw.ListServiceRoutes(ctx, r.serviceID)
	if err != nil {
		r.logger.Warn("failed to list gateway routes, skipping orphan cleanup", "error", err)
		return 0
	}

	deleted := 0
	for _, route := range routes {
		if _, ok := expected[route.Name]; ok {
			continue
		}
		if err := r.gw.DeleteRoute(ctx, route.ID); err != nil {
			if !errors.Is(err, gateway.ErrNotFound) {
				r.logger.Warn("failed to delete orphan route",
					"route_id", route.ID,
					"route_name", route.Name,
					"error", err,
				)
			}
			continue
		}
		deleted++
		metrics.RecordOrphanDeleted()
		r.logger.Info("orphan route deleted", "route_id", route.ID, "route_name", route.Name)
	}
	return deleted
}

// DeleteRoute removes a gateway route by id. A route that is already gone counts as success.
func (r *Reconciler) DeleteRoute(ctx context.Context, routeID string) error {
	ctx, span := r.tracer.Start(ctx, "reconcile.DeleteRoute",
		trace.WithAttributes(attribute.String("gateway.route_id", routeID)))
	defer span.End()

	err := r.gw.DeleteRoute(ctx, routeID)
	if err == nil || errors.Is(err, gateway.ErrNotFound) {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return upstream("delete route", routeID, err)
}

// IsUpstream reports whether err came from the gateway and, if so, the HTTP status the gateway returned (0 if none).
func IsUpstream(err error) (int, bool) {
	var ue *UpstreamGatewayError
	if !errors.As(err, &ue) {
		return 0, false
	}
	var apiErr *gateway.APIError
	if errors.As(ue.Err, &apiErr) {
		return apiErr.StatusCode, true
	}
	if errors.Is(ue.Err, gateway.ErrUnauthorized) {
		return http.StatusUnauthorized, true
	}
	return 0, true
}
