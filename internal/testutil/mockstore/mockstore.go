// Package mockstore provides a configurable mock implementation of storage.Storage for testing.
//
// The MockStorage type uses function fields for each method, allowing tests to customize behavior
// as needed while providing sensible defaults for methods that aren't customized.
package mockstore

import (
	"context"

	"github.com/medcore/gateway-reconciler/internal/storage"
)

// MockStorage is a configurable mock implementation of storage.Storage.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a sensible default value.
type MockStorage struct {
	// Endpoint registry
	UpsertEndpointFunc        func(ctx context.Context, path, method string, fields storage.EndpointFields) (*storage.Endpoint, error)
	UpdateEndpointFunc        func(ctx context.Context, id int64, patch storage.EndpointPatch) (*storage.Endpoint, error)
	DeleteEndpointFunc        func(ctx context.Context, id int64, actor string) error
	GetEndpointFunc           func(ctx context.Context, id int64) (*storage.Endpoint, error)
	GetEndpointByPathFunc     func(ctx context.Context, path, method string) (*storage.Endpoint, error)
	GetEndpointByResourceFunc func(ctx context.Context, resourceName, action, method string) (*storage.Endpoint, error)
	ListEndpointsFunc         func(ctx context.Context, module string) ([]*storage.Endpoint, error)
	SetGatewayRouteFunc       func(ctx context.Context, id int64, routeID, routeName string) error

	// Feature registry
	UpsertFeatureFunc      func(ctx context.Context, code string, fields storage.FeatureFields) (*storage.Feature, error)
	UpdateFeatureFunc      func(ctx context.Context, id int64, patch storage.FeaturePatch) (*storage.Feature, error)
	DeleteFeatureFunc      func(ctx context.Context, id int64, actor string) error
	GetFeatureFunc         func(ctx context.Context, id int64) (*storage.Feature, error)
	GetFeatureByCodeFunc   func(ctx context.Context, code string) (*storage.Feature, error)
	ListFeaturesFunc       func(ctx context.Context) ([]*storage.Feature, error)
	ListFeatureMatchesFunc func(ctx context.Context, roleCodes []string) ([]*storage.Feature, error)

	// Lifecycle
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error
}

var _ storage.Storage = (*MockStorage)(nil)

// UpsertEndpoint creates or overwrites the endpoint identified by path and method.
func (m *MockStorage) UpsertEndpoint(ctx context.Context, path, method string, fields storage.EndpointFields) (*storage.Endpoint, error) {
	if m.UpsertEndpointFunc != nil {
		return m.UpsertEndpointFunc(ctx, path, method, fields)
	}
	return &storage.Endpoint{
		ID:           1,
		Path:         path,
		Method:       method,
		Description:  fields.Description,
		Module:       fields.Module,
		IsPublic:     fields.IsPublic,
		RoleCodes:    fields.RoleCodes,
		RateLimit:    fields.RateLimit,
		ResourceName: fields.ResourceName,
		Action:       fields.Action,
		Audit:        storage.Audit{Version: 1, IsActive: true},
	}, nil
}

// UpdateEndpoint applies a partial update.
func (m *MockStorage) UpdateEndpoint(ctx context.Context, id int64, patch storage.EndpointPatch) (*storage.Endpoint, error) {
	if m.UpdateEndpointFunc != nil {
		return m.UpdateEndpointFunc(ctx, id, patch)
	}
	return nil, storage.ErrNotFound
}

// DeleteEndpoint soft-deletes an endpoint.
func (m *MockStorage) DeleteEndpoint(ctx context.Context, id int64, actor string) error {
	if m.DeleteEndpointFunc != nil {
		return m.DeleteEndpointFunc(ctx, id, actor)
	}
	return nil
}

// GetEndpoint retrieves an active endpoint by ID.
func (m *MockStorage) GetEndpoint(ctx context.Context, id int64) (*storage.Endpoint, error) {
	if m.GetEndpointFunc != nil {
		return m.GetEndpointFunc(ctx, id)
	}
	return nil, storage.ErrNotFound
}

// GetEndpointByPath retrieves an active endpoint by path and method.
func (m *MockStorage) GetEndpointByPath(ctx context.Context, path, method string) (*storage.Endpoint, error) {
	if m.GetEndpointByPathFunc != nil {
		return m.GetEndpointByPathFunc(ctx, path, method)
	}
	return nil, storage.ErrNotFound
}

// GetEndpointByResource retrieves an active endpoint by resource, action and method.
func (m *MockStorage) GetEndpointByResource(ctx context.Context, resourceName, action, method string) (*storage.Endpoint, error) {
	if m.GetEndpointByResourceFunc != nil {
		return m.GetEndpointByResourceFunc(ctx, resourceName, action, method)
	}
	return nil, storage.ErrNotFound
}

// ListEndpoints lists active endpoints, optionally filtered by module.
func (m *MockStorage) ListEndpoints(ctx context.Context, module string) ([]*storage.Endpoint, error) {
	if m.ListEndpointsFunc != nil {
		return m.ListEndpointsFunc(ctx, module)
	}
	return []*storage.Endpoint{}, nil
}

// SetGatewayRoute records the gateway route backing an endpoint.
func (m *MockStorage) SetGatewayRoute(ctx context.Context, id int64, routeID, routeName string) error {
	if m.SetGatewayRouteFunc != nil {
		return m.SetGatewayRouteFunc(ctx, id, routeID, routeName)
	}
	return nil
}

// UpsertFeature creates or overwrites the feature identified by code.
func (m *MockStorage) UpsertFeature(ctx context.Context, code string, fields storage.FeatureFields) (*storage.Feature, error) {
	if m.UpsertFeatureFunc != nil {
		return m.UpsertFeatureFunc(ctx, code, fields)
	}
	return &storage.Feature{
		ID:         1,
		Code:       code,
		Name:       fields.Name,
		Icon:       fields.Icon,
		Route:      fields.Route,
		ParentID:   fields.ParentID,
		OrderIndex: fields.OrderIndex,
		RoleCodes:  fields.RoleCodes,
		Audit:      storage.Audit{Version: 1, IsActive: true},
	}, nil
}

// UpdateFeature applies a partial update.
func (m *MockStorage) UpdateFeature(ctx context.Context, id int64, patch storage.FeaturePatch) (*storage.Feature, error) {
	if m.UpdateFeatureFunc != nil {
		return m.UpdateFeatureFunc(ctx, id, patch)
	}
	return nil, storage.ErrNotFound
}

// DeleteFeature soft-deletes a feature.
func (m *MockStorage) DeleteFeature(ctx context.Context, id int64, actor string) error {
	if m.DeleteFeatureFunc != nil {
		return m.DeleteFeatureFunc(ctx, id, actor)
	}
	return nil
}

// GetFeature retrieves a live feature by ID.
func (m *MockStorage) GetFeature(ctx context.Context, id int64) (*storage.Feature, error) {
	if m.GetFeatureFunc != nil {
		return m.GetFeatureFunc(ctx, id)
	}
	return nil, storage.ErrNotFound
}

// GetFeatureByCode retrieves a live feature by code.
func (m *MockStorage) GetFeatureByCode(ctx context.Context, code string) (*storage.Feature, error) {
	if m.GetFeatureByCodeFunc != nil {
		return m.GetFeatureByCodeFunc(ctx, code)
	}
	return nil, storage.ErrNotFound
}

// ListFeatures lists live features.
func (m *MockStorage) ListFeatures(ctx context.Context) ([]*storage.Feature, error) {
	if m.ListFeaturesFunc != nil {
		return m.ListFeaturesFunc(ctx)
	}
	return []*storage.Feature{}, nil
}

// ListFeatureMatches returns one row per (active feature, matching role).
func (m *MockStorage) ListFeatureMatches(ctx context.Context, roleCodes []string) ([]*storage.Feature, error) {
	if m.ListFeatureMatchesFunc != nil {
		return m.ListFeatureMatchesFunc(ctx, roleCodes)
	}
	return []*storage.Feature{}, nil
}

// Ping verifies database connectivity.
func (m *MockStorage) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Close closes the storage connection.
func (m *MockStorage) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
