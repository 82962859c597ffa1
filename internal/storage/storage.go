// Package storage provides types and interfaces for SQLite persistence operations.
package storage

import (
	"context"
)

// Storage defines the interface for SQLite persistence operations.
type Storage interface {
	// Endpoint registry
	UpsertEndpoint(ctx context.Context, path, method string, fields EndpointFields) (*Endpoint, error)
	UpdateEndpoint(ctx context.Context, id int64, patch EndpointPatch) (*Endpoint, error)
	DeleteEndpoint(ctx context.Context, id int64, actor string) error
	GetEndpoint(ctx context.Context, id int64) (*Endpoint, error)
	GetEndpointByPath(ctx context.Context, path, method string) (*Endpoint, error)
	GetEndpointByResource(ctx context.Context, resourceName, action, method string) (*Endpoint, error)
	ListEndpoints(ctx context.Context, module string) ([]*Endpoint, error)
	SetGatewayRoute(ctx context.Context, id int64, routeID, routeName string) error

	// Feature registry
	UpsertFeature(ctx context.Context, code string, fields FeatureFields) (*Feature, error)
	UpdateFeature(ctx context.Context, id int64, patch FeaturePatch) (*Feature, error)
	DeleteFeature(ctx context.Context, id int64, actor string) error
	GetFeature(ctx context.Context, id int64) (*Feature, error)
	GetFeatureByCode(ctx context.Context, code string) (*Feature, error)
	ListFeatures(ctx context.Context) ([]*Feature, error)
	ListFeatureMatches(ctx context.Context, roleCodes []string) ([]*Feature, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

var _ Storage = (*SQLiteStorage)(nil)
