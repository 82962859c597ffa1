package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/medcore/gateway-reconciler/internal/auth"
	"github.com/medcore/gateway-reconciler/internal/storage"
)

// FeatureStore is the persistence the feature service needs.
type FeatureStore interface {
	UpsertFeature(ctx context.Context, code string, fields storage.FeatureFields) (*storage.Feature, error)
	UpdateFeature(ctx context.Context, id int64, patch storage.FeaturePatch) (*storage.Feature, error)
	DeleteFeature(ctx context.Context, id int64, actor string) error
	GetFeature(ctx context.Context, id int64) (*storage.Feature, error)
	GetFeatureByCode(ctx context.Context, code string) (*storage.Feature, error)
	ListFeatures(ctx context.Context) ([]*storage.Feature, error)
}

// FeatureInput is the full definition used to create or overwrite a feature.
type FeatureInput struct {
	Code       string   `json:"code" validate:"required,max=64"`
	Name       string   `json:"name" validate:"required,max=128"`
	Icon       string   `json:"icon" validate:"max=64"`
	Route      string   `json:"route" validate:"max=256"`
	ParentID   *int64   `json:"parentId" validate:"omitempty,gt=0"`
	OrderIndex int      `json:"orderIndex"`
	RoleCodes  []string `json:"roleCodes" validate:"dive,required,max=64"`
}

// FeaturePatchInput is a partial update. Code is accepted only to reject it.
type FeaturePatchInput struct {
	Code            *string   `json:"code"`
	Name            *string   `json:"name" validate:"omitempty,max=128"`
	Icon            *string   `json:"icon" validate:"omitempty,max=64"`
	Route           *string   `json:"route" validate:"omitempty,max=256"`
	ParentID        *int64    `json:"parentId" validate:"omitempty,gt=0"`
	ClearParent     bool      `json:"clearParent"`
	OrderIndex      *int      `json:"orderIndex"`
	IsActive        *bool     `json:"isActive"`
	RoleCodes       *[]string `json:"roleCodes" validate:"omitempty,dive,required,max=64"`
	ExpectedVersion *int64    `json:"expectedVersion"`
}

// FeatureService validates and applies feature registry changes.
type FeatureService struct {
	store  FeatureStore
	bus    *Bus
	logger *slog.Logger
}

// NewFeatureService creates a FeatureService. bus may be nil.
func NewFeatureService(store FeatureStore, bus *Bus, logger *slog.Logger) *FeatureService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeatureService{store: store, bus: bus, logger: logger}
}

// parentError maps a storage parent rejection to a ValidationError.
func parentError(err error) error {
	if errors.Is(err, storage.ErrInvalidParent) {
		return &ValidationError{Field: "parentId", Message: "must reference another existing feature without creating a cycle"}
	}
	return err
}

// Create registers a feature, overwriting the live one with the same code.
func (s *FeatureService) Create(ctx context.Context, in FeatureInput) (*storage.Feature, error) {
	in.Code = strings.TrimSpace(in.Code)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	f, err := s.store.UpsertFeature(ctx, in.Code, storage.FeatureFields{
		Name:       in.Name,
		Icon:       in.Icon,
		Route:      in.Route,
		ParentID:   in.ParentID,
		OrderIndex: in.OrderIndex,
		RoleCodes:  in.RoleCodes,
		Actor:      auth.ActorFromContext(ctx),
	})
	if err != nil {
		return nil, parentError(err)
	}

	s.bus.publishChange(KindFeature, f.ID, "upsert")
	return f, nil
}

// Update applies a partial change. The feature code is immutable.
func (s *FeatureService) Update(ctx context.Context, id int64, in FeaturePatchInput) (*storage.Feature, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.ParentID != nil && in.ClearParent {
		return nil, &ValidationError{Field: "parentId", Message: "cannot be set and cleared in the same request"}
	}

	if in.Code != nil {
		current, err := s.store.GetFeature(ctx, id)
		if err != nil {
			return nil, err
		}
		if *in.Code != current.Code {
			return nil, &ValidationError{Field: "code", Message: "is immutable after creation"}
		}
	}

	f, err := s.store.UpdateFeature(ctx, id, storage.FeaturePatch{
		Name:            in.Name,
		Icon:            in.Icon,
		Route:           in.Route,
		ParentID:        in.ParentID,
		ClearParent:     in.ClearParent,
		OrderIndex:      in.OrderIndex,
		IsActive:        in.IsActive,
		RoleCodes:       in.RoleCodes,
		ExpectedVersion: in.ExpectedVersion,
		Actor:           auth.ActorFromContext(ctx),
	})
	if err != nil {
		return nil, parentError(err)
	}

	s.bus.publishChange(KindFeature, f.ID, "update")
	return f, nil
}

// Delete soft-deletes a feature.
func (s *FeatureService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteFeature(ctx, id, auth.ActorFromContext(ctx)); err != nil {
		return err
	}
	s.bus.publishChange(KindFeature, id, "delete")
	s.logger.Info("feature deleted", "feature_id", id)
	return nil
}

// Get returns a live feature by id.
func (s *FeatureService) Get(ctx context.Context, id int64) (*storage.Feature, error) {
	return s.store.GetFeature(ctx, id)
}

// GetByCode returns a live feature by code.
func (s *FeatureService) GetByCode(ctx context.Context, code string) (*storage.Feature, error) {
	return s.store.GetFeatureByCode(ctx, code)
}

// List returns live features.
func (s *FeatureService) List(ctx context.Context) ([]*storage.Feature, error) {
	return s.store.ListFeatures(ctx)
}
