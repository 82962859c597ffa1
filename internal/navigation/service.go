package navigation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/medcore/gateway-reconciler/internal/storage"
)

// Source returns one row per (active feature, matching role).
type Source interface {
	ListFeatureMatches(ctx context.Context, roleCodes []string) ([]*storage.Feature, error)
}

// Service serves navigation trees, caching them per role set.
type Service struct {
	source Source
	cache  *cache.Cache
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCacheTTL sets how long a built tree is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = cache.New(ttl, 2*ttl)
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a navigation Service. Trees are cached for 30s unless overridden.
func NewService(source Source, opts ...Option) *Service {
	s := &Service{
		source: source,
		cache:  cache.New(30*time.Second, time.Minute),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tree returns the navigation forest visible to the given roles.
// An empty role set yields an empty forest without touching the store.
func (s *Service) Tree(ctx context.Context, roleCodes []string) ([]*Node, error) {
	roles := normalize(roleCodes)
	if len(roles) == 0 {
		return []*Node{}, nil
	}

	// Quoted so role codes containing separators cannot collide.
	key := fmt.Sprintf("%q", roles)
	if s.cache != nil {
		if x, found := s.cache.Get(key); found {
			return x.([]*Node), nil
		}
	}

	rows, err := s.source.ListFeatureMatches(ctx, roles)
	if err != nil {
		return nil, err
	}

	tree := Build(rows)
	if s.cache != nil {
		s.cache.Set(key, tree, cache.DefaultExpiration)
	}
	s.logger.Debug("navigation tree built", "roles", roles, "rows", len(rows), "roots", len(tree))
	return tree, nil
}

// Invalidate drops every cached tree.
func (s *Service) Invalidate() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

func normalize(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
