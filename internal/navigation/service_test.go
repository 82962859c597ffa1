package navigation

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcore/gateway-reconciler/internal/storage"
	"github.com/medcore/gateway-reconciler/internal/testutil/mockstore"
)

func countingStore(calls *atomic.Int32) *mockstore.MockStorage {
	return &mockstore.MockStorage{
		ListFeatureMatchesFunc: func(ctx context.Context, roles []string) ([]*storage.Feature, error) {
			calls.Add(1)
			return matches(catalogue, roles...), nil
		},
	}
}

func TestServiceTree(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	svc := NewService(countingStore(&calls))
	ctx := context.Background()

	tree, err := svc.Tree(ctx, []string{"B", "A"})
	require.NoError(t, err)
	require.Equal(t, []string{"ROOT"}, codes(tree))
	assert.Equal(t, []string{"CHILD"}, codes(tree[0].Children))

	// Same role set in a different order and with duplicates hits the cache.
	_, err = svc.Tree(ctx, []string{"A", "B", "A"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	svc.Invalidate()
	_, err = svc.Tree(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestServiceEmptyRoles(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	svc := NewService(countingStore(&calls))

	for _, roles := range [][]string{nil, {}, {" ", ""}} {
		tree, err := svc.Tree(context.Background(), roles)
		require.NoError(t, err)
		assert.NotNil(t, tree)
		assert.Empty(t, tree)
	}
	assert.Zero(t, calls.Load())
}

func TestServiceCacheDisabled(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	svc := NewService(countingStore(&calls), WithCacheTTL(0))

	for i := 0; i < 3; i++ {
		_, err := svc.Tree(context.Background(), []string{"C"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
	svc.Invalidate()
}

func TestServiceSourceError(t *testing.T) {
	t.Parallel()
	boom := errors.New("query failed")
	svc := NewService(&mockstore.MockStorage{
		ListFeatureMatchesFunc: func(ctx context.Context, roles []string) ([]*storage.Feature, error) {
			return nil, boom
		},
	})

	_, err := svc.Tree(context.Background(), []string{"A"})
	require.ErrorIs(t, err, boom)
}

func TestServiceCacheKeySeparatesRoleSets(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	store := &mockstore.MockStorage{
		ListFeatureMatchesFunc: func(ctx context.Context, roles []string) ([]*storage.Feature, error) {
			id := calls.Add(1)
			return []*storage.Feature{{ID: int64(id), Code: strings.Join(roles, "|"), RoleCodes: roles}}, nil
		},
	}
	svc := NewService(store)
	ctx := context.Background()

	pair, err := svc.Tree(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A|B"}, codes(pair))

	single, err := svc.Tree(ctx, []string{"A,B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A,B"}, codes(single))
	assert.Equal(t, int32(2), calls.Load())
}
