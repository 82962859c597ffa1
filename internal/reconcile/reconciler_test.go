package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcore/gateway-reconciler/internal/gateway"
	"github.com/medcore/gateway-reconciler/internal/storage"
	"github.com/medcore/gateway-reconciler/internal/testutil/mockgateway"
	"github.com/medcore/gateway-reconciler/internal/testutil/mockstore"
)

const testService = "svc-main"

type fixture struct {
	store *storage.SQLiteStorage
	mock  *mockgateway.Server
	rec   *Reconciler
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mock := mockgateway.New()
	t.Cleanup(mock.Close)
	mock.AddService(testService)

	client := gateway.NewClient(gateway.WithBaseURL(mock.URL()))
	return &fixture{
		store: store,
		mock:  mock,
		rec:   New(store, client, testService, opts...),
	}
}

func (f *fixture) upsert(t *testing.T, path, method string, fields storage.EndpointFields) *storage.Endpoint {
	t.Helper()
	e, err := f.store.UpsertEndpoint(context.Background(), path, method, fields)
	require.NoError(t, err)
	return e
}

func pluginNames(plugins []mockgateway.Plugin) []string {
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, p.Name)
	}
	return names
}

func TestRouteName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "route-42", RouteName(42))
	assert.Equal(t, RouteName(7), RouteName(7))
	assert.NotEqual(t, RouteName(7), RouteName(70))
}

func TestPluginRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint storage.Endpoint
		want     []string
	}{
		{"public no limit", storage.Endpoint{IsPublic: true}, nil},
		{"protected", storage.Endpoint{}, []string{gateway.PluginJWT}},
		{"public limited", storage.Endpoint{IsPublic: true, RateLimit: &storage.RateLimit{Requests: 5, Window: "second"}}, []string{gateway.PluginRateLimiting}},
		{"protected limited", storage.Endpoint{RateLimit: &storage.RateLimit{Requests: 100, Window: "minute"}}, []string{gateway.PluginJWT, gateway.PluginRateLimiting}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reqs := pluginRequests(&tt.endpoint)
			var got []string
			for _, r := range reqs {
				got = append(got, r.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	limited := pluginRequests(&storage.Endpoint{RateLimit: &storage.RateLimit{Requests: 100, Window: "minute"}})
	assert.Equal(t, map[string]any{"minute": 100, "policy": "local"}, limited[1].Config)
	assert.Equal(t, []string{"Authorization"}, limited[0].Config["header_names"])
	assert.Equal(t, []string{"exp"}, limited[0].Config["claims_to_verify"])
}

func TestSyncOneCreatesRouteAndPlugins(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	e := f.upsert(t, "/api/patients", "get", storage.EndpointFields{
		RoleCodes: []string{"DOCTOR"},
		RateLimit: &storage.RateLimit{Requests: 100, Window: storage.WindowMinute},
	})

	require.NoError(t, f.rec.SyncOne(ctx, e))

	route := f.mock.GetRoute(RouteName(e.ID))
	require.NotNil(t, route)
	assert.Equal(t, []string{"/api/patients"}, route.Paths)
	assert.Equal(t, []string{"GET"}, route.Methods)
	assert.False(t, route.StripPath)
	assert.Equal(t, testService, route.Service.ID)

	plugins := f.mock.Plugins(route.ID)
	assert.Equal(t, []string{gateway.PluginJWT, gateway.PluginRateLimiting}, pluginNames(plugins))
	assert.EqualValues(t, 100, plugins[1].Config["minute"])
	assert.Equal(t, "local", plugins[1].Config["policy"])

	stored, err := f.store.GetEndpoint(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, route.ID, stored.GatewayRouteID)
	assert.Equal(t, RouteName(e.ID), stored.GatewayRouteName)
	assert.Equal(t, e.Version, stored.Version, "recording the route must not bump the version")
}

func TestSyncOneIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	e := f.upsert(t, "/api/records", "POST", storage.EndpointFields{RoleCodes: []string{"NURSE"}})

	require.NoError(t, f.rec.SyncOne(ctx, e))
	first := f.mock.GetRoute(RouteName(e.ID))
	require.NotNil(t, first)

	require.NoError(t, f.rec.SyncOne(ctx, e))
	require.NoError(t, f.rec.SyncOne(ctx, e))

	routes := f.mock.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, first.ID, routes[0].ID)
	assert.Equal(t, []string{gateway.PluginJWT}, pluginNames(f.mock.Plugins(first.ID)))
}

func TestSyncOneReplacesPlugins(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	e := f.upsert(t, "/api/labs", "GET", storage.EndpointFields{
		RateLimit: &storage.RateLimit{Requests: 10, Window: storage.WindowSecond},
	})
	require.NoError(t, f.rec.SyncOne(ctx, e))

	routeID := f.mock.GetRoute(RouteName(e.ID)).ID
	f.mock.AddPlugin(routeID, "cors", map[string]any{"origins": []string{"*"}})

	e, err := f.store.UpdateEndpoint(ctx, e.ID, storage.EndpointPatch{
		IsPublic:  ptr(true),
		ClearRate: true,
	})
	require.NoError(t, err)
	require.NoError(t, f.rec.SyncOne(ctx, e))

	assert.Empty(t, f.mock.Plugins(routeID), "public endpoint without a rate limit carries no plugins")
}

func TestSyncOneAdoptsExistingRoute(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	e := f.upsert(t, "/api/visits", "GET", storage.EndpointFields{IsPublic: true})
	existing := f.mock.AddRoute(testService, RouteName(e.ID), []string{"/old"}, []string{"PUT"})

	require.NoError(t, f.rec.SyncOne(ctx, e))

	route := f.mock.GetRoute(existing)
	require.NotNil(t, route)
	assert.Equal(t, []string{"/api/visits"}, route.Paths)
	assert.Equal(t, []string{"GET"}, route.Methods)
	assert.Len(t, f.mock.Routes(), 1)

	stored, err := f.store.GetEndpoint(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, existing, stored.GatewayRouteID)
}

func TestSyncOneSkipsRouteWriteWhenUnchanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	e := f.upsert(t, "/api/a", "GET", storage.EndpointFields{IsPublic: true})
	require.NoError(t, f.rec.SyncOne(ctx, e))

	var calls atomic.Int32
	store := &mockstore.MockStorage{
		SetGatewayRouteFunc: func(ctx context.Context, id int64, routeID, routeName string) error {
			calls.Add(1)
			return nil
		},
	}
	rec := New(store, gateway.NewClient(gateway.WithBaseURL(f.mock.URL())), testService)

	require.NoError(t, rec.SyncOne(ctx, e))
	assert.Zero(t, calls.Load())
}

func TestSyncOneErrors(t *testing.T) {
	t.Parallel()

	t.Run("gateway failure is upstream", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		e := f.upsert(t, "/api/x", "GET", storage.EndpointFields{})
		f.mock.FailRoute(RouteName(e.ID), http.StatusInternalServerError)

		err := f.rec.SyncOne(context.Background(), e)
		require.Error(t, err)

		var ue *UpstreamGatewayError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, RouteName(e.ID), ue.RouteName)
		assert.Equal(t, "get route", ue.Op)

		status, ok := IsUpstream(err)
		assert.True(t, ok)
		assert.Equal(t, http.StatusInternalServerError, status)
	})

	t.Run("plugin attach failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		e := f.upsert(t, "/api/x", "GET", storage.EndpointFields{})
		require.NoError(t, f.rec.SyncOne(context.Background(), e))

		routeID := f.mock.GetRoute(RouteName(e.ID)).ID
		f.mock.FailPath(http.MethodPost, "/routes/"+routeID+"/plugins", http.StatusBadRequest)

		err := f.rec.SyncOne(context.Background(), e)
		var ue *UpstreamGatewayError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "attach plugin jwt", ue.Op)
	})

	t.Run("store failure passes through", func(t *testing.T) {
		t.Parallel()
		mock := mockgateway.New()
		t.Cleanup(mock.Close)
		mock.AddService(testService)

		storeErr := errors.New("disk full")
		store := &mockstore.MockStorage{
			SetGatewayRouteFunc: func(ctx context.Context, id int64, routeID, routeName string) error {
				return storeErr
			},
		}
		rec := New(store, gateway.NewClient(gateway.WithBaseURL(mock.URL())), testService)

		err := rec.SyncOne(context.Background(), &storage.Endpoint{ID: 3, Path: "/api/y", Method: "GET"})
		require.ErrorIs(t, err, storeErr)
		_, ok := IsUpstream(err)
		assert.False(t, ok)
	})
}

func TestSyncAll(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	for _, p := range []string{"/api/one", "/api/two", "/api/three"} {
		f.upsert(t, p, "GET", storage.EndpointFields{})
	}
	f.mock.AddRoute(testService, "legacy-route", []string{"/legacy"}, []string{"GET"})

	result, err := f.rec.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Succeeded)
	assert.Empty(t, result.Failures)
	assert.NotNil(t, result.Failures)
	assert.Equal(t, 1, result.OrphansDeleted)

	assert.Nil(t, f.mock.GetRoute("legacy-route"))
	assert.Len(t, f.mock.Routes(), 3)

	// A second run converges to the same state.
	result, err = f.rec.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded)
	assert.Zero(t, result.OrphansDeleted)
	assert.Len(t, f.mock.Routes(), 3)
}

func TestSyncAllRemovesRouteOfDeletedEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	keep := f.upsert(t, "/api/keep", "GET", storage.EndpointFields{})
	drop := f.upsert(t, "/api/drop", "GET", storage.EndpointFields{})

	_, err := f.rec.SyncAll(ctx)
	require.NoError(t, err)
	require.Len(t, f.mock.Routes(), 2)

	require.NoError(t, f.store.DeleteEndpoint(ctx, drop.ID, "tester"))

	result, err := f.rec.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrphansDeleted)
	assert.Nil(t, f.mock.GetRoute(RouteName(drop.ID)))
	assert.NotNil(t, f.mock.GetRoute(RouteName(keep.ID)))
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, WithConcurrency(concurrency))

			f.upsert(t, "/api/one", "GET", storage.EndpointFields{})
			bad := f.upsert(t, "/api/two", "GET", storage.EndpointFields{})
			f.upsert(t, "/api/three", "GET", storage.EndpointFields{})
			f.mock.FailRoute(RouteName(bad.ID), http.StatusServiceUnavailable)

			result, err := f.rec.SyncAll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 3, result.Total)
			assert.Equal(t, 2, result.Succeeded)
			require.Len(t, result.Failures, 1)
			assert.Equal(t, bad.ID, result.Failures[0].EndpointID)
			assert.Equal(t, "/api/two", result.Failures[0].Path)
			assert.NotEmpty(t, result.Failures[0].Error)
			assert.Len(t, f.mock.Routes(), 2)
		})
	}
}

func TestSyncAllOrphanCleanupFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.upsert(t, "/api/one", "GET", storage.EndpointFields{})
	f.mock.FailPath(http.MethodGet, "/services/"+testService+"/routes", http.StatusInternalServerError)

	result, err := f.rec.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Zero(t, result.OrphansDeleted)
}

func TestSyncAllStoreError(t *testing.T) {
	t.Parallel()
	store := &mockstore.MockStorage{
		ListEndpointsFunc: func(ctx context.Context, module string) ([]*storage.Endpoint, error) {
			return nil, errors.New("database is locked")
		},
	}
	rec := New(store, gateway.NewClient(gateway.WithBaseURL("http://127.0.0.1:1")), testService)

	result, err := rec.SyncAll(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestSyncAllEmptyRegistry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	result, err := f.rec.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{Failures: []Failure{}}, result)
}

func TestDeleteRoute(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	id := f.mock.AddRoute(testService, "route-9", []string{"/x"}, []string{"GET"})
	require.NoError(t, f.rec.DeleteRoute(ctx, id))
	assert.Nil(t, f.mock.GetRoute(id))

	// Already gone.
	require.NoError(t, f.rec.DeleteRoute(ctx, id))

	id = f.mock.AddRoute(testService, "route-10", []string{"/y"}, []string{"GET"})
	f.mock.FailRoute("route-10", http.StatusBadGateway)
	err := f.rec.DeleteRoute(ctx, id)
	status, ok := IsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, status)
}

// slowGateway wraps a Gateway and tracks how many GetRoute calls overlap.
type slowGateway struct {
	Gateway
	mu       sync.Mutex
	inflight map[string]int
	overlap  atomic.Bool
}

func (g *slowGateway) GetRoute(ctx context.Context, name string) (*gateway.Route, error) {
	g.mu.Lock()
	g.inflight[name]++
	if g.inflight[name] > 1 {
		g.overlap.Store(true)
	}
	g.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	g.mu.Lock()
	g.inflight[name]--
	g.mu.Unlock()
	return g.Gateway.GetRoute(ctx, name)
}

func TestSyncOneSerializesPerRoute(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	e := f.upsert(t, "/api/shared", "GET", storage.EndpointFields{})

	gw := &slowGateway{
		Gateway:  gateway.NewClient(gateway.WithBaseURL(f.mock.URL())),
		inflight: make(map[string]int),
	}
	rec := New(f.store, gw, testService)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *e
			assert.NoError(t, rec.SyncOne(context.Background(), &cp))
		}()
	}
	wg.Wait()

	assert.False(t, gw.overlap.Load(), "concurrent syncs of one endpoint must not interleave")
	assert.Len(t, f.mock.Routes(), 1)
	assert.Len(t, f.mock.Plugins(f.mock.Routes()[0].ID), 1)
	assert.Zero(t, rec.locks.size())
}

func ptr[T any](v T) *T { return &v }
