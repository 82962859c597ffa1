package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcore/gateway-reconciler/internal/reconcile"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBus(t *testing.T) *Bus {
	t.Helper()
	bus := NewBus(quietLogger())
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestChangeEventsArePublished(t *testing.T) {
	t.Parallel()
	bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		events []ChangeEvent
	)
	require.NoError(t, bus.ConsumeChanges(ctx, func(evt ChangeEvent) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	}))

	store := newStore(t)
	endpoints := NewEndpointService(store, WithBus(bus))
	features := NewFeatureService(store, bus, quietLogger())

	e, err := endpoints.Create(ctx, EndpointInput{Path: "/api/a", Method: "GET"})
	require.NoError(t, err)
	f, err := features.Create(ctx, FeatureInput{Code: "X", Name: "X"})
	require.NoError(t, err)
	require.NoError(t, features.Delete(ctx, f.ID))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []ChangeEvent{
		{Kind: KindEndpoint, ID: e.ID, Op: "upsert"},
		{Kind: KindFeature, ID: f.ID, Op: "upsert"},
		{Kind: KindFeature, ID: f.ID, Op: "delete"},
	}, events)
}

// fakeFullSyncer counts runs and flags overlapping ones.
type fakeFullSyncer struct {
	runs    atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
	err     error
}

func (f *fakeFullSyncer) SyncAll(ctx context.Context) (*reconcile.Result, error) {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)
	time.Sleep(5 * time.Millisecond)
	f.runs.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &reconcile.Result{Succeeded: 1, Total: 1, Failures: []reconcile.Failure{}}, nil
}

func TestSyncWorkerRunsRequestsOneAtATime(t *testing.T) {
	t.Parallel()
	bus := newBus(t)
	syncer := &fakeFullSyncer{}
	worker := NewSyncWorker(bus, syncer, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, worker.Start(ctx))

	for i := 0; i < 3; i++ {
		require.NoError(t, worker.Request(SyncRequest{RequestID: "req"}))
	}

	require.Eventually(t, func() bool { return syncer.runs.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, syncer.overlap.Load())

	require.Eventually(t, func() bool { return !worker.Status().Running }, time.Second, 5*time.Millisecond)
	status := worker.Status()
	assert.Zero(t, status.Pending)
	require.NotNil(t, status.Result)
	assert.Equal(t, 1, status.Result.Succeeded)
	assert.NotNil(t, status.FinishedAt)
	assert.Empty(t, status.Error)
}

func TestSyncWorkerRecordsFailure(t *testing.T) {
	t.Parallel()
	bus := newBus(t)
	syncer := &fakeFullSyncer{err: errors.New("database is locked")}
	worker := NewSyncWorker(bus, syncer, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, worker.Start(ctx))
	require.NoError(t, worker.Request(SyncRequest{}))

	require.Eventually(t, func() bool { return worker.Status().Error != "" }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, worker.Status().Error, "database is locked")
}
