package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/medcore/gateway-reconciler/internal/middleware"
	"github.com/medcore/gateway-reconciler/internal/reconcile"
)

// FullSyncer runs a complete reconciliation pass.
type FullSyncer interface {
	SyncAll(ctx context.Context) (*reconcile.Result, error)
}

// SyncStatus describes the most recent background sync.
type SyncStatus struct {
	Running    bool              `json:"running"`
	Pending    int               `json:"pending"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
	Result     *reconcile.Result `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// SyncWorker consumes sync requests from the bus and runs them one at a time.
type SyncWorker struct {
	bus    *Bus
	syncer FullSyncer
	logger *slog.Logger

	mu     sync.Mutex
	status SyncStatus
}

// NewSyncWorker creates a worker; call Start to begin consuming.
func NewSyncWorker(bus *Bus, syncer FullSyncer, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{bus: bus, syncer: syncer, logger: logger}
}

// Request enqueues a full sync.
func (w *SyncWorker) Request(req SyncRequest) error {
	w.mu.Lock()
	w.status.Pending++
	w.mu.Unlock()

	if err := w.bus.Publish(TopicSyncRequested, req); err != nil {
		w.mu.Lock()
		w.status.Pending--
		w.mu.Unlock()
		return err
	}
	return nil
}

// Status returns a snapshot of the worker state.
func (w *SyncWorker) Status() SyncStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Start subscribes to sync requests. Processing stops when ctx ends or the bus closes.
func (w *SyncWorker) Start(ctx context.Context) error {
	messages, err := w.bus.Subscribe(ctx, TopicSyncRequested)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var req SyncRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				w.logger.Error("failed to decode sync request", "error", err)
			}
			w.run(ctx, req)
			msg.Ack()
		}
	}()
	return nil
}

func (w *SyncWorker) run(ctx context.Context, req SyncRequest) {
	started := time.Now()
	w.mu.Lock()
	if w.status.Pending > 0 {
		w.status.Pending--
	}
	w.status.Running = true
	w.status.StartedAt = &started
	w.mu.Unlock()

	w.logger.Info("background sync started", "request_id", req.RequestID, "actor", req.Actor)
	result, err := w.syncer.SyncAll(middleware.WithRequestID(ctx, req.RequestID))

	finished := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Running = false
	w.status.FinishedAt = &finished
	w.status.Result = result
	w.status.Error = ""
	if err != nil {
		w.status.Error = err.Error()
		w.logger.Error("background sync failed", "request_id", req.RequestID, "error", err)
	}
}
