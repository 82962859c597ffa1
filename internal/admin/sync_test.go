package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcore/gateway-reconciler/internal/reconcile"
)

type slowSyncer struct {
	delay time.Duration
}

func (s slowSyncer) SyncAll(ctx context.Context) (*reconcile.Result, error) {
	time.Sleep(s.delay)
	return &reconcile.Result{Succeeded: 3, Total: 3, Failures: []reconcile.Failure{}}, nil
}

func TestSyncAllOutlivesServerWriteTimeout(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(Services{Syncer: slowSyncer{delay: 300 * time.Millisecond}}, new(slog.LevelVar), logger)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(h.HandleSyncAll))
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL, "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result reconcile.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 3, result.Total)
}
