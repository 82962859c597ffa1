// Package admin serves the administrative API, the read-only RPC lookups and the health probes.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medcore/gateway-reconciler/internal/navigation"
	"github.com/medcore/gateway-reconciler/internal/reconcile"
	"github.com/medcore/gateway-reconciler/internal/registry"
	"github.com/medcore/gateway-reconciler/internal/storage"
)

// Endpoints is the endpoint registry service.
type Endpoints interface {
	Create(ctx context.Context, in registry.EndpointInput) (*storage.Endpoint, error)
	Update(ctx context.Context, id int64, in registry.EndpointPatchInput) (*storage.Endpoint, error)
	Delete(ctx context.Context, id int64) error
	Sync(ctx context.Context, id int64) (*storage.Endpoint, error)
	Get(ctx context.Context, id int64) (*storage.Endpoint, error)
	List(ctx context.Context, module string) ([]*storage.Endpoint, error)
	GetByPath(ctx context.Context, path, method string) (*storage.Endpoint, error)
	GetByResource(ctx context.Context, resource, action, method string) (*storage.Endpoint, error)
}

// Features is the feature registry service.
type Features interface {
	Create(ctx context.Context, in registry.FeatureInput) (*storage.Feature, error)
	Update(ctx context.Context, id int64, in registry.FeaturePatchInput) (*storage.Feature, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*storage.Feature, error)
	List(ctx context.Context) ([]*storage.Feature, error)
}

// Navigator builds role-filtered navigation trees.
type Navigator interface {
	Tree(ctx context.Context, roleCodes []string) ([]*navigation.Node, error)
}

// FullSyncer runs a full reconciliation synchronously.
type FullSyncer interface {
	SyncAll(ctx context.Context) (*reconcile.Result, error)
}

// SyncQueue enqueues background syncs and reports on them.
type SyncQueue interface {
	Request(req registry.SyncRequest) error
	Status() registry.SyncStatus
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the dependencies of a Handler. Nil members disable their routes' backing
// (handlers answer 503).
type Services struct {
	Endpoints Endpoints
	Features  Features
	Navigator Navigator
	Syncer    FullSyncer
	Queue     SyncQueue
	DB        Pinger
}

// Handler provides admin and RPC endpoints.
type Handler struct {
	svc      Services
	logger   *slog.Logger
	logLevel *slog.LevelVar
}

// NewHandler creates an admin handler.
func NewHandler(svc Services, logLevel *slog.LevelVar, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if logLevel == nil {
		logLevel = new(slog.LevelVar)
	}

	return &Handler{
		svc:      svc,
		logLevel: logLevel,
		logger:   logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Response write errors are unrecoverable
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidRequest, "request body too large")
			return false
		}
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return false
	}
	return true
}

// pathID parses the {id} URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid id")
		return 0, false
	}
	return id, true
}
