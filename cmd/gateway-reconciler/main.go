// Package main runs the gateway configuration reconciler: the admin API, the
// edge-guard RPC lookups and the background sync worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medcore/gateway-reconciler/internal/admin"
	"github.com/medcore/gateway-reconciler/internal/auth"
	"github.com/medcore/gateway-reconciler/internal/config"
	"github.com/medcore/gateway-reconciler/internal/gateway"
	"github.com/medcore/gateway-reconciler/internal/logging"
	"github.com/medcore/gateway-reconciler/internal/metrics"
	"github.com/medcore/gateway-reconciler/internal/navigation"
	"github.com/medcore/gateway-reconciler/internal/reconcile"
	"github.com/medcore/gateway-reconciler/internal/registry"
	"github.com/medcore/gateway-reconciler/internal/storage"
	"github.com/medcore/gateway-reconciler/internal/tracer"
)

const (
	version               = "0.1.0"
	serverShutdownTimeout = 30 * time.Second
)

type components struct {
	logger     *slog.Logger
	logLevel   *slog.LevelVar
	store      *storage.SQLiteStorage
	gateway    *gateway.Client
	reconciler *reconcile.Reconciler
	bus        *registry.Bus
	worker     *registry.SyncWorker
	endpoints  *registry.EndpointService
	navigator  *navigation.Service
	router     chi.Router
}

func (c *components) close() {
	if err := c.bus.Close(); err != nil {
		c.logger.Error("failed to close event bus", "error", err)
	}
	if err := c.store.Close(); err != nil {
		c.logger.Error("failed to close storage", "error", err)
	}
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "health":
			os.Exit(runHealthCheck())
		case "hash-token":
			os.Exit(runHashToken(os.Args[2:]))
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadEnvFile(".env"); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c, err := initializeComponents(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := tracer.Init(ctx, cfg.OTelEnabled, cfg.OTelEndpoint, c.logger)
	if err != nil {
		c.logger.Warn("tracing disabled", "error", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracer(sctx); err != nil {
			c.logger.Warn("failed to flush traces", "error", err)
		}
	}()

	if err := metrics.Init(prometheus.DefaultRegisterer, version); err != nil {
		c.logger.Warn("metrics registration failed", "error", err)
	}

	if err := startBackground(ctx, c); err != nil {
		return err
	}

	if cfg.MetricsListenAddr != "" {
		metricsServer := createMetricsServer(cfg.MetricsListenAddr)
		go func() {
			c.logger.Info("metrics listener starting", "addr", cfg.MetricsListenAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.logger.Error("metrics listener failed", "error", err)
			}
		}()
		defer func() {
			//nolint:errcheck
			metricsServer.Close()
		}()
	}

	c.logger.Info("gateway reconciler starting",
		"version", version,
		"addr", cfg.ListenAddr,
		"gateway", cfg.GatewayAdminURL,
		"service_id", cfg.GatewayServiceID,
		"sync_on_mutation", cfg.SyncOnMutation,
		"sync_concurrency", cfg.SyncConcurrency,
	)

	return startServerAndWaitForShutdown(c.logger, createServer(cfg, c.router))
}

// initializeComponents wires storage, the gateway client, the reconciler, the
// registry services and the HTTP router. Nothing is started.
func initializeComponents(cfg *config.Config) (*components, error) {
	logger, logLevel, err := logging.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	verifier, err := auth.NewVerifier(cfg.AdminTokenHash)
	if err != nil {
		return nil, fmt.Errorf("invalid admin token hash: %w", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.GatewayTimeout}
	if logLevel.Level() <= slog.LevelDebug {
		httpClient.Transport = &gateway.LoggingTransport{Logger: logger, Prefix: "GATEWAY"}
	}
	gw := gateway.NewClient(
		gateway.WithBaseURL(cfg.GatewayAdminURL),
		gateway.WithAdminToken(cfg.GatewayAdminToken),
		gateway.WithHTTPClient(httpClient),
	)

	rec := reconcile.New(store, gw, cfg.GatewayServiceID,
		reconcile.WithLogger(logger),
		reconcile.WithConcurrency(cfg.SyncConcurrency),
	)

	bus := registry.NewBus(logger)
	worker := registry.NewSyncWorker(bus, rec, logger)

	endpoints := registry.NewEndpointService(store,
		registry.WithSyncer(rec, cfg.SyncOnMutation),
		registry.WithBus(bus),
		registry.WithLookupCacheTTL(cfg.CacheTTL),
		registry.WithEndpointLogger(logger),
	)
	features := registry.NewFeatureService(store, bus, logger)
	navigator := navigation.NewService(store,
		navigation.WithCacheTTL(cfg.CacheTTL),
		navigation.WithLogger(logger),
	)

	handler := admin.NewHandler(admin.Services{
		Endpoints: endpoints,
		Features:  features,
		Navigator: navigator,
		Syncer:    rec,
		Queue:     worker,
		DB:        store,
	}, logLevel, logger)

	return &components{
		logger:     logger,
		logLevel:   logLevel,
		store:      store,
		gateway:    gw,
		reconciler: rec,
		bus:        bus,
		worker:     worker,
		endpoints:  endpoints,
		navigator:  navigator,
		router:     handler.NewRouter(verifier),
	}, nil
}

// startBackground starts the sync worker and the cache invalidation consumer.
// Both stop when ctx is cancelled.
func startBackground(ctx context.Context, c *components) error {
	if err := c.worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync worker: %w", err)
	}
	err := c.bus.ConsumeChanges(ctx, func(ev registry.ChangeEvent) {
		switch ev.Kind {
		case registry.KindFeature:
			c.navigator.Invalidate()
		case registry.KindEndpoint:
			c.endpoints.InvalidateLookups()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to registry changes: %w", err)
	}
	return nil
}

func createServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func createMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// startServerAndWaitForShutdown serves until SIGINT/SIGTERM, then drains in-flight requests.
func startServerAndWaitForShutdown(logger *slog.Logger, server *http.Server) error {
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("Server shut down gracefully")
	return nil
}

// runHealthCheck probes the local /health endpoint. Used by the container HEALTHCHECK.
func runHealthCheck() int {
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	if addr[0] == ':' {
		addr = "localhost" + addr
	}
	return doHealthCheck("http://" + addr + "/health")
}

func doHealthCheck(url string) int {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return 1
	}
	//nolint:errcheck // Response body close errors are unrecoverable in health check
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

// runHashToken prints the bcrypt hash for ADMIN_TOKEN_HASH.
func runHashToken(args []string) int {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(os.Stderr, "usage: gateway-reconciler hash-token <token>")
		return 2
	}
	hash, err := auth.HashToken(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Println(hash)
	return 0
}
