// Package main runs the mock gateway admin API as a standalone server for
// end-to-end runs of the reconciler.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/medcore/gateway-reconciler/internal/testutil/mockgateway"
)

func getPort() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8001"
	}
	return port
}

// seedServices returns the service ids listed in MOCK_SERVICES (comma separated).
func seedServices() []string {
	var ids []string
	for _, id := range strings.Split(os.Getenv("MOCK_SERVICES"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func createServer(logger *slog.Logger, services []string) *mockgateway.Server {
	s := mockgateway.New(mockgateway.WithLogger(logger))
	for _, id := range services {
		s.AddService(id)
	}
	return s
}

func createHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// runHealthCheck probes /admin/state on the local server. Used by the container HEALTHCHECK.
func runHealthCheck() int {
	return doHealthCheck("http://localhost:" + getPort() + "/admin/state")
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

func main() {
	if len(os.Args) > 1 && os.Args[1] == "health" {
		os.Exit(runHealthCheck())
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	port := getPort()
	server := createServer(logger, seedServices())
	defer server.Close()

	httpServer := createHTTPServer(port, server.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down mock gateway")
		//nolint:errcheck
		httpServer.Close()
	}()

	logger.Info("mock gateway listening", "port", port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server error", "error", err)
		os.Exit(1)
	}
	logger.Info("mock gateway stopped")
}
