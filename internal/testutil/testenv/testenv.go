// Package testenv runs reconciler tests against either the in-process mock
// gateway or a real Kong admin API, with route cleanup before and after.
package testenv

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/medcore/gateway-reconciler/internal/gateway"
	"github.com/medcore/gateway-reconciler/internal/storage"
	"github.com/medcore/gateway-reconciler/internal/testutil/mockgateway"
)

// Mode selects the gateway backend.
type Mode string

const (
	// ModeMock uses mockgateway, in-process or at MOCKGATEWAY_URL.
	ModeMock Mode = "mock"
	// ModeReal uses the gateway at GATEWAY_ADMIN_URL.
	ModeReal Mode = "real"
)

// managedPrefix marks routes the reconciler owns.
const managedPrefix = "route-"

// Env is a registry store plus a gateway client bound to one service.
type Env struct {
	Mode      Mode
	Client    *gateway.Client
	ServiceID string
	Store     *storage.SQLiteStorage

	// Mock is set only for the in-process mock; tests that inject failures need it.
	Mock *mockgateway.Server

	ctx context.Context
}

// Setup builds an Env from GATEWAY_TEST_MODE (default mock). Real mode needs
// GATEWAY_ADMIN_URL and GATEWAY_TEST_SERVICE_ID and is skipped without them;
// the service must be dedicated to tests because every managed route on it is removed.
func Setup(t *testing.T) *Env {
	t.Helper()

	env := &Env{Mode: getMode(), ctx: context.Background()}
	switch env.Mode {
	case ModeMock:
		env.setupMock(t)
	case ModeReal:
		env.setupReal(t)
	default:
		t.Fatalf("invalid GATEWAY_TEST_MODE %q", env.Mode)
	}

	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	env.Store = store

	env.removeManagedRoutes(t)
	t.Cleanup(func() {
		env.removeManagedRoutes(t)
		env.verifyNoManagedRoutes(t)
		_ = store.Close()
		if env.Mock != nil {
			env.Mock.Close()
		}
	})

	return env
}

// AddEndpoint inserts an endpoint straight into the registry.
func (e *Env) AddEndpoint(t *testing.T, path, method string, fields storage.EndpointFields) *storage.Endpoint {
	t.Helper()
	ep, err := e.Store.UpsertEndpoint(e.ctx, path, method, fields)
	if err != nil {
		t.Fatalf("failed to add endpoint %s %s: %v", method, path, err)
	}
	return ep
}

// ManagedRoutes lists the service's routes that carry the managed prefix.
func (e *Env) ManagedRoutes(t *testing.T) []gateway.Route {
	t.Helper()
	routes, err := e.Client.ListServiceRoutes(e.ctx, e.ServiceID)
	if err != nil {
		t.Fatalf("failed to list routes: %v", err)
	}
	var out []gateway.Route
	for _, r := range routes {
		if strings.HasPrefix(r.Name, managedPrefix) {
			out = append(out, r)
		}
	}
	return out
}

func (e *Env) removeManagedRoutes(t *testing.T) {
	t.Helper()
	routes, err := e.Client.ListServiceRoutes(e.ctx, e.ServiceID)
	if err != nil {
		t.Logf("Warning: failed to list routes for cleanup: %v", err)
		return
	}
	for _, r := range routes {
		if !strings.HasPrefix(r.Name, managedPrefix) {
			continue
		}
		if err := e.Client.DeleteRoute(e.ctx, r.ID); err != nil {
			t.Logf("Warning: failed to delete route %s: %v", r.Name, err)
		}
	}
}

func (e *Env) verifyNoManagedRoutes(t *testing.T) {
	t.Helper()
	routes, err := e.Client.ListServiceRoutes(e.ctx, e.ServiceID)
	if err != nil {
		t.Logf("Note: could not verify cleanup: %v", err)
		return
	}
	for _, r := range routes {
		if strings.HasPrefix(r.Name, managedPrefix) {
			t.Errorf("route %s (%s) survived cleanup", r.Name, r.ID)
		}
	}
}

func (e *Env) setupMock(t *testing.T) {
	t.Helper()
	e.ServiceID = "svc-test-" + commitHash()

	if url := os.Getenv("MOCKGATEWAY_URL"); url != "" {
		e.Client = gateway.NewClient(gateway.WithBaseURL(url))
		registerService(t, url, e.ServiceID)
		return
	}

	e.Mock = mockgateway.New()
	e.Mock.AddService(e.ServiceID)
	e.Client = gateway.NewClient(gateway.WithBaseURL(e.Mock.URL()))
}

func (e *Env) setupReal(t *testing.T) {
	t.Helper()
	url := os.Getenv("GATEWAY_ADMIN_URL")
	serviceID := os.Getenv("GATEWAY_TEST_SERVICE_ID")
	if url == "" || serviceID == "" {
		t.Skip("GATEWAY_ADMIN_URL and GATEWAY_TEST_SERVICE_ID are required in real mode")
	}
	e.ServiceID = serviceID
	e.Client = gateway.NewClient(
		gateway.WithBaseURL(url),
		gateway.WithAdminToken(os.Getenv("GATEWAY_ADMIN_TOKEN")),
	)
}

// registerService creates the test service on an external mock via its admin API.
func registerService(t *testing.T, baseURL, id string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"id": id}) //nolint:errcheck // static map
	resp, err := http.Post(strings.TrimRight(baseURL, "/")+"/admin/services", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to register service on mock gateway: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		t.Fatalf("mock gateway refused service %s: status %d", id, resp.StatusCode)
	}
}

func getMode() Mode {
	if m := os.Getenv("GATEWAY_TEST_MODE"); m != "" {
		return Mode(strings.ToLower(m))
	}
	return ModeMock
}

// commitHash names test services after the checkout so leftovers can be traced.
func commitHash() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "local"
	}
	if h := strings.TrimSpace(string(out)); h != "" {
		return h
	}
	return "local"
}
