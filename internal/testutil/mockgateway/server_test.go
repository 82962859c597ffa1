package mockgateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
)

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp, data
}

func TestCreateAndGetRoute(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close()
	s.AddService("svc")

	resp, body := doJSON(t, http.MethodPost, s.URL()+"/services/svc/routes", map[string]any{
		"name": "route-1", "paths": []string{"/api/a"}, "methods": []string{"GET"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var created Route
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode route: %v", err)
	}
	if created.ID == "" || created.Name != "route-1" {
		t.Errorf("unexpected route: %+v", created)
	}

	// Lookup works by name and by id
	for _, key := range []string{"route-1", created.ID} {
		resp, _ := doJSON(t, http.MethodGet, s.URL()+"/routes/"+key, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET /routes/%s: expected 200, got %d", key, resp.StatusCode)
		}
	}

	resp, _ = doJSON(t, http.MethodPost, s.URL()+"/services/svc/routes", map[string]any{
		"name": "route-1", "paths": []string{"/api/b"},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate name: expected 409, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, s.URL()+"/services/missing/routes", map[string]any{
		"name": "route-2", "paths": []string{"/api/b"},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown service: expected 404, got %d", resp.StatusCode)
	}
}

func TestPutRouteReplaces(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close()
	id := s.AddRoute("svc", "route-1", []string{"/old"}, []string{"GET"})

	resp, body := doJSON(t, http.MethodPut, s.URL()+"/routes/route-1", map[string]any{
		"name": "route-1", "paths": []string{"/new"}, "methods": []string{"POST"},
		"service": map[string]string{"id": "svc"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	route := s.GetRoute("route-1")
	if route.ID != id {
		t.Errorf("PUT must keep the route id, got %s want %s", route.ID, id)
	}
	if route.Paths[0] != "/new" || route.Methods[0] != "POST" {
		t.Errorf("route not replaced: %+v", route)
	}
}

func TestDeleteRouteCascadesPlugins(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close()
	id := s.AddRoute("svc", "route-1", []string{"/a"}, []string{"GET"})
	s.AddPlugin(id, "jwt", nil)

	resp, _ := doJSON(t, http.MethodDelete, s.URL()+"/routes/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if len(s.Plugins(id)) != 0 {
		t.Error("plugins should be removed with their route")
	}

	resp, _ = doJSON(t, http.MethodDelete, s.URL()+"/routes/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestPluginLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close()
	id := s.AddRoute("svc", "route-1", []string{"/a"}, []string{"GET"})

	resp, body := doJSON(t, http.MethodPost, s.URL()+"/routes/"+id+"/plugins", map[string]any{
		"name": "rate-limiting", "config": map[string]any{"minute": 10, "policy": "local"}, "enabled": true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	var plugin Plugin
	if err := json.Unmarshal(body, &plugin); err != nil {
		t.Fatalf("failed to decode plugin: %v", err)
	}

	resp, _ = doJSON(t, http.MethodPost, s.URL()+"/routes/"+id+"/plugins", map[string]any{"name": "rate-limiting"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate plugin: expected 409, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, s.URL()+"/plugins/"+plugin.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if len(s.Plugins(id)) != 0 {
		t.Error("expected no plugins after delete")
	}
}

func TestListPagination(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		s.AddRoute("svc", name, []string{"/" + name}, nil)
	}
	s.SetPageSize(2)

	var names []string
	next := "/services/svc/routes"
	pages := 0
	for next != "" {
		resp, body := doJSON(t, http.MethodGet, s.URL()+next, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var page ListResponse[Route]
		if err := json.Unmarshal(body, &page); err != nil {
			t.Fatalf("failed to decode page: %v", err)
		}
		for _, r := range page.Data {
			names = append(names, r.Name)
		}
		next = page.Next
		pages++
	}

	if pages != 3 {
		t.Errorf("expected 3 pages, got %d", pages)
	}
	if strings.Join(names, ",") != "a,b,c,d,e" {
		t.Errorf("unexpected order: %v", names)
	}
}

func TestFailureInjection(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close()
	id := s.AddRoute("svc", "route-1", []string{"/a"}, nil)
	s.AddRoute("svc", "route-2", []string{"/b"}, nil)

	s.SetNextError(http.StatusServiceUnavailable, "down", 1)
	resp, _ := doJSON(t, http.MethodGet, s.URL()+"/routes/route-1", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected injected 503, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, s.URL()+"/routes/route-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after injected error consumed, got %d", resp.StatusCode)
	}

	s.FailRoute("route-1", http.StatusInternalServerError)
	for _, path := range []string{"/routes/route-1", "/routes/" + id + "/plugins"} {
		resp, _ := doJSON(t, http.MethodGet, s.URL()+path, nil)
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("GET %s: expected 500, got %d", path, resp.StatusCode)
		}
	}
	resp, _ = doJSON(t, http.MethodGet, s.URL()+"/routes/route-2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("other routes unaffected: expected 200, got %d", resp.StatusCode)
	}

	s.FailPath(http.MethodGet, "/services/svc/routes", http.StatusBadGateway)
	resp, _ = doJSON(t, http.MethodGet, s.URL()+"/services/svc/routes", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}

	s.ClearFailures()
	resp, _ = doJSON(t, http.MethodGet, s.URL()+"/routes/route-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after ClearFailures, got %d", resp.StatusCode)
	}
}

func TestAdminEndpoints(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	s := New(WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))
	defer s.Close()

	resp, _ := doJSON(t, http.MethodPost, s.URL()+"/admin/services", map[string]string{"id": "svc"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	s.AddRoute("svc", "route-1", []string{"/a"}, nil)

	resp, body := doJSON(t, http.MethodGet, s.URL()+"/admin/state", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var state StateResponse
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if len(state.Services) != 1 || len(state.Routes) != 1 {
		t.Errorf("unexpected state: %+v", state)
	}
	if len(s.Requests()) != 0 {
		t.Errorf("admin calls must not be recorded, got %v", s.Requests())
	}

	resp, _ = doJSON(t, http.MethodDelete, s.URL()+"/admin/reset", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if len(s.Routes()) != 0 {
		t.Error("expected no routes after reset")
	}

	if !strings.Contains(logs.String(), "mock gateway call") {
		t.Error("expected request to be logged")
	}
	if !strings.Contains(logs.String(), `"path":"/admin/state"`) {
		t.Errorf("expected admin path in logs, got %s", logs.String())
	}
}
