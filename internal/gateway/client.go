package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/medcore/gateway-reconciler/internal/metrics"
)

const (
	// DefaultBaseURL is the default address of a local gateway admin API.
	DefaultBaseURL = "http://localhost:8001"

	// AdminTokenHeader carries the admin API token when RBAC is enabled on the gateway.
	AdminTokenHeader = "Kong-Admin-Token"

	// maxPages bounds pagination so a misbehaving server cannot loop us forever.
	maxPages = 1000
)

// Client is an HTTP client for the gateway admin API.
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (useful for testing with mock server).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithAdminToken sets the token sent in the Kong-Admin-Token header.
func WithAdminToken(token string) Option {
	return func(c *Client) {
		c.adminToken = token
	}
}

// NewClient creates a new gateway admin API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do sends a request and returns the status code and the fully read body.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set(AdminTokenHeader, c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordGatewayRequest(method, "error")
		return 0, nil, err
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()

	metrics.RecordGatewayRequest(method, strconv.Itoa(resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, body, nil
}

// resolve turns a "next" link into an absolute URL. The admin API returns
// next links relative to its root.
func (c *Client) resolve(next string) string {
	if strings.HasPrefix(next, "http://") || strings.HasPrefix(next, "https://") {
		return next
	}
	if !strings.HasPrefix(next, "/") {
		next = "/" + next
	}
	return c.baseURL + next
}

// GetRoute retrieves a route by name or ID.
// Returns ErrNotFound if no such route exists.
func (c *Client) GetRoute(ctx context.Context, nameOrID string) (*Route, error) {
	endpoint := fmt.Sprintf("%s/routes/%s", c.baseURL, url.PathEscape(nameOrID))

	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	if status == http.StatusOK {
		var route Route
		if err := json.Unmarshal(body, &route); err != nil {
			return nil, fmt.Errorf("failed to decode route: %w", err)
		}
		return &route, nil
	}

	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}

	return nil, parseError(status, body)
}

// CreateRoute creates a route attached to the given service.
func (c *Client) CreateRoute(ctx context.Context, serviceID string, req *RouteRequest) (*Route, error) {
	endpoint := fmt.Sprintf("%s/services/%s/routes", c.baseURL, url.PathEscape(serviceID))

	status, body, err := c.do(ctx, http.MethodPost, endpoint, req)
	if err != nil {
		return nil, err
	}

	if status == http.StatusCreated || status == http.StatusOK {
		var route Route
		if err := json.Unmarshal(body, &route); err != nil {
			return nil, fmt.Errorf("failed to decode route: %w", err)
		}
		return &route, nil
	}

	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}

	return nil, parseError(status, body)
}

// UpdateRoute replaces the route identified by name or ID with req.
// PUT on the admin API creates the route if it does not exist yet.
func (c *Client) UpdateRoute(ctx context.Context, nameOrID string, req *RouteRequest) (*Route, error) {
	endpoint := fmt.Sprintf("%s/routes/%s", c.baseURL, url.PathEscape(nameOrID))

	status, body, err := c.do(ctx, http.MethodPut, endpoint, req)
	if err != nil {
		return nil, err
	}

	if status == http.StatusOK || status == http.StatusCreated {
		var route Route
		if err := json.Unmarshal(body, &route); err != nil {
			return nil, fmt.Errorf("failed to decode route: %w", err)
		}
		return &route, nil
	}

	return nil, parseError(status, body)
}

// DeleteRoute removes a route by name or ID.
// Returns ErrNotFound if the route does not exist.
func (c *Client) DeleteRoute(ctx context.Context, nameOrID string) error {
	endpoint := fmt.Sprintf("%s/routes/%s", c.baseURL, url.PathEscape(nameOrID))

	status, body, err := c.do(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return parseError(status, body)
	}
}

// ListServiceRoutes returns every route attached to the service, following pagination.
func (c *Client) ListServiceRoutes(ctx context.Context, serviceID string) ([]Route, error) {
	endpoint := fmt.Sprintf("%s/services/%s/routes", c.baseURL, url.PathEscape(serviceID))

	routes := make([]Route, 0)
	for page := 0; endpoint != "" && page < maxPages; page++ {
		status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		if status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if status != http.StatusOK {
			return nil, parseError(status, body)
		}

		var result ListRoutesResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("failed to decode routes: %w", err)
		}
		routes = append(routes, result.Data...)

		endpoint = ""
		if result.Next != "" {
			endpoint = c.resolve(result.Next)
		}
	}

	return routes, nil
}

// ListRoutePlugins returns every plugin attached to the route, following pagination.
func (c *Client) ListRoutePlugins(ctx context.Context, routeID string) ([]Plugin, error) {
	endpoint := fmt.Sprintf("%s/routes/%s/plugins", c.baseURL, url.PathEscape(routeID))

	plugins := make([]Plugin, 0)
	for page := 0; endpoint != "" && page < maxPages; page++ {
		status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		if status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if status != http.StatusOK {
			return nil, parseError(status, body)
		}

		var result ListPluginsResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("failed to decode plugins: %w", err)
		}
		plugins = append(plugins, result.Data...)

		endpoint = ""
		if result.Next != "" {
			endpoint = c.resolve(result.Next)
		}
	}

	return plugins, nil
}

// AddPlugin attaches a plugin to a route.
func (c *Client) AddPlugin(ctx context.Context, routeID string, req *PluginRequest) (*Plugin, error) {
	endpoint := fmt.Sprintf("%s/routes/%s/plugins", c.baseURL, url.PathEscape(routeID))

	status, body, err := c.do(ctx, http.MethodPost, endpoint, req)
	if err != nil {
		return nil, err
	}

	if status == http.StatusCreated || status == http.StatusOK {
		var plugin Plugin
		if err := json.Unmarshal(body, &plugin); err != nil {
			return nil, fmt.Errorf("failed to decode plugin: %w", err)
		}
		return &plugin, nil
	}

	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}

	return nil, parseError(status, body)
}

// DeletePlugin removes a plugin by ID.
// Returns ErrNotFound if the plugin does not exist.
func (c *Client) DeletePlugin(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/plugins/%s", c.baseURL, url.PathEscape(id))

	status, body, err := c.do(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return parseError(status, body)
	}
}

// parseError converts a non-success admin API response into an error.
func parseError(statusCode int, body []byte) error {
	if statusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		apiErr.StatusCode = statusCode
		return &apiErr
	}

	if statusCode >= http.StatusInternalServerError {
		return fmt.Errorf("gateway: server error (status %d)", statusCode)
	}
	return fmt.Errorf("gateway: request failed (status %d)", statusCode)
}
