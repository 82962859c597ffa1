package gateway

import (
	"errors"
	"fmt"
)

// APIError represents a structured error from the gateway admin API.
type APIError struct {
	StatusCode int               `json:"-"`
	Name       string            `json:"name"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("gateway: %s (status %d): %s", e.Name, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Message)
}

// Sentinel errors for common admin API error cases.
var (
	ErrUnauthorized = errors.New("gateway: unauthorized (invalid admin token)")
	ErrNotFound     = errors.New("gateway: resource not found")
)
