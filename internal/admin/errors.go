package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/medcore/gateway-reconciler/internal/reconcile"
	"github.com/medcore/gateway-reconciler/internal/registry"
	"github.com/medcore/gateway-reconciler/internal/storage"
)

// Standard error codes for API responses.
const (
	// ErrCodeInvalidRequest indicates a malformed request body or parameter.
	ErrCodeInvalidRequest = "invalid_request"

	// ErrCodeValidation indicates a field failed validation.
	ErrCodeValidation = "validation_error"

	// ErrCodeInvalidCredentials indicates invalid or missing admin token.
	ErrCodeInvalidCredentials = "invalid_credentials"

	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeAlreadyExists indicates an active record already owns the natural key.
	ErrCodeAlreadyExists = "already_exists"

	// ErrCodeVersionConflict indicates a stale expectedVersion.
	ErrCodeVersionConflict = "version_conflict"

	// ErrCodeUpstream indicates the gateway admin API rejected or failed a call.
	ErrCodeUpstream = "upstream_gateway_error"

	// ErrCodeSyncFailed indicates a change was saved but could not be pushed to the gateway.
	ErrCodeSyncFailed = "sync_failed"

	// ErrCodeInternalError indicates a server error.
	ErrCodeInternalError = "internal_error"
)

// APIError is the standard error response format for JSON APIs.
type APIError struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Hint       string `json:"hint,omitempty"`
	Field      string `json:"field,omitempty"`
	EndpointID int64  `json:"endpointId,omitempty"`
}

// WriteError writes a JSON error response with the given status code, error code, and message.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithHint(w, status, code, message, "")
}

// WriteErrorWithHint writes a JSON error response with an optional hint for resolving the error.
func WriteErrorWithHint(w http.ResponseWriter, status int, code, message, hint string) {
	writeAPIError(w, status, APIError{Error: code, Message: message, Hint: hint})
}

func writeAPIError(w http.ResponseWriter, status int, resp APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Response already started, nothing we can do
	json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps a registry, storage or reconcile error onto an HTTP response.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *registry.ValidationError
		serr *registry.SyncError
		uerr *reconcile.UpstreamGatewayError
	)

	switch {
	case errors.As(err, &verr):
		writeAPIError(w, http.StatusBadRequest, APIError{
			Error:   ErrCodeValidation,
			Message: verr.Error(),
			Field:   verr.Field,
		})
	case errors.Is(err, storage.ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "resource not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		if strings.HasPrefix(r.URL.Path, "/api/features") {
			WriteErrorWithHint(w, http.StatusConflict, ErrCodeAlreadyExists,
				"an active feature with this code already exists",
				"update or delete the existing feature instead")
			return
		}
		WriteErrorWithHint(w, http.StatusConflict, ErrCodeAlreadyExists,
			"an active endpoint with this path and method already exists",
			"update or delete the existing endpoint instead")
	case errors.Is(err, storage.ErrConflict):
		WriteErrorWithHint(w, http.StatusConflict, ErrCodeVersionConflict,
			"the record was modified concurrently",
			"reload the record and retry with its current version")
	case errors.As(err, &serr):
		h.logger.Warn("gateway sync failed after save", "endpoint_id", serr.EndpointID, "error", serr.Err)
		writeAPIError(w, http.StatusBadGateway, APIError{
			Error:      ErrCodeSyncFailed,
			Message:    serr.Error(),
			Hint:       "the change is saved; retry with POST /api/endpoints/{id}/sync",
			EndpointID: serr.EndpointID,
		})
	case errors.As(err, &uerr):
		h.logger.Warn("gateway call failed", "op", uerr.Op, "route", uerr.RouteName, "error", uerr.Err)
		WriteError(w, http.StatusBadGateway, ErrCodeUpstream, uerr.Error())
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}
