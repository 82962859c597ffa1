package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/medcore/gateway-reconciler/internal/auth"
	"github.com/medcore/gateway-reconciler/internal/metrics"
	"github.com/medcore/gateway-reconciler/internal/middleware"
)

// maxBodyBytes bounds admin request bodies.
const maxBodyBytes = 1 << 20

// NewRouter creates the router for health probes, the RPC lookups and the admin API.
// Only /api requires the admin token.
func (h *Handler) NewRouter(verifier *auth.Verifier) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.HTTPLogging(h.logger, nil))

	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)

	r.Route("/rpc", func(r chi.Router) {
		r.Get("/endpoints/by-path", h.HandleEndpointByPath)
		r.Get("/endpoints/by-resource", h.HandleEndpointByResource)
		r.Get("/navigation", h.HandleNavigation)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(verifier, h.logger))
		r.Use(middleware.MaxBodySize(maxBodyBytes))

		r.Post("/loglevel", h.HandleSetLogLevel)

		r.Get("/endpoints", h.HandleListEndpoints)
		r.Post("/endpoints", h.HandleCreateEndpoint)
		r.Get("/endpoints/{id}", h.HandleGetEndpoint)
		r.Patch("/endpoints/{id}", h.HandleUpdateEndpoint)
		r.Delete("/endpoints/{id}", h.HandleDeleteEndpoint)
		r.Post("/endpoints/{id}/sync", h.HandleSyncEndpoint)

		r.Get("/features", h.HandleListFeatures)
		r.Post("/features", h.HandleCreateFeature)
		r.Get("/features/{id}", h.HandleGetFeature)
		r.Patch("/features/{id}", h.HandleUpdateFeature)
		r.Delete("/features/{id}", h.HandleDeleteFeature)

		r.Post("/sync", h.HandleSyncAll)
		r.Get("/sync/status", h.HandleSyncStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})

	return r
}
