package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/CKsangiacomo/clickeen-sub004/internal/api"
	"github.com/CKsangiacomo/clickeen-sub004/internal/config"
	"github.com/CKsangiacomo/clickeen-sub004/internal/handler"
)

// Server holds the application handler and HTTP router.
type Server struct {
	Handler *handler.Handler
	Config  *config.Config
	Router  chi.Router
}

// New creates a Server with a fully configured chi router.
func New(h *handler.Handler, cfg *config.Config) *Server {
	s := &Server{Handler: h, Config: cfg}

	r := chi.NewRouter()

	// CORS — must be before other middleware to handle preflight OPTIONS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type", "Cache-Control"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check (no auth required).
	r.Get("/healthz", s.Health)

	// Public content reads: immutable blobs and published documents.
	r.Get("/assets/v/*", h.ReadAsset)
	r.Get("/assets/p/{accountId}/{assetId}", h.ReadAssetPointer)
	r.Get("/l10n/instances/*", h.ReadL10nArtifact)
	r.Get("/renders/instances/*", h.ReadRenderArtifact)

	// Authenticated asset mutations and audits.
	r.Group(func(r chi.Router) {
		r.Use(api.AuthMiddleware(cfg.ServiceToken))

		r.Post("/assets/upload", h.UploadAsset)
		r.Put("/assets/{accountId}/{assetId}", h.ReplaceAsset)
		r.Delete("/assets/{accountId}/{assetId}", h.DeleteAsset)
		r.Get("/assets/{accountId}/{assetId}/integrity", h.AssetIntegrity)
		r.Get("/accounts/{accountId}/assets/integrity", h.AccountIntegrity)
		r.Put("/accounts/{accountId}/usage/{publicId}", h.SyncAssetUsage)
	})

	// Service-token-only publishing surfaces.
	r.Group(func(r chi.Router) {
		r.Use(api.RequireService(cfg.ServiceToken))

		r.Put("/l10n/instances/{publicId}/index", h.RebuildOverlayIndex)
		r.Delete("/l10n/instances/{publicId}/index", h.DropOverlayIndex)
		r.Put("/l10n/instances/{publicId}/bases/{fingerprint}", h.PutBaseSnapshot)
		r.Put("/l10n/instances/{publicId}/{layer}/{layerKey}", h.SaveOverlay)
		r.Delete("/l10n/instances/{publicId}/{layer}/{layerKey}", h.DeleteOverlay)
		r.Post("/l10n/publish", h.PublishOverlay)
		r.Post("/l10n/instances/{publicId}/resolve", h.ResolveInstance)
		r.Post("/renders/instances/{publicId}/snapshot", h.SnapshotInstance)
	})

	s.Router = r
	return s
}

// Health returns a simple health-check response.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
