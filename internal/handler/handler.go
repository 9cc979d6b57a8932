// Package handler implements the HTTP surface. Handlers parse and
// authenticate requests, delegate to the domain services, and write the
// shared response envelope.
package handler

import (
	"log/slog"

	"github.com/CKsangiacomo/clickeen-sub004/internal/assets"
	"github.com/CKsangiacomo/clickeen-sub004/internal/config"
	"github.com/CKsangiacomo/clickeen-sub004/internal/l10n"
	"github.com/CKsangiacomo/clickeen-sub004/internal/render"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Assets    *assets.Service
	Publisher *l10n.Publisher
	Resolver  *l10n.Resolver
	Pipeline  *render.Pipeline
	Store     storage.Store
	Config    *config.Config
	Log       *slog.Logger
}

func (h *Handler) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}
