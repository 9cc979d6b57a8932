package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CKsangiacomo/clickeen-sub004/internal/assets"
	"github.com/CKsangiacomo/clickeen-sub004/internal/config"
	"github.com/CKsangiacomo/clickeen-sub004/internal/database"
	"github.com/CKsangiacomo/clickeen-sub004/internal/handler"
	"github.com/CKsangiacomo/clickeen-sub004/internal/l10n"
	"github.com/CKsangiacomo/clickeen-sub004/internal/model"
	"github.com/CKsangiacomo/clickeen-sub004/internal/queue"
	"github.com/CKsangiacomo/clickeen-sub004/internal/render"
	"github.com/CKsangiacomo/clickeen-sub004/internal/router"
	"github.com/CKsangiacomo/clickeen-sub004/internal/storage"
)

const publishSweepInterval = time.Minute

// renderJob asks the pipeline to regenerate one instance's locales.
type renderJob struct {
	PublicID string
	Locales  []string
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	db, err := database.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := storage.NewFileSystem(cfg.StoragePath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline := &render.Pipeline{
		DB:     db,
		Store:  store,
		Client: render.NewClient(cfg.RendererBase, cfg.RendererBypassToken, cfg.RendererTimeout),
		Log:    logger,
	}

	renders := queue.New("render-snapshots", 64, func(ctx context.Context, job renderJob) error {
		_, err := pipeline.Snapshot(ctx, job.PublicID, job.Locales)
		return err
	}, logger)
	renders.Start(ctx, 2)
	defer renders.Close()

	publisher := &l10n.Publisher{
		DB:    db,
		Store: store,
		Log:   logger,
		EnqueueRender: func(publicID, layer, layerKey string) {
			job := renderJob{PublicID: publicID}
			// A locale key regenerates that locale; user-layer publishes
			// fall back to the default locale set.
			if layer == model.LayerLocale || (layer == model.LayerUser && layerKey != "global") {
				job.Locales = []string{layerKey}
			}
			renders.Enqueue(job)
		},
	}

	go sweepPublishStates(ctx, publisher, logger)

	h := &handler.Handler{
		Assets:    &assets.Service{DB: db, Store: store, Counters: db.Counters(), Log: logger},
		Publisher: publisher,
		Resolver:  &l10n.Resolver{Store: store, DevStrict: cfg.DevStrict},
		Pipeline:  pipeline,
		Store:     store,
		Config:    cfg,
		Log:       logger,
	}

	srv := router.New(h, cfg)

	slog.Info("starting server", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// sweepPublishStates retries dirty and failed overlay publishes on their
// backoff schedule.
func sweepPublishStates(ctx context.Context, publisher *l10n.Publisher, logger *slog.Logger) {
	ticker := time.NewTicker(publishSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := publisher.Sweep(ctx, now.UTC()); err != nil {
				logger.Warn("publish sweep", "error", err)
			}
		}
	}
}
