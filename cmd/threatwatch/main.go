package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"threatwatch/internal/collab"
	"threatwatch/internal/feed"
	"threatwatch/internal/hub"
	"threatwatch/internal/ingest"
	"threatwatch/internal/insight"
	"threatwatch/internal/predict"
	"threatwatch/internal/server"
	"threatwatch/internal/store"
)

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.OpenBolt(cfg.DBPath)
	if err != nil {
		slog.Error("open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	var provider insight.Provider
	if cfg.GeminiAPIKey != "" {
		gem, err := insight.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Warn("insight provider disabled", "err", err)
		} else {
			provider = gem
			defer gem.Close()
		}
	}

	cache := predict.New(st, provider, cfg.RefreshTTL(), cfg.RefreshWindow)
	h := hub.New(st, cfg.SnapshotSize, cfg.QueueSize)
	if cfg.NATSURL != "" {
		sink, err := feed.NewNATSSink(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			slog.Warn("nats sink disabled", "err", err)
		} else {
			h.AddSink(sink)
			defer sink.Close()
		}
	}
	pipeline := ingest.NewPipeline(st, h)
	manager := collab.NewManager(st, h)
	srv := server.New(st, pipeline, cache, h, manager, cfg)

	srv.StartMetrics(cfg.MetricsAddr)

	// Keep predictions warm so the first dashboard read after a quiet spell
	// does not pay for a full refresh pass.
	warm := cron.New()
	if _, err := warm.AddFunc(fmt.Sprintf("@every %ds", cfg.RefreshTTLSeconds), func() {
		if err := cache.Refresh(context.Background()); err != nil {
			slog.Warn("background refresh failed", "err", err)
		}
	}); err != nil {
		slog.Error("schedule refresh", "err", err)
		os.Exit(1)
	}
	warm.Start()
	defer warm.Stop()

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Router()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			cancel()
		}
	}()
	slog.Info("listening", "addr", cfg.HTTPAddr, "metrics", cfg.MetricsAddr)

	<-ctx.Done()
	slog.Info("shutdown initiated")
	sdCtx, sdCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer sdCancel()
	if err := httpSrv.Shutdown(sdCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
	slog.Info("shutdown complete")
}
