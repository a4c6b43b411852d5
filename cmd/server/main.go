package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/dlstudio/ytdl-orchestrator/internal/api/http"
	cfgpkg "github.com/dlstudio/ytdl-orchestrator/internal/config"
	"github.com/dlstudio/ytdl-orchestrator/internal/events"
	"github.com/dlstudio/ytdl-orchestrator/internal/registry"
	"github.com/dlstudio/ytdl-orchestrator/internal/scheduler"
	"github.com/dlstudio/ytdl-orchestrator/internal/supervisor"
)

func main() {

	cfg, err := cfgpkg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfgpkg.SetupLogger(cfg)
	slog.Info("configuration loaded successfully")

	bus := events.NewBus()
	defer bus.Close()

	reg, err := registry.New(cfg.StateFile, cfg.LogTailLines, bus)
	if err != nil {
		slog.Error("failed to initialize job registry", "error", err)
		os.Exit(1)
	}

	sup := supervisor.New(cfg.YTDLPPath, cfg.DownloadDir, cfg.TerminationGrace, reg, slog.Default())
	sched := scheduler.New(reg, sup, cfg.ConcurrencyLimit, slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go retentionLoop(ctx, reg, cfg.RetentionAge, cfg.RetentionSweep)

	router := h.NewRouter(sched, reg, bus, slog.Default())
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:     router,
		ReadTimeout: cfg.HTTPTimeout,
		IdleTimeout: cfg.HTTPTimeout,
		// No write timeout: the event stream holds its connection open.
	}

	go func() {
		slog.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	if err := sched.Shutdown(shutdownCtx); err != nil {
		slog.Error("scheduler shutdown failed", "error", err)
	} else {
		slog.Info("all download processes stopped")
	}
}

// retentionLoop evicts terminal jobs older than the retention age on a
// fixed sweep interval.
func retentionLoop(ctx context.Context, reg *registry.Registry, age, sweep time.Duration) {
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.EvictOlderThan(age)
		}
	}
}
