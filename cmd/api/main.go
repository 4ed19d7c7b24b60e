// Package main is the entry point for the Placetrail API server.
// Its sole responsibility is wiring dependencies together and starting the
// server. No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/pkordes/placetrail/internal/config"
	"github.com/pkordes/placetrail/internal/handler"
	"github.com/pkordes/placetrail/internal/middleware"
	"github.com/pkordes/placetrail/internal/repo"
	"github.com/pkordes/placetrail/internal/service"
	"github.com/pkordes/placetrail/internal/sync"
)

func main() {
	// --- Config -----------------------------------------------------------
	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// log/slog is the stdlib structured logger introduced in Go 1.21.
	// JSON handler writes machine-readable output suitable for log aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Store ------------------------------------------------------------
	// Open never kills the process on failure: a corrupt file or bad path
	// comes back as a typed error, and the decision to abort is made here,
	// at the top of the wiring.
	db, err := repo.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("store opened", "path", cfg.DBPath)

	placeRepo := repo.NewPlaceRepo(db)
	tripRepo := repo.NewTripRepo(db)
	changeLog := repo.NewChangeLogRepo(db)

	placeSvc := service.NewPlaceService(placeRepo, tripRepo)
	tripSvc := service.NewTripService(tripRepo, placeRepo)
	exportSvc := service.NewExportService(placeRepo, placeSvc)

	// --- Sync -------------------------------------------------------------
	// The remote is the session with the managed synchronization service.
	// "loopback" keeps the whole dataset in-process; a production build
	// swaps in the real service client here and nothing else changes.
	var remote sync.Remote
	if cfg.SyncMode == config.SyncModeLoopback {
		remote = sync.NewLoopback().Attach()
	}

	engine := sync.NewEngine(db, placeRepo, tripRepo, changeLog, remote, logger)
	monitor := sync.NewMonitor(logger, 0)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go func() { _ = engine.Run(bgCtx) }()
	go monitor.Run(bgCtx, engine.Events())
	go monitor.RunProbe(bgCtx, remote, cfg.ProbeInterval)

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer.
	// RequestID generates a unique trace ID per request.
	// RealIP sets r.RemoteAddr from X-Forwarded-For / X-Real-IP (safe behind a proxy).
	// SlogLogger writes one structured JSON log line per request.
	// Recoverer catches panics and returns HTTP 500 instead of crashing.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	srv := handler.NewServer(placeSvc, tripSvc, exportSvc, engine, monitor, db)
	r.Mount("/", srv.Routes())

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	// The WebSocket status stream lives on its own connection lifetime, so
	// WriteTimeout stays 0 and the stream relies on client disconnects.
	httpSrv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr, "sync_mode", cfg.SyncMode)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
