// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// The courtcast daemon: session registry, relay supervision, recording
// engine, finalizer and the HTTP control surface, in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/courtcast/courtcast/internal/api"
	"github.com/courtcast/courtcast/internal/camera"
	"github.com/courtcast/courtcast/internal/config"
	"github.com/courtcast/courtcast/internal/finalize"
	"github.com/courtcast/courtcast/internal/log"
	"github.com/courtcast/courtcast/internal/preview"
	"github.com/courtcast/courtcast/internal/proxy"
	"github.com/courtcast/courtcast/internal/recorder"
	"github.com/courtcast/courtcast/internal/session"
	"github.com/courtcast/courtcast/internal/store"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	envPath := flag.String("env", "", "path to .env file (optional)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("courtcast %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// A .env next to the binary is convenient in development; absence is
	// not an error.
	if *envPath != "" {
		_ = godotenv.Load(*envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "courtcast"})
	logger := log.WithComponent("daemon")

	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
}

func run(cfg config.Config) error {
	logger := log.WithComponent("daemon")

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	bins, err := config.ResolveBinaries(cfg)
	if err != nil {
		return err
	}
	verifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = config.VerifyFFmpeg(verifyCtx, bins.FFmpeg)
	cancel()
	if err != nil {
		return fmt.Errorf("ffmpeg verification: %w", err)
	}
	if bins.FFprobe == "" {
		logger.Warn().Msg("ffprobe not found, finalizer falls back to wall-clock durations")
	}
	if bins.Relay == "" {
		logger.Warn().Msg("relay binary not found, sessions fall back to direct capture")
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	detector := camera.NewDetector(5 * time.Second)
	proxies := proxy.NewSupervisor(cfg.Proxy, bins.Relay, bins.FFmpeg)
	registry := session.NewRegistry(detector, proxies, cfg.Session.Timeout)
	engine := recorder.NewEngine(cfg, bins.FFmpeg, registry, db)
	previews := preview.NewManager(cfg.Preview)

	finalizer := finalize.New(cfg, bins.FFmpeg, bins.FFprobe, db)
	worker, err := finalize.NewWorker(finalizer, 2, 10*time.Minute)
	if err != nil {
		return fmt.Errorf("finalize pool: %w", err)
	}
	defer worker.Close()
	engine.OnComplete = worker.Enqueue

	server := api.NewServer(cfg, registry, engine, previews, db)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("listen", cfg.ListenAddr).Str("version", version).Msg("control surface listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Session.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := registry.CleanupOrphans(ctx); n > 0 {
					logger.Info().Int("closed", n).Msg("orphan sweep")
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)

		// Recordings first so encoders can write their trailers, then the
		// relays underneath them.
		engine.StopAll()
		registry.CloseAll()
		proxies.StopAll()
		return nil
	})

	return g.Wait()
}
