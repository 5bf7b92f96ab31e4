// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// The courtcast relay: one process per session, pumping the camera feed
// into a local MJPEG endpoint (/stream, /snapshot, /health). Spawned and
// supervised by the daemon's proxy supervisor.
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

	"golang.org/x/sync/errgroup"

	"github.com/courtcast/courtcast/internal/log"
	"github.com/courtcast/courtcast/internal/relay"
)

func main() {
	sessionID := flag.String("session", "", "session ID (for log correlation)")
	source := flag.String("source", "", "camera source URL (http/mjpeg/rtsp)")
	port := flag.Int("port", 0, "local port to serve on")
	fps := flag.Int("fps", 25, "output frame rate")
	quality := flag.Int("quality", 5, "JPEG quality (ffmpeg qscale, 2..31, lower is better)")
	ffmpegPath := flag.String("ffmpeg", "ffmpeg", "path to ffmpeg")
	flag.Parse()

	if *source == "" || *port <= 0 {
		fmt.Fprintln(os.Stderr, "usage: courtcast-relay --session <id> --source <url> --port <port>")
		os.Exit(2)
	}

	log.Configure(log.Config{Service: "courtcast-relay"})
	logger := log.WithSession("relay", *sessionID)

	rl := relay.New(relay.Config{
		SessionID:  *sessionID,
		Source:     *source,
		FFmpegPath: *ffmpegPath,
		FPS:        *fps,
		Quality:    *quality,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", *port),
		Handler:           relay.Handler(rl),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := rl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info().Int(log.FieldPort, *port).Str(log.FieldSourceURL, *source).Msg("relay listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("relay exited with error")
		os.Exit(1)
	}
}
