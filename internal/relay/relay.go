// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package relay implements the per-session relay process: it pulls any
// supported camera transport through ffmpeg, keeps the latest JPEG frame in
// memory and re-exposes the feed as a normalized local MJPEG endpoint with
// a readiness health check.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/courtcast/courtcast/internal/log"
)

// Config holds the relay's runtime parameters.
type Config struct {
	SessionID         string
	Source            string
	FFmpegPath        string
	FPS               int
	Quality           int // JPEG quality 2..31 in ffmpeg's qscale terms, lower is better
	ReconnectInterval time.Duration
}

// Relay pumps frames from the camera and serves them to local consumers.
type Relay struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.RWMutex
	latest   []byte
	lastSeen time.Time

	frames   atomic.Int64
	hasVideo atomic.Bool
}

// New creates a relay for the given source.
func New(cfg Config) *Relay {
	if cfg.FPS <= 0 {
		cfg.FPS = 25
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 5
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &Relay{
		cfg:    cfg,
		logger: log.WithSession("relay", cfg.SessionID),
	}
}

// Run drives the frame pump until ctx is cancelled. Source loss triggers a
// reconnect after the configured interval instead of exiting, because brief
// feed drops are expected from consumer-grade cameras.
func (rl *Relay) Run(ctx context.Context) error {
	for {
		err := rl.pumpOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rl.logger.Warn().Err(err).
			Dur("retry_in", rl.cfg.ReconnectInterval).
			Msg("source lost, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.cfg.ReconnectInterval):
		}
	}
}

// pumpOnce runs one ffmpeg decode session and consumes frames until the
// stream ends or ctx is cancelled.
func (rl *Relay) pumpOnce(ctx context.Context) error {
	args := rl.buildArgs()

	rl.logger.Debug().Strs("args", args).Msg("starting decode pipeline")

	// #nosec G204 -- ffmpeg path comes from startup configuration, args are built locally
	cmd := exec.CommandContext(ctx, rl.cfg.FFmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	// Drain stderr continuously; a full pipe buffer deadlocks ffmpeg.
	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64<<10), 256<<10)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.Contains(strings.ToLower(line), "error") {
				rl.logger.Warn().Str("ffmpeg", line).Msg("decoder error output")
			}
		}
	}()

	scanner := NewFrameScanner(stdout)
	for {
		frame, err := scanner.Next()
		if err != nil {
			_ = cmd.Wait()
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return errors.New("decode stream ended")
			}
			return err
		}
		rl.storeFrame(frame)
	}
}

func (rl *Relay) buildArgs() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if strings.HasPrefix(strings.ToLower(rl.cfg.Source), "rtsp") {
		// TCP interleaving avoids UDP packet loss artifacts on busy club networks.
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-i", rl.cfg.Source,
		"-an",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(rl.cfg.Quality),
		"-r", strconv.Itoa(rl.cfg.FPS),
		"pipe:1",
	)
	return args
}

func (rl *Relay) storeFrame(frame []byte) {
	rl.mu.Lock()
	rl.latest = frame
	rl.lastSeen = time.Now()
	rl.mu.Unlock()

	if rl.frames.Add(1) == 1 {
		rl.hasVideo.Store(true)
		rl.logger.Info().Msg("first frame observed, relay carries live video")
	}
}

// Latest returns the most recent frame and its arrival time, or nil when no
// frame has been observed yet.
func (rl *Relay) Latest() ([]byte, time.Time) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.latest, rl.lastSeen
}

// HasVideo reports whether live video content has actually been observed.
// "Process is up" alone never flips this.
func (rl *Relay) HasVideo() bool {
	return rl.hasVideo.Load()
}

// FrameCount returns the number of frames observed since start.
func (rl *Relay) FrameCount() int64 {
	return rl.frames.Load()
}
