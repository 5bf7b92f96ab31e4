// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Binaries holds the resolved absolute paths of the external tools the
// daemon supervises. Resolution happens once at startup.
type Binaries struct {
	FFmpeg  string
	FFprobe string
	Relay   string
}

// ResolveBinaries locates ffmpeg, ffprobe and the relay helper. A missing
// ffmpeg is fatal; a missing ffprobe only disables probing (the finalizer
// falls back to wall-clock durations); a missing relay disables the proxy
// path and forces the direct-capture fallback.
func ResolveBinaries(cfg Config) (Binaries, error) {
	var b Binaries

	ffmpeg, err := resolveExecutable(cfg.FFmpegPath)
	if err != nil {
		return b, fmt.Errorf("ffmpeg not found (%q): %w", cfg.FFmpegPath, err)
	}
	b.FFmpeg = ffmpeg

	if ffprobe, err := resolveExecutable(cfg.FFprobePath); err == nil {
		b.FFprobe = ffprobe
	}

	relayPath := cfg.RelayPath
	if relayPath == "" {
		// Default: the relay binary installed next to the daemon.
		if self, err := os.Executable(); err == nil {
			relayPath = filepath.Join(filepath.Dir(self), "courtcast-relay")
		}
	}
	if relayPath != "" {
		if relay, err := resolveExecutable(relayPath); err == nil {
			b.Relay = relay
		}
	}

	return b, nil
}

// VerifyFFmpeg runs "ffmpeg -version" with a short timeout to confirm the
// resolved binary actually executes.
func VerifyFFmpeg(ctx context.Context, ffmpegPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// #nosec G204 -- ffmpegPath was resolved from configuration at startup
	cmd := exec.CommandContext(ctx, ffmpegPath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg at %s is not runnable: %w", ffmpegPath, err)
	}
	return nil
}

func resolveExecutable(path string) (string, error) {
	if path == "" {
		return "", os.ErrNotExist
	}
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		return filepath.Clean(path), nil
	}
	return exec.LookPath(path)
}
