// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package finalize turns a stopped encoder task into a durable recording:
// probe, clock-drift correction, plausibility checks, thumbnail, persist.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/courtcast/courtcast/internal/config"
	"github.com/courtcast/courtcast/internal/log"
	"github.com/courtcast/courtcast/internal/metrics"
	"github.com/courtcast/courtcast/internal/recorder"
)

const (
	// minDuration rejects recordings too short to be a real rally.
	minDuration = 2 * time.Second

	// minBytesPerSecond rejects files implausibly small for their
	// duration; such files are truncated or all-black.
	minBytesPerSecond = 1000
)

// ErrRejected means the output failed plausibility checks and was not
// persisted. The file stays on disk for inspection.
var ErrRejected = errors.New("recording rejected as corrupt or incomplete")

// FinalizedRecording is handed to the persistence boundary once a
// recording passed all checks.
type FinalizedRecording struct {
	SessionID     string
	ClubID        int64
	CourtID       int64
	UserID        int64
	OutputPath    string
	ThumbnailPath string
	FileSize      int64
	Duration      time.Duration
	WallClock     time.Duration
	Frames        int64
	Stretched     bool
	BackupPath    string
	RecordedAt    time.Time
}

// Persister stores a finalized recording durably. The call is synchronous;
// on failure the file is retained on disk for manual recovery.
type Persister interface {
	SaveRecording(ctx context.Context, rec FinalizedRecording) error
}

// Finalizer runs the post-recording pipeline. Safe for concurrent use.
type Finalizer struct {
	cfg     config.Config
	ffmpeg  string
	prober  *Prober
	persist Persister
	logger  zerolog.Logger
}

// New wires a finalizer. ffprobePath may be empty; duration then falls
// back to wall-clock time. persist may be nil (finalize-only mode, used
// in tests).
func New(cfg config.Config, ffmpegPath, ffprobePath string, persist Persister) *Finalizer {
	return &Finalizer{
		cfg:     cfg,
		ffmpeg:  ffmpegPath,
		prober:  &Prober{Bin: ffprobePath},
		persist: persist,
		logger:  log.WithComponent("finalize"),
	}
}

// Finalize validates and persists one stopped recording.
func (f *Finalizer) Finalize(ctx context.Context, res recorder.Result) (FinalizedRecording, error) {
	logger := f.logger.With().Str(log.FieldSessionID, res.SessionID).Logger()

	fi, err := os.Stat(res.OutputPath)
	if err != nil {
		return FinalizedRecording{}, fmt.Errorf("output file: %w", err)
	}

	// Probe failure is tolerated; wall clock is the estimate then.
	info, err := f.prober.Probe(ctx, res.OutputPath)
	if err != nil {
		logger.Warn().Err(err).Msg("probe failed, falling back to wall-clock duration")
	}
	duration := info.Duration
	if duration <= 0 {
		duration = res.WallClock
	}

	var (
		stretched  bool
		backupPath string
	)
	if ratio, needed := stretchRatio(res.WallClock, duration); needed {
		logger.Info().
			Float64("ratio", ratio).
			Dur("wall_clock", res.WallClock).
			Dur("probed", duration).
			Msg("compressed timestamps detected, stretching")
		backup, err := f.stretch(ctx, res.OutputPath, ratio)
		if err != nil {
			logger.Error().Err(err).Msg("stretch failed, keeping original timing")
		} else {
			stretched = true
			backupPath = backup
			metrics.FinalizeStretchTotal.Inc()
			if reprobed, err := f.prober.Probe(ctx, res.OutputPath); err == nil && reprobed.Duration > 0 {
				duration = reprobed.Duration
			}
			if refi, err := os.Stat(res.OutputPath); err == nil {
				fi = refi
			}
		}
	}

	if reason, ok := plausible(duration, fi.Size()); !ok {
		logger.Error().
			Dur("duration", duration).
			Int64("bytes", fi.Size()).
			Str("reason", reason).
			Msg("recording rejected")
		metrics.IncRecording("rejected")
		return FinalizedRecording{}, fmt.Errorf("%w: %s", ErrRejected, reason)
	}

	thumbPath := f.cfg.ThumbnailPath(res.SessionID)
	if err := f.thumbnail(ctx, res.OutputPath, thumbPath); err != nil {
		logger.Warn().Err(err).Msg("thumbnail extraction failed")
		thumbPath = ""
	}

	final := FinalizedRecording{
		SessionID:     res.SessionID,
		ClubID:        res.ClubID,
		CourtID:       res.CourtID,
		UserID:        res.UserID,
		OutputPath:    res.OutputPath,
		ThumbnailPath: thumbPath,
		FileSize:      fi.Size(),
		Duration:      duration,
		WallClock:     res.WallClock,
		Frames:        info.Frames,
		Stretched:     stretched,
		BackupPath:    backupPath,
		RecordedAt:    res.StartedAt,
	}

	if f.persist != nil {
		if err := f.persist.SaveRecording(ctx, final); err != nil {
			// File stays on disk for manual recovery.
			logger.Error().Err(err).Str("output", final.OutputPath).Msg("persist failed, file retained")
			return final, fmt.Errorf("persist recording: %w", err)
		}
	}

	logger.Info().
		Dur("duration", final.Duration).
		Dur("wall_clock", final.WallClock).
		Int64("bytes", final.FileSize).
		Bool("stretched", final.Stretched).
		Msg("recording finalized")
	return final, nil
}

// plausible rejects obviously corrupt output: sub-2s clips and files far
// too small for their duration.
func plausible(duration time.Duration, size int64) (string, bool) {
	if duration < minDuration {
		return fmt.Sprintf("duration %.1fs below minimum", duration.Seconds()), false
	}
	if size < int64(duration.Seconds())*minBytesPerSecond {
		return fmt.Sprintf("file size %d implausible for %.1fs", size, duration.Seconds()), false
	}
	return "", true
}
