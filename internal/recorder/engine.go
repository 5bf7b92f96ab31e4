// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package recorder supervises the ffmpeg encoder subprocess for each
// recording: one task per session, bounded concurrency, a safety timer
// that force-stops runaway recordings, and overlay compositing.
package recorder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/courtcast/courtcast/internal/config"
	"github.com/courtcast/courtcast/internal/log"
	"github.com/courtcast/courtcast/internal/metrics"
	"github.com/courtcast/courtcast/internal/procgroup"
	"github.com/courtcast/courtcast/internal/session"
)

// Stop triggers, reported in Result and logs.
const (
	TriggerStop        = "stop"
	TriggerSafetyTimer = "safety_timer"
	TriggerShutdown    = "shutdown"
)

// SessionFlags is the slice of the session registry the engine needs:
// flagging recordings on and off. Implemented by session.Registry.
type SessionFlags interface {
	MarkRecording(id, outputPath string) error
	ClearRecording(id string)
}

// Result describes one finished recording, handed to the finalizer.
type Result struct {
	SessionID  string
	ClubID     int64
	CourtID    int64
	UserID     int64
	OutputPath string
	StartedAt  time.Time
	WallClock  time.Duration
	Planned    time.Duration
	Trigger    string
}

// Status is the observational view of a running task.
type Status struct {
	SessionID  string        `json:"session_id"`
	Active     bool          `json:"active"`
	PID        int           `json:"pid"`
	Elapsed    time.Duration `json:"-"`
	ElapsedSec int           `json:"elapsed_seconds"`
	PlannedSec int           `json:"duration_seconds"`
	OutputPath string        `json:"output_path"`
}

type task struct {
	sessionID  string
	clubID     int64
	courtID    int64
	userID     int64
	outputPath string
	startedAt  time.Time
	planned    time.Duration

	cmd    *exec.Cmd
	waitCh chan error
	timer  *time.Timer
}

// Engine owns all encoder subprocesses. Tasks are keyed by session ID; the
// engine is the only component with termination authority over them.
type Engine struct {
	cfg    config.Config
	ffmpeg string
	flags  SessionFlags
	source OverlaySource
	logger zerolog.Logger

	// OnComplete, when set, receives every successfully validated
	// recording on its own goroutine. Wired to the finalizer.
	OnComplete func(Result)

	mu       sync.Mutex
	tasks    map[string]*task
	starting map[string]struct{}

	now func() time.Time // test seam
}

// NewEngine wires the engine to its collaborators. source may be nil when
// overlay support is disabled.
func NewEngine(cfg config.Config, ffmpegPath string, flags SessionFlags, source OverlaySource) *Engine {
	return &Engine{
		cfg:      cfg,
		ffmpeg:   ffmpegPath,
		flags:    flags,
		source:   source,
		logger:   log.WithComponent("recorder"),
		tasks:    make(map[string]*task),
		starting: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Start launches the encoder for the session. It refuses a second start for
// the same session and enforces the global concurrency cap. The safety
// timer fires at the planned duration and force-stops the task if the
// client never calls Stop.
func (e *Engine) Start(ctx context.Context, sess session.VideoSession, duration time.Duration) (Status, error) {
	if duration <= 0 {
		duration = e.cfg.Recording.DefaultDuration
	}

	// Reserve the slot, then spawn outside the lock: the overlay query,
	// the output mkdir and the process start must not stall Status and
	// Stop calls for unrelated sessions.
	if err := e.reserve(sess.ID); err != nil {
		return Status{}, err
	}
	started := false
	defer func() {
		if !started {
			e.mu.Lock()
			delete(e.starting, sess.ID)
			e.mu.Unlock()
		}
	}()

	logger := e.logger.With().Str(log.FieldSessionID, sess.ID).Logger()

	overlays := e.activeOverlays(ctx, logger, sess.ClubID)

	dir, err := e.cfg.VideoDir(sess.ClubID)
	if err != nil {
		return Status{}, fmt.Errorf("prepare output dir: %w", err)
	}
	outputPath := filepath.Join(dir, sess.ID+".mp4")

	cmd := exec.Command(e.ffmpeg, encodeArgs(sess.FeedURL(), overlays, duration, outputPath, e.cfg.Recording)...) // #nosec G204
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Status{}, fmt.Errorf("encoder stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Status{}, fmt.Errorf("encoder stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Status{}, fmt.Errorf("encoder start: %w", err)
	}

	// Both streams must be drained continuously or ffmpeg deadlocks once
	// the pipe buffer fills. Lines land in the per-session log file.
	sink := newLogSink(e.cfg.EncoderLogPath(sess.ID), logger)
	var drains sync.WaitGroup
	drains.Add(2)
	go func() { defer drains.Done(); sink.drain(stdout, false) }()
	go func() { defer drains.Done(); sink.drain(stderr, true) }()

	waitCh := make(chan error, 1)
	go func() {
		drains.Wait()
		sink.close()
		waitCh <- cmd.Wait()
	}()

	if err := e.flags.MarkRecording(sess.ID, outputPath); err != nil {
		_ = procgroup.Terminate(cmd, waitCh, syscall.SIGKILL, 0)
		return Status{}, fmt.Errorf("mark recording: %w", err)
	}

	t := &task{
		sessionID:  sess.ID,
		clubID:     sess.ClubID,
		courtID:    sess.CourtID,
		userID:     sess.UserID,
		outputPath: outputPath,
		startedAt:  e.now(),
		planned:    duration,
		cmd:        cmd,
		waitCh:     waitCh,
	}
	e.mu.Lock()
	// Armed under the lock so a firing timer always finds the task.
	t.timer = time.AfterFunc(duration, func() { e.autoStop(sess.ID) })
	delete(e.starting, sess.ID)
	e.tasks[sess.ID] = t
	metrics.ActiveRecordings.Set(float64(len(e.tasks)))
	st := e.statusLocked(t)
	e.mu.Unlock()
	started = true

	metrics.IncRecording("started")
	logger.Info().
		Int(log.FieldPID, cmd.Process.Pid).
		Dur("planned", duration).
		Int("overlays", len(overlays)).
		Str("output", outputPath).
		Msg("recording started")

	return st, nil
}

// reserve claims a start slot for the session. Duplicate and cap checks
// count running tasks plus in-flight starts so two racing Start calls
// cannot both pass.
func (e *Engine) reserve(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tasks[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRecording, id)
	}
	if _, exists := e.starting[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRecording, id)
	}
	if len(e.tasks)+len(e.starting) >= e.cfg.Recording.MaxConcurrent {
		return fmt.Errorf("%w: limit %d", ErrTooManyRecordings, e.cfg.Recording.MaxConcurrent)
	}
	e.starting[id] = struct{}{}
	return nil
}

func (e *Engine) activeOverlays(ctx context.Context, logger zerolog.Logger, clubID int64) []Overlay {
	if e.source == nil {
		return nil
	}
	overlays, err := e.source.ActiveOverlays(ctx, clubID)
	if err != nil {
		// Overlays are decoration; the recording proceeds without them.
		logger.Warn().Err(err).Int64(log.FieldClubID, clubID).Msg("overlay lookup failed, recording without overlays")
		return nil
	}
	return resolveOverlays(logger, overlays)
}

// Stop gracefully terminates the session's encoder and validates the
// output. Stopping a session with no task returns ErrNotRecording.
func (e *Engine) Stop(sessionID string) (Result, error) {
	return e.finish(sessionID, TriggerStop)
}

func (e *Engine) autoStop(sessionID string) {
	e.logger.Warn().Str(log.FieldSessionID, sessionID).Msg("safety timer fired, force-stopping recording")
	if _, err := e.finish(sessionID, TriggerSafetyTimer); err != nil && err != ErrNotRecording {
		e.logger.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("safety stop failed")
	}
}

func (e *Engine) finish(sessionID, trigger string) (Result, error) {
	e.mu.Lock()
	t, ok := e.tasks[sessionID]
	if !ok {
		e.mu.Unlock()
		return Result{}, ErrNotRecording
	}
	delete(e.tasks, sessionID)
	metrics.ActiveRecordings.Set(float64(len(e.tasks)))
	e.mu.Unlock()

	t.timer.Stop()

	// The flag comes off no matter how termination goes; a stuck flag
	// would pin the court forever.
	defer e.flags.ClearRecording(sessionID)

	logger := e.logger.With().Str(log.FieldSessionID, sessionID).Str("trigger", trigger).Logger()

	select {
	case err := <-t.waitCh:
		logger.Debug().AnErr("exit", err).Msg("encoder already exited")
	default:
		// SIGINT first so ffmpeg writes the mp4 trailer.
		if err := procgroup.Terminate(t.cmd, t.waitCh, syscall.SIGINT, e.cfg.Recording.StopGrace); err != nil {
			logger.Error().Err(err).Msg("encoder termination failed")
		}
	}

	res := Result{
		SessionID:  t.sessionID,
		ClubID:     t.clubID,
		CourtID:    t.courtID,
		UserID:     t.userID,
		OutputPath: t.outputPath,
		StartedAt:  t.startedAt,
		WallClock:  e.now().Sub(t.startedAt),
		Planned:    t.planned,
		Trigger:    trigger,
	}

	fi, err := os.Stat(t.outputPath)
	if err != nil || fi.Size() < e.cfg.Recording.MinOutputBytes {
		metrics.IncRecording("failed")
		logger.Error().Err(err).Str("output", t.outputPath).Msg("recording output missing or too small")
		return Result{}, fmt.Errorf("%w: %s", ErrOutputInvalid, t.outputPath)
	}

	metrics.IncRecording("completed")
	logger.Info().
		Str("output", t.outputPath).
		Int64("bytes", fi.Size()).
		Dur("wall_clock", res.WallClock).
		Msg("recording stopped")

	if e.OnComplete != nil {
		go e.OnComplete(res)
	}
	return res, nil
}

// Status reports liveness and progress of the session's task.
func (e *Engine) Status(sessionID string) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tasks[sessionID]
	if !ok {
		return Status{}, ErrNotRecording
	}
	return e.statusLocked(t), nil
}

func (e *Engine) statusLocked(t *task) Status {
	active := true
	select {
	case err := <-t.waitCh:
		t.waitCh <- err
		active = false
	default:
	}

	elapsed := e.now().Sub(t.startedAt)
	return Status{
		SessionID:  t.sessionID,
		Active:     active,
		PID:        t.cmd.Process.Pid,
		Elapsed:    elapsed,
		ElapsedSec: int(elapsed.Seconds()),
		PlannedSec: int(t.planned.Seconds()),
		OutputPath: t.outputPath,
	}
}

// ActiveCount returns the number of running tasks.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// StopAll terminates every task; used during daemon shutdown.
func (e *Engine) StopAll() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.tasks))
	for id := range e.tasks {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if _, err := e.finish(id, TriggerShutdown); err != nil && err != ErrNotRecording {
			e.logger.Error().Err(err).Str(log.FieldSessionID, id).Msg("shutdown stop failed")
		}
	}
}

// logSink serializes encoder output lines into the per-session log file.
// Error lines are mirrored to the daemon log.
type logSink struct {
	mu     sync.Mutex
	file   *os.File
	logger zerolog.Logger
}

func newLogSink(path string, logger zerolog.Logger) *logSink {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("encoder log file unavailable")
		f = nil
	}
	return &logSink{file: f, logger: logger}
}

func (s *logSink) drain(r io.Reader, mirrorErrors bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s.mu.Lock()
		if s.file != nil {
			_, _ = s.file.WriteString(line + "\n")
		}
		s.mu.Unlock()
		if mirrorErrors && strings.Contains(strings.ToLower(line), "error") {
			s.logger.Warn().Str("ffmpeg", line).Msg("encoder error output")
		}
	}
}

func (s *logSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}
