// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package proxy supervises the per-session relay processes that re-expose
// camera feeds as normalized local MJPEG endpoints.
package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/courtcast/courtcast/internal/config"
	"github.com/courtcast/courtcast/internal/log"
	"github.com/courtcast/courtcast/internal/metrics"
	"github.com/courtcast/courtcast/internal/procgroup"
	"github.com/courtcast/courtcast/internal/relay"
)

// Handle represents one running relay process. The port is exclusively owned
// and returned to the pool exactly once, on destruction.
type Handle struct {
	SessionID    string
	Port         int
	LocalFeedURL string

	cmd    *exec.Cmd
	waitCh chan error
}

// SnapshotURL returns the single-frame endpoint used by previews.
func (h *Handle) SnapshotURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/snapshot", h.Port)
}

// Supervisor launches and tears down relay processes and owns the port pool.
type Supervisor struct {
	cfg       config.ProxyConfig
	relayBin  string
	ffmpegBin string
	logger    zerolog.Logger
	client    *http.Client
	ports     *PortAllocator

	mu     sync.Mutex
	active map[int]*Handle

	sf singleflight.Group

	// test seams
	launch  func(sessionID, cameraURL string, port int) *exec.Cmd
	baseURL func(port int) string
}

// NewSupervisor creates a supervisor using the resolved relay and ffmpeg
// binaries. Relays inherit ffmpegBin so they decode with the same binary
// the daemon verified at startup, not whatever is first on PATH.
func NewSupervisor(cfg config.ProxyConfig, relayBin, ffmpegBin string) *Supervisor {
	s := &Supervisor{
		cfg:       cfg,
		relayBin:  relayBin,
		ffmpegBin: ffmpegBin,
		logger:    log.WithComponent("proxy"),
		client:    &http.Client{Timeout: cfg.HealthTimeout},
		ports:     NewPortAllocator(cfg.BasePort, cfg.PortRange),
		active:    make(map[int]*Handle),
	}
	s.launch = s.relayCommand
	s.baseURL = func(port int) string { return fmt.Sprintf("http://127.0.0.1:%d", port) }
	return s
}

// Available reports whether a relay binary was resolved at startup.
func (s *Supervisor) Available() bool {
	return s.relayBin != ""
}

// StartProxy allocates a port, launches the relay and waits until it reports
// live video. On any failure the process is terminated and the port released
// before returning; a handle in an indeterminate state is never returned.
func (s *Supervisor) StartProxy(ctx context.Context, sessionID, cameraURL string) (*Handle, error) {
	port, err := s.ports.Allocate()
	if err != nil {
		metrics.IncProxyStart("no_port")
		return nil, err
	}

	logger := s.logger.With().
		Str(log.FieldSessionID, sessionID).
		Int(log.FieldPort, port).
		Logger()

	cmd := s.launch(sessionID, cameraURL, port)
	procgroup.Set(cmd)

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		s.ports.Release(port)
		metrics.IncProxyStart("spawn_error")
		return nil, fmt.Errorf("spawn relay: %w", err)
	}

	logger.Info().Int(log.FieldPID, cmd.Process.Pid).Str(log.FieldSourceURL, cameraURL).Msg("relay launched")

	// Relay output is drained continuously to keep its pipes from filling.
	go drainToLogger(stdout, logger)
	go drainToLogger(stderr, logger)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	started := time.Now()
	if err := s.waitReady(ctx, port, waitCh); err != nil {
		logger.Error().Err(err).Msg("relay failed readiness, tearing down")
		if termErr := procgroup.Terminate(cmd, waitCh, syscall.SIGTERM, s.cfg.StopGrace); termErr != nil {
			logger.Warn().Err(termErr).Msg("relay termination reported error")
		}
		s.ports.Release(port)
		metrics.IncProxyStart("timeout")
		return nil, err
	}
	metrics.ProxyReadyDuration.Observe(time.Since(started).Seconds())
	metrics.IncProxyStart("ok")

	h := &Handle{
		SessionID:    sessionID,
		Port:         port,
		LocalFeedURL: fmt.Sprintf("http://127.0.0.1:%d/stream", port),
		cmd:          cmd,
		waitCh:       waitCh,
	}

	s.mu.Lock()
	s.active[port] = h
	s.mu.Unlock()

	logger.Info().Str(log.FieldLocalURL, h.LocalFeedURL).Msg("relay ready with live video")
	return h, nil
}

// waitReady polls the relay health endpoint until it reports has_video=true.
// A "process is up" response without frames is treated as not-ready. When
// the relay exits mid-startup its wait result is pushed back onto waitCh so
// the teardown path can still reap it.
func (s *Supervisor) waitReady(ctx context.Context, port int, waitCh chan error) error {
	deadline := time.Now().Add(s.cfg.ReadyTimeout)
	ticker := time.NewTicker(s.cfg.ReadyInterval)
	defer ticker.Stop()

	for {
		if h, err := s.fetchHealth(ctx, port); err == nil && h.HasVideo {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-waitCh:
			waitCh <- err
			return fmt.Errorf("%w: relay exited during startup: %v", ErrNotReady, err)
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("%w: no live video after %s", ErrNotReady, s.cfg.ReadyTimeout)
			}
		}
	}
}

// fetchHealth performs one bounded health probe; concurrent probes for the
// same port are collapsed into a single request.
func (s *Supervisor) fetchHealth(ctx context.Context, port int) (*relay.Health, error) {
	v, err, _ := s.sf.Do(strconv.Itoa(port), func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL(port)+"/health", nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("health status %d", resp.StatusCode)
		}
		var h relay.Health
		if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
			return nil, err
		}
		return &h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*relay.Health), nil
}

// StopProxy terminates the relay on the given port. The port is released
// unconditionally, even when termination fails, so a crashed relay can never
// leak its port permanently; the failure is logged instead.
func (s *Supervisor) StopProxy(port int) error {
	s.mu.Lock()
	h, ok := s.active[port]
	delete(s.active, port)
	s.mu.Unlock()

	defer s.ports.Release(port)

	if !ok {
		s.logger.Warn().Int(log.FieldPort, port).Msg("stop requested for unknown relay")
		return ErrNotFound
	}

	if err := procgroup.Terminate(h.cmd, h.waitCh, syscall.SIGTERM, s.cfg.StopGrace); err != nil {
		// Relays exit via signal, so a signal exit status is the normal case.
		s.logger.Debug().Err(err).Int(log.FieldPort, port).Msg("relay exit status")
	}

	s.logger.Info().Int(log.FieldPort, port).Str(log.FieldSessionID, h.SessionID).Msg("relay stopped")
	return nil
}

// CheckHealth reports whether the relay on the port is alive and reachable.
// Used by the orphan sweep; never blocks beyond the health timeout.
func (s *Supervisor) CheckHealth(ctx context.Context, port int) bool {
	s.mu.Lock()
	h, ok := s.active[port]
	s.mu.Unlock()
	if !ok {
		return false
	}

	// Process already reaped?
	select {
	case err := <-h.waitCh:
		// Put the result back for the eventual StopProxy call.
		h.waitCh <- err
		return false
	default:
	}

	hr, err := s.fetchHealth(ctx, port)
	return err == nil && hr.Status == "ok"
}

// StopAll terminates every active relay; used during daemon shutdown.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ports := make([]int, 0, len(s.active))
	for port := range s.active {
		ports = append(ports, port)
	}
	s.mu.Unlock()

	for _, port := range ports {
		_ = s.StopProxy(port)
	}
}

func (s *Supervisor) relayCommand(sessionID, cameraURL string, port int) *exec.Cmd {
	args := []string{
		"--session", sessionID,
		"--source", cameraURL,
		"--port", strconv.Itoa(port),
		"--fps", strconv.Itoa(s.cfg.RelayFPS),
		"--quality", strconv.Itoa(s.cfg.RelayQuality),
	}
	if s.ffmpegBin != "" {
		args = append(args, "--ffmpeg", s.ffmpegBin)
	}
	// #nosec G204 -- relay binary resolved from configuration at startup
	return exec.Command(s.relayBin, args...)
}

func drainToLogger(r io.Reader, logger zerolog.Logger) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 256<<10)
	for scanner.Scan() {
		logger.Debug().Str("relay_out", scanner.Text()).Msg("relay output")
	}
}
