// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/courtcast/courtcast/internal/camera"
	"github.com/courtcast/courtcast/internal/log"
	"github.com/courtcast/courtcast/internal/metrics"
	"github.com/courtcast/courtcast/internal/proxy"
)

// Detector classifies camera URLs; implemented by camera.Detector.
type Detector interface {
	Detect(ctx context.Context, cameraURL string) (camera.Source, error)
}

// ProxyManager materializes sessions as local relay endpoints; implemented
// by proxy.Supervisor.
type ProxyManager interface {
	StartProxy(ctx context.Context, sessionID, cameraURL string) (*proxy.Handle, error)
	StopProxy(port int) error
	CheckHealth(ctx context.Context, port int) bool
	Available() bool
}

// Registry is the stateful map from session ID to live session. It is the
// only owner of the session map; other components hold session IDs.
type Registry struct {
	detector Detector
	proxies  ProxyManager
	timeout  time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*VideoSession

	now func() time.Time // test seam
}

// NewRegistry wires the registry to its collaborators.
func NewRegistry(detector Detector, proxies ProxyManager, timeout time.Duration) *Registry {
	return &Registry{
		detector: detector,
		proxies:  proxies,
		timeout:  timeout,
		logger:   log.WithComponent("session"),
		sessions: make(map[string]*VideoSession),
		now:      time.Now,
	}
}

// CreateSession validates the camera, starts a relay and registers the
// session. Any failure leaves no dangling relay process or allocated port.
func (r *Registry) CreateSession(ctx context.Context, courtID int64, cameraURL string, clubID, userID int64) (VideoSession, error) {
	now := r.now()

	r.mu.Lock()
	if existing := r.liveByCourtLocked(courtID, now); existing != nil {
		r.mu.Unlock()
		return VideoSession{}, fmt.Errorf("%w: court %d is held by %s", ErrCourtBusy, courtID, existing.ID)
	}
	// Reserve the court before the slow detector/relay work so a concurrent
	// create on the same court conflicts instead of racing.
	placeholder := &VideoSession{
		ID:             newSessionID(clubID, courtID, now),
		CourtID:        courtID,
		ClubID:         clubID,
		UserID:         userID,
		Source:         camera.Source{URL: cameraURL, Transport: camera.TransportUnknown},
		CreatedAt:      now,
		LastActivityAt: now,
	}
	r.sessions[placeholder.ID] = placeholder
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	logger := r.logger.With().
		Str(log.FieldSessionID, placeholder.ID).
		Int64(log.FieldCourtID, courtID).
		Int64(log.FieldClubID, clubID).
		Logger()

	sess, err := r.materialize(ctx, logger, placeholder, cameraURL)
	if err != nil {
		r.remove(placeholder.ID)
		return VideoSession{}, err
	}

	logger.Info().
		Str(log.FieldTransport, string(sess.Source.Transport)).
		Str(log.FieldLocalURL, sess.LocalFeedURL).
		Bool("verified", sess.Verified).
		Msg("session created")
	return sess, nil
}

func (r *Registry) materialize(ctx context.Context, logger zerolog.Logger, sess *VideoSession, cameraURL string) (VideoSession, error) {
	src, err := r.detector.Detect(ctx, cameraURL)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldSourceURL, cameraURL).Msg("camera validation failed")
		return VideoSession{}, err
	}

	var handle *proxy.Handle
	if r.proxies.Available() {
		handle, err = r.proxies.StartProxy(ctx, sess.ID, cameraURL)
		if err != nil {
			return VideoSession{}, fmt.Errorf("start relay: %w", err)
		}
	} else {
		logger.Warn().Msg("no relay binary available, session falls back to direct capture")
	}

	r.mu.Lock()
	if _, live := r.sessions[sess.ID]; !live {
		// Closed while the relay was starting. Attaching the handle now
		// would hang it off a struct the registry no longer tracks and
		// leak the process and its port.
		r.mu.Unlock()
		logger.Warn().Msg("session closed during creation, discarding relay")
		if handle != nil {
			if err := r.proxies.StopProxy(handle.Port); err != nil {
				logger.Error().Err(err).Int(log.FieldPort, handle.Port).Msg("failed to stop relay for closed session")
			}
		}
		return VideoSession{}, ErrNotFound
	}
	defer r.mu.Unlock()
	sess.Source = src
	if handle != nil {
		sess.Proxy = handle
		sess.LocalFeedURL = handle.LocalFeedURL
		sess.SnapshotURL = handle.SnapshotURL()
		sess.ProxyPort = handle.Port
		sess.Verified = true
	}
	return *sess, nil
}

// liveByCourtLocked returns a session holding the court: recording, or
// simply not yet expired. Callers hold r.mu.
func (r *Registry) liveByCourtLocked(courtID int64, now time.Time) *VideoSession {
	for _, s := range r.sessions {
		if s.CourtID != courtID {
			continue
		}
		if s.RecordingActive || !s.Expired(r.timeout, now) {
			return s
		}
	}
	return nil
}

// Get returns a copy of the session and refreshes its activity timestamp.
func (r *Registry) Get(id string) (VideoSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return VideoSession{}, ErrNotFound
	}
	s.LastActivityAt = r.now()
	return *s, nil
}

// List returns copies of all registered sessions.
func (r *Registry) List() []VideoSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]VideoSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// MarkRecording flags the session as recording and pins its output path.
func (r *Registry) MarkRecording(id, outputPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.RecordingActive = true
	s.OutputPath = outputPath
	s.LastActivityAt = r.now()
	return nil
}

// ClearRecording drops the recording flag. Safe on unknown sessions so stop
// paths can clear unconditionally.
func (r *Registry) ClearRecording(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.RecordingActive = false
		s.LastActivityAt = r.now()
	}
}

// Close stops the session's relay and removes it from the registry. A
// session still flagged as recording is force-cleared with a warning rather
// than rejected: a session stuck mid-shutdown must never block cleanup.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if s.RecordingActive {
		r.logger.Warn().Str(log.FieldSessionID, id).Msg("closing session with recording still flagged active, forcing cleanup")
		s.RecordingActive = false
	}
	port := s.ProxyPort
	hasProxy := s.Proxy != nil
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if hasProxy {
		if err := r.proxies.StopProxy(port); err != nil {
			r.logger.Error().Err(err).Int(log.FieldPort, port).Msg("failed to stop relay during session close")
		}
	}

	r.logger.Info().Str(log.FieldSessionID, id).Msg("session closed")
	return nil
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}

// CleanupOrphans closes every session that is expired and not recording,
// plus sessions whose relay process died underneath them. An expired but
// still recording session is never reaped. Returns the number closed.
func (r *Registry) CleanupOrphans(ctx context.Context) int {
	now := r.now()

	type candidate struct {
		id        string
		port      int
		checkPort bool
	}

	r.mu.Lock()
	var candidates []candidate
	for id, s := range r.sessions {
		if s.RecordingActive {
			continue
		}
		if s.Expired(r.timeout, now) {
			candidates = append(candidates, candidate{id: id})
			continue
		}
		if s.Proxy != nil {
			candidates = append(candidates, candidate{id: id, port: s.ProxyPort, checkPort: true})
		}
	}
	r.mu.Unlock()

	// Health probes run outside the registry lock; they block for up to the
	// configured health timeout each.
	var orphans []string
	for _, c := range candidates {
		if !c.checkPort {
			orphans = append(orphans, c.id)
			continue
		}
		if !r.proxies.CheckHealth(ctx, c.port) {
			r.logger.Warn().Str(log.FieldSessionID, c.id).Int(log.FieldPort, c.port).Msg("relay died, reaping session")
			orphans = append(orphans, c.id)
		}
	}

	closed := 0
	for _, id := range orphans {
		// Re-check under the lock: a recording may have started while the
		// health probes were in flight.
		r.mu.Lock()
		s, ok := r.sessions[id]
		recording := ok && s.RecordingActive
		r.mu.Unlock()
		if !ok || recording {
			continue
		}
		r.logger.Info().Str(log.FieldSessionID, id).Msg("cleaning up orphan session")
		if err := r.Close(id); err == nil {
			closed++
		}
	}
	return closed
}

// CloseAll tears down every session; used during daemon shutdown.
func (r *Registry) CloseAll() {
	for _, s := range r.List() {
		_ = r.Close(s.ID)
	}
}
