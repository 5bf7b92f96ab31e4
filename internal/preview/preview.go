// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package preview streams low-rate snapshot frames from a session's local
// feed to websocket viewers. Preview is for human monitoring; it runs at a
// few frames per second regardless of the recording rate.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/courtcast/courtcast/internal/config"
	"github.com/courtcast/courtcast/internal/log"
	"github.com/courtcast/courtcast/internal/metrics"
	"github.com/courtcast/courtcast/internal/session"
)

var (
	// ErrViewerLimit means the advisory per-session viewer cap is
	// reached. Existing viewers are unaffected.
	ErrViewerLimit = errors.New("preview viewer limit reached")

	// ErrNoFeed means the session has no local relay feed to snapshot.
	ErrNoFeed = errors.New("session has no local feed")
)

// fetchBackoff is the pause after a failed snapshot fetch. Transient feed
// hiccups are expected; the stream survives them.
const fetchBackoff = time.Second

// Manager tracks viewers per session and pumps frames to them.
type Manager struct {
	cfg      config.PreviewConfig
	client   *http.Client
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	viewers map[string]int
}

// NewManager builds a preview manager from config.
func NewManager(cfg config.PreviewConfig) *Manager {
	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			// The control surface sits behind the same origin-agnostic
			// API as the rest of the daemon.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  log.WithComponent("preview"),
		viewers: make(map[string]int),
	}
}

// Viewers returns the current viewer count for a session.
func (m *Manager) Viewers(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewers[sessionID]
}

func (m *Manager) attach(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewers[sessionID] >= m.cfg.MaxViewers {
		return fmt.Errorf("%w: %d", ErrViewerLimit, m.cfg.MaxViewers)
	}
	m.viewers[sessionID]++
	metrics.PreviewViewers.WithLabelValues(sessionID).Set(float64(m.viewers[sessionID]))
	return nil
}

func (m *Manager) detach(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewers[sessionID] > 0 {
		m.viewers[sessionID]--
	}
	if m.viewers[sessionID] == 0 {
		delete(m.viewers, sessionID)
		metrics.PreviewViewers.DeleteLabelValues(sessionID)
		return
	}
	metrics.PreviewViewers.WithLabelValues(sessionID).Set(float64(m.viewers[sessionID]))
}

// Stream upgrades the request to a websocket and forwards snapshot frames
// until the client disconnects. Must be called before anything is written
// to w.
func (m *Manager) Stream(w http.ResponseWriter, r *http.Request, sess session.VideoSession) error {
	if sess.SnapshotURL == "" {
		return ErrNoFeed
	}
	if err := m.attach(sess.ID); err != nil {
		return err
	}
	defer m.detach(sess.ID)

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	defer conn.Close()

	logger := m.logger.With().Str(log.FieldSessionID, sess.ID).Logger()
	logger.Info().Int("viewers", m.Viewers(sess.ID)).Msg("preview viewer attached")
	defer logger.Info().Msg("preview viewer detached")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read pump exists only to notice the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(m.cfg.FPS), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		frame, err := m.fetchSnapshot(ctx, sess.SnapshotURL)
		if err != nil {
			// Transient hiccup: back off and keep the viewer attached.
			logger.Debug().Err(err).Msg("snapshot fetch failed, backing off")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchBackoff):
			}
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return nil
		}
	}
}

func (m *Manager) fetchSnapshot(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
