// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the daemon's HTTP control surface: session
// lifecycle, recording control, preview streaming and health.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/courtcast/courtcast/internal/config"
	"github.com/courtcast/courtcast/internal/log"
	"github.com/courtcast/courtcast/internal/recorder"
	"github.com/courtcast/courtcast/internal/session"
	"github.com/courtcast/courtcast/internal/store"
)

// Sessions is the slice of the session registry the API consumes.
type Sessions interface {
	CreateSession(ctx context.Context, courtID int64, cameraURL string, clubID, userID int64) (session.VideoSession, error)
	Get(id string) (session.VideoSession, error)
	List() []session.VideoSession
	Close(id string) error
}

// Recordings drives the encoder engine.
type Recordings interface {
	Start(ctx context.Context, sess session.VideoSession, duration time.Duration) (recorder.Status, error)
	Stop(sessionID string) (recorder.Result, error)
	Status(sessionID string) (recorder.Status, error)
	ActiveCount() int
}

// Previews streams snapshot frames to websocket viewers.
type Previews interface {
	Stream(w http.ResponseWriter, r *http.Request, sess session.VideoSession) error
}

// Library lists persisted recordings and manages club overlays.
type Library interface {
	ListRecordings(ctx context.Context, clubID int64, limit int) ([]store.Recording, error)
	GetRecording(ctx context.Context, sessionID string) (store.Recording, error)
	ActiveOverlays(ctx context.Context, clubID int64) ([]recorder.Overlay, error)
	SaveOverlay(ctx context.Context, clubID int64, ov recorder.Overlay, sortOrder int, active bool) error
}

// Server holds the handlers' collaborators.
type Server struct {
	cfg        config.Config
	sessions   Sessions
	recordings Recordings
	previews   Previews
	library    Library
	logger     zerolog.Logger
}

// NewServer wires the control surface. library may be nil when the store
// is disabled.
func NewServer(cfg config.Config, sessions Sessions, recordings Recordings, previews Previews, library Library) *Server {
	return &Server{
		cfg:        cfg,
		sessions:   sessions,
		recordings: recordings,
		previews:   previews,
		library:    library,
		logger:     log.WithComponent("api"),
	}
}

// Router assembles the chi routing tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Session creation spawns relay processes; keep bursts in check.
		r.With(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
			Post("/sessions", s.handleCreateSession)

		r.Get("/sessions", s.handleListSessions)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCloseSession)
			r.Post("/recording", s.handleStartRecording)
			r.Delete("/recording", s.handleStopRecording)
			r.Get("/recording", s.handleRecordingStatus)
			r.Get("/preview", s.handlePreview)
		})

		r.Get("/recordings", s.handleListRecordings)
		r.Get("/recordings/{sessionID}", s.handleGetRecording)

		r.Get("/overlays", s.handleListOverlays)
		r.Post("/overlays", s.handleCreateOverlay)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"active_sessions":   len(s.sessions.List()),
		"active_recordings": s.recordings.ActiveCount(),
	})
}
