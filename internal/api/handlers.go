// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/courtcast/courtcast/internal/recorder"
)

type createSessionRequest struct {
	CourtID   int64  `json:"court_id"`
	ClubID    int64  `json:"club_id"`
	UserID    int64  `json:"user_id"`
	CameraURL string `json:"camera_url"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.CameraURL == "" || req.CourtID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "camera_url and court_id are required"})
		return
	}

	sess, err := s.sessions.CreateSession(r.Context(), req.CourtID, req.CameraURL, req.ClubID, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Close(id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "closed"})
}

type startRecordingRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req startRecordingRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	status, err := s.recordings.Start(r.Context(), sess, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	res, err := s.recordings.Stop(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Finalization runs in the background; the client gets the raw output
	// path immediately.
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":         res.SessionID,
		"output_path":        res.OutputPath,
		"wallclock_seconds":  int(res.WallClock.Seconds()),
		"trigger":            res.Trigger,
		"finalization_state": "pending",
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.recordings.Status(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.previews.Stream(w, r, sess); err != nil {
		// Stream errors before the websocket upgrade still have a plain
		// HTTP response channel.
		writeError(w, r, err)
	}
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "recording store disabled"})
		return
	}
	clubID, err := strconv.ParseInt(r.URL.Query().Get("club_id"), 10, 64)
	if err != nil || clubID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "club_id query parameter is required"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recs, err := s.library.ListRecordings(r.Context(), clubID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recordings": recs})
}

type overlayRequest struct {
	ClubID       int64   `json:"club_id"`
	Name         string  `json:"name"`
	Path         string  `json:"path"`
	PositionX    float64 `json:"position_x"`
	PositionY    float64 `json:"position_y"`
	WidthPercent float64 `json:"width_percent"`
	Opacity      float64 `json:"opacity"`
	SortOrder    int     `json:"sort_order"`
	Active       *bool   `json:"is_active"`
}

func (s *Server) handleCreateOverlay(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "recording store disabled"})
		return
	}
	var req overlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ClubID <= 0 || req.Name == "" || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "club_id, name and path are required"})
		return
	}
	if req.Opacity <= 0 {
		req.Opacity = 1.0
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	ov := recorder.Overlay{
		Name:         req.Name,
		Path:         req.Path,
		PositionX:    req.PositionX,
		PositionY:    req.PositionY,
		WidthPercent: req.WidthPercent,
		Opacity:      req.Opacity,
	}
	if err := s.library.SaveOverlay(r.Context(), req.ClubID, ov, req.SortOrder, active); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ov)
}

func (s *Server) handleListOverlays(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "recording store disabled"})
		return
	}
	clubID, err := strconv.ParseInt(r.URL.Query().Get("club_id"), 10, 64)
	if err != nil || clubID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "club_id query parameter is required"})
		return
	}
	overlays, err := s.library.ActiveOverlays(r.Context(), clubID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"overlays": overlays})
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "recording store disabled"})
		return
	}
	rec, err := s.library.GetRecording(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
