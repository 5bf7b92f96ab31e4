// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session owns the registry of live camera sessions and enforces
// the one-active-recording-per-court invariant.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/courtcast/courtcast/internal/camera"
	"github.com/courtcast/courtcast/internal/proxy"
)

// VideoSession is the unit of work for one court/camera/user triple.
// All mutation goes through Registry methods; callers only ever see copies.
type VideoSession struct {
	ID      string `json:"session_id"`
	CourtID int64  `json:"court_id"`
	ClubID  int64  `json:"club_id"`
	UserID  int64  `json:"user_id"`

	Source camera.Source `json:"source"`

	// Proxy is nil when the relay path could not be established and the
	// direct-capture fallback applies.
	Proxy        *proxy.Handle `json:"-"`
	LocalFeedURL string        `json:"local_url,omitempty"`
	SnapshotURL  string        `json:"snapshot_url,omitempty"`
	ProxyPort    int           `json:"proxy_port,omitempty"`

	RecordingActive bool   `json:"recording_active"`
	OutputPath      string `json:"output_path,omitempty"`

	Verified       bool      `json:"verified"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity"`
}

// FeedURL returns the input the recording engine should consume: the local
// proxy feed when present (normalized frame pacing), else the raw camera URL.
func (s *VideoSession) FeedURL() string {
	if s.LocalFeedURL != "" {
		return s.LocalFeedURL
	}
	return s.Source.URL
}

// Expired reports whether the session idled beyond the timeout.
func (s *VideoSession) Expired(timeout time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivityAt) > timeout
}

func newSessionID(clubID, courtID int64, now time.Time) string {
	// Court + timestamp + random suffix: unique even within one second.
	return fmt.Sprintf("sess_%d_%d_%d_%s", clubID, courtID, now.Unix(), uuid.NewString()[:6])
}
