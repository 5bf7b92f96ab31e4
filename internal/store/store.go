// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store is the persistence boundary: finalized recordings and club
// overlays in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/courtcast/courtcast/internal/finalize"
	"github.com/courtcast/courtcast/internal/log"
	"github.com/courtcast/courtcast/internal/recorder"
)

// ErrNotFound means no recording is stored under the given session ID.
var ErrNotFound = errors.New("recording not found")

const schema = `
CREATE TABLE IF NOT EXISTS recordings (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id        TEXT    NOT NULL UNIQUE,
	club_id           INTEGER NOT NULL,
	court_id          INTEGER NOT NULL,
	user_id           INTEGER NOT NULL,
	file_path         TEXT    NOT NULL,
	thumbnail_path    TEXT    NOT NULL DEFAULT '',
	file_size         INTEGER NOT NULL,
	duration_seconds  REAL    NOT NULL,
	wallclock_seconds REAL    NOT NULL,
	frames            INTEGER NOT NULL DEFAULT 0,
	stretched         INTEGER NOT NULL DEFAULT 0,
	recorded_at       TIMESTAMP NOT NULL,
	created_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recordings_club ON recordings(club_id, recorded_at);

CREATE TABLE IF NOT EXISTS overlays (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	club_id       INTEGER NOT NULL,
	name          TEXT    NOT NULL,
	image_path    TEXT    NOT NULL,
	position_x    REAL    NOT NULL DEFAULT 0,
	position_y    REAL    NOT NULL DEFAULT 0,
	width_percent REAL    NOT NULL DEFAULT 0,
	opacity       REAL    NOT NULL DEFAULT 1.0,
	is_active     INTEGER NOT NULL DEFAULT 1,
	sort_order    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_overlays_club ON overlays(club_id, is_active);
`

// Recording is a persisted row, shaped for the listing API.
type Recording struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	ClubID        int64     `json:"club_id"`
	CourtID       int64     `json:"court_id"`
	UserID        int64     `json:"user_id"`
	FilePath      string    `json:"file_path"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	FileSize      int64     `json:"file_size"`
	DurationSec   float64   `json:"duration_seconds"`
	WallClockSec  float64   `json:"wallclock_seconds"`
	Frames        int64     `json:"frames,omitempty"`
	Stretched     bool      `json:"stretched"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Store wraps the SQLite handle. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for ephemeral stores in tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between concurrent finalizations.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: log.WithComponent("store")}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecording inserts one finalized recording. Implements
// finalize.Persister; a second insert for the same session fails.
func (s *Store) SaveRecording(ctx context.Context, rec finalize.FinalizedRecording) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (
			session_id, club_id, court_id, user_id,
			file_path, thumbnail_path, file_size,
			duration_seconds, wallclock_seconds, frames, stretched,
			recorded_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.ClubID, rec.CourtID, rec.UserID,
		rec.OutputPath, rec.ThumbnailPath, rec.FileSize,
		rec.Duration.Seconds(), rec.WallClock.Seconds(), rec.Frames, rec.Stretched,
		rec.RecordedAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert recording %s: %w", rec.SessionID, err)
	}
	s.logger.Info().Str(log.FieldSessionID, rec.SessionID).Msg("recording persisted")
	return nil
}

// GetRecording looks a recording up by session ID.
func (s *Store) GetRecording(ctx context.Context, sessionID string) (Recording, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, club_id, court_id, user_id,
		       file_path, thumbnail_path, file_size,
		       duration_seconds, wallclock_seconds, frames, stretched, recorded_at
		FROM recordings WHERE session_id = ?`, sessionID)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, ErrNotFound
	}
	return rec, err
}

// ListRecordings returns the club's recordings, newest first.
func (s *Store) ListRecordings(ctx context.Context, clubID int64, limit int) ([]Recording, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, club_id, court_id, user_id,
		       file_path, thumbnail_path, file_size,
		       duration_seconds, wallclock_seconds, frames, stretched, recorded_at
		FROM recordings WHERE club_id = ?
		ORDER BY recorded_at DESC LIMIT ?`, clubID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dst ...any) error
}

func scanRecording(row scanner) (Recording, error) {
	var rec Recording
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.ClubID, &rec.CourtID, &rec.UserID,
		&rec.FilePath, &rec.ThumbnailPath, &rec.FileSize,
		&rec.DurationSec, &rec.WallClockSec, &rec.Frames, &rec.Stretched, &rec.RecordedAt,
	)
	if err != nil {
		return Recording{}, err
	}
	return rec, nil
}

// ActiveOverlays returns the club's active overlays in sort order.
// Implements recorder.OverlaySource.
func (s *Store) ActiveOverlays(ctx context.Context, clubID int64) ([]recorder.Overlay, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, image_path, position_x, position_y, width_percent, opacity
		FROM overlays WHERE club_id = ? AND is_active = 1
		ORDER BY sort_order, id`, clubID)
	if err != nil {
		return nil, fmt.Errorf("list overlays: %w", err)
	}
	defer rows.Close()

	var out []recorder.Overlay
	for rows.Next() {
		var ov recorder.Overlay
		if err := rows.Scan(&ov.Name, &ov.Path, &ov.PositionX, &ov.PositionY, &ov.WidthPercent, &ov.Opacity); err != nil {
			return nil, err
		}
		out = append(out, ov)
	}
	return out, rows.Err()
}

// SaveOverlay registers an overlay image for a club.
func (s *Store) SaveOverlay(ctx context.Context, clubID int64, ov recorder.Overlay, sortOrder int, active bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overlays (club_id, name, image_path, position_x, position_y, width_percent, opacity, is_active, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clubID, ov.Name, ov.Path, ov.PositionX, ov.PositionY, ov.WidthPercent, ov.Opacity, active, sortOrder,
	)
	if err != nil {
		return fmt.Errorf("insert overlay %s: %w", ov.Name, err)
	}
	return nil
}
