// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldCourtID   = "court_id"
	FieldClubID    = "club_id"
	FieldUserID    = "user_id"

	// Process / pipeline fields
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldEvent     = "event"

	// Media / stream fields
	FieldTransport = "transport"
	FieldFPS       = "fps"
	FieldDuration  = "duration_s"

	// Path / URL fields
	FieldPath      = "path"
	FieldSourceURL = "source_url"
	FieldLocalURL  = "local_url"

	// Network fields
	FieldPort = "port"
)
