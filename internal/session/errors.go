// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import "errors"

var (
	// ErrCourtBusy means the court already has a live session. Never
	// retried; the caller reacts immediately.
	ErrCourtBusy = errors.New("court already has an active session")

	// ErrNotFound means no session is registered under the given ID.
	ErrNotFound = errors.New("session not found")
)
