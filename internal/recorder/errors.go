// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package recorder

import "errors"

var (
	// ErrAlreadyRecording means a recording task exists for the session.
	ErrAlreadyRecording = errors.New("recording already active for session")

	// ErrTooManyRecordings means the concurrent encoder cap is reached.
	ErrTooManyRecordings = errors.New("too many concurrent recordings")

	// ErrNotRecording means no recording task exists for the session.
	ErrNotRecording = errors.New("no active recording for session")

	// ErrOutputInvalid means the encoder exited but left no plausible
	// output file behind.
	ErrOutputInvalid = errors.New("recording output missing or too small")
)
