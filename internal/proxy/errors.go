// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package proxy

import "errors"

var (
	// ErrNoFreePorts means the configured port range is exhausted.
	ErrNoFreePorts = errors.New("no free relay ports")

	// ErrNotReady means the relay never reported live video within the
	// readiness timeout. The process has been torn down and the port
	// released when this is returned.
	ErrNotReady = errors.New("relay not ready")

	// ErrNotFound means no relay is registered on the given port.
	ErrNotFound = errors.New("relay not found")
)
