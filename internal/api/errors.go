// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/courtcast/courtcast/internal/camera"
	"github.com/courtcast/courtcast/internal/log"
	"github.com/courtcast/courtcast/internal/preview"
	"github.com/courtcast/courtcast/internal/proxy"
	"github.com/courtcast/courtcast/internal/recorder"
	"github.com/courtcast/courtcast/internal/session"
	"github.com/courtcast/courtcast/internal/store"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Unexpected errors are
// logged with the request's correlation fields; expected conflict/not-found
// outcomes are not worth a log line each.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.FromContext(r.Context()).Error().Err(err).Str(log.FieldPath, r.URL.Path).Msg("request failed")
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrCourtBusy),
		errors.Is(err, recorder.ErrAlreadyRecording),
		errors.Is(err, preview.ErrNoFeed):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, recorder.ErrNotRecording),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, camera.ErrInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, recorder.ErrTooManyRecordings),
		errors.Is(err, preview.ErrViewerLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, proxy.ErrNotReady),
		errors.Is(err, proxy.ErrNoFreePorts):
		return http.StatusBadGateway
	case errors.Is(err, recorder.ErrOutputInvalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
