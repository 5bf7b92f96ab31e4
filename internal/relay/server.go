// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

const streamBoundary = "frame"

// Health is the readiness document served on /health. HasVideo distinguishes
// "process launched" from "process is actually carrying usable video".
type Health struct {
	Status         string `json:"status"`
	HasVideo       bool   `json:"has_video"`
	Frames         int64  `json:"frames"`
	LastFrameAgeMS int64  `json:"last_frame_age_ms"`
	FPS            int    `json:"fps"`
}

// Handler builds the relay's local HTTP surface: /stream, /snapshot, /health.
func Handler(rl *Relay) http.Handler {
	r := chi.NewRouter()
	r.Get("/stream", rl.handleStream)
	r.Get("/snapshot", rl.handleSnapshot)
	r.Get("/health", rl.handleHealth)
	return r
}

func (rl *Relay) handleHealth(w http.ResponseWriter, r *http.Request) {
	frame, seen := rl.Latest()

	h := Health{
		Status:   "ok",
		HasVideo: rl.HasVideo(),
		Frames:   rl.FrameCount(),
		FPS:      rl.cfg.FPS,
	}
	if frame != nil {
		h.LastFrameAgeMS = time.Since(seen).Milliseconds()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h)
}

func (rl *Relay) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	frame, _ := rl.Latest()
	if frame == nil {
		http.Error(w, "no frame available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	_, _ = w.Write(frame)
}

// handleStream serves the continuous MJPEG stream, paced at the configured
// output fps regardless of how the camera delivers frames upstream.
func (rl *Relay) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", streamBoundary))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "close")

	limiter := rate.NewLimiter(rate.Limit(rl.cfg.FPS), 1)
	ctx := r.Context()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		frame, _ := rl.Latest()
		if frame == nil {
			continue
		}

		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", streamBoundary, len(frame)); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		flusher.Flush()
	}
}
