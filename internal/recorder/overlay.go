// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package recorder

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// Overlay is a single image composited onto the recording. Position and
// width are in percent of the output frame; opacity in [0,1]. Width is
// carried for clients and stored per club, but compositing keeps the image
// at its native size.
type Overlay struct {
	Name         string  `json:"name"`
	Path         string  `json:"path"`
	PositionX    float64 `json:"position_x"`
	PositionY    float64 `json:"position_y"`
	WidthPercent float64 `json:"width_percent"`
	Opacity      float64 `json:"opacity"`
}

// OverlaySource yields the active overlays for a club. Implemented by the
// recordings store; a nil source means no overlays.
type OverlaySource interface {
	ActiveOverlays(ctx context.Context, clubID int64) ([]Overlay, error)
}

// resolveOverlays drops overlays whose image is not on disk. A missing
// image is logged and skipped rather than failing the recording.
func resolveOverlays(logger zerolog.Logger, overlays []Overlay) []Overlay {
	out := overlays[:0]
	for _, ov := range overlays {
		if ov.Path == "" {
			continue
		}
		if _, err := os.Stat(ov.Path); err != nil {
			logger.Warn().Str("overlay", ov.Name).Str("path", ov.Path).Msg("overlay image not found, skipping")
			continue
		}
		out = append(out, ov)
	}
	return out
}
