// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package recorder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/courtcast/courtcast/internal/config"
)

// encodeArgs builds the full ffmpeg argument list for one recording. The
// primary input is the session feed; each overlay image is appended as a
// looped secondary input and composited via a filter_complex chain.
func encodeArgs(feedURL string, overlays []Overlay, duration time.Duration, outputPath string, cfg config.RecordingConfig) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "info",
		"-i", feedURL,
	}
	for _, ov := range overlays {
		args = append(args, "-loop", "1", "-i", ov.Path)
	}
	if len(overlays) > 0 {
		args = append(args, "-filter_complex", overlayFilter(overlays))
	}
	args = append(args,
		"-t", strconv.Itoa(int(duration.Seconds())),
		"-c:v", "libx264",
		"-preset", cfg.Preset,
		"-crf", strconv.Itoa(cfg.CRF),
		"-c:a", "aac",
		"-y",
		outputPath,
	)
	return args
}

// overlayFilter chains the overlays onto the main video stream in order.
// Input 0 is the feed; overlay i is input i+1. Opacity below 0.99 gets an
// alpha-blend stage first; fully opaque overlays skip it. shortest=1 keeps
// the looped image from extending the output past the feed.
func overlayFilter(overlays []Overlay) string {
	var b strings.Builder
	main := "[0:v]"
	for i, ov := range overlays {
		in := fmt.Sprintf("[%d:v]", i+1)
		if ov.Opacity < 0.99 {
			blended := fmt.Sprintf("[ov%d]", i+1)
			fmt.Fprintf(&b, "%sformat=rgba,colorchannelmixer=aa=%g%s;", in, ov.Opacity, blended)
			in = blended
		}
		pos := fmt.Sprintf("overlay=W*%g:H*%g:shortest=1", ov.PositionX/100, ov.PositionY/100)
		if i == len(overlays)-1 {
			b.WriteString(main + in + pos)
		} else {
			next := fmt.Sprintf("[tmp%d]", i+1)
			b.WriteString(main + in + pos + next + ";")
			main = next
		}
	}
	return b.String()
}
