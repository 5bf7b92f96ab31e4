// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package finalize

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

const (
	// stretchThreshold is the wallclock/probed ratio above which encoded
	// timestamps are considered compressed (camera delivered frames in
	// bursts) and the file gets re-timed.
	stretchThreshold = 1.5

	// stretchCap bounds the correction so a bogus probe cannot slow a
	// video to a crawl.
	stretchCap = 3.0
)

// stretchRatio decides whether a recording needs timestamp stretching and
// returns the capped ratio to apply.
func stretchRatio(wallClock, probed time.Duration) (float64, bool) {
	if wallClock <= 0 || probed <= 0 {
		return 0, false
	}
	ratio := wallClock.Seconds() / probed.Seconds()
	if ratio <= stretchThreshold {
		return 0, false
	}
	if ratio > stretchCap {
		ratio = stretchCap
	}
	return ratio, true
}

// stretch re-encodes path in place with presentation timestamps multiplied
// by ratio. The pre-stretch file is kept next to the output as a .orig
// backup. Returns the backup path.
func (f *Finalizer) stretch(ctx context.Context, path string, ratio float64) (string, error) {
	tmpPath := path + ".stretch.tmp.mp4"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(ctx, f.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-an",
		"-filter:v", fmt.Sprintf("setpts=%s*PTS", strconv.FormatFloat(ratio, 'f', 4, 64)),
		"-movflags", "+faststart",
		"-preset", "veryfast",
		"-crf", "23",
		"-y",
		tmpPath,
	) // #nosec G204
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("stretch encode: %w: %s", err, truncate(out, 256))
	}
	if _, err := os.Stat(tmpPath); err != nil {
		return "", fmt.Errorf("stretch output missing: %w", err)
	}

	backup := path + ".orig"
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("backup original: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		// Put the original back so the recording is not lost.
		_ = os.Rename(backup, path)
		return "", fmt.Errorf("swap stretched file: %w", err)
	}
	return backup, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
