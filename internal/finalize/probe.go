// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package finalize

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrProbeUnavailable means no ffprobe binary was resolved at startup.
// Callers fall back to wall-clock duration estimation.
var ErrProbeUnavailable = errors.New("ffprobe not available")

// ProbeInfo is what ffprobe reports about the video stream.
type ProbeInfo struct {
	Duration time.Duration
	Frames   int64
}

// Prober shells out to ffprobe for stream inspection. A zero binary path
// makes every Probe return ErrProbeUnavailable.
type Prober struct {
	Bin     string
	Timeout time.Duration
}

// Probe reads duration and frame count of the first video stream.
func (p *Prober) Probe(ctx context.Context, path string) (ProbeInfo, error) {
	if p.Bin == "" {
		return ProbeInfo{}, ErrProbeUnavailable
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Bin,
		"-v", "error",
		"-select_streams", "v",
		"-show_entries", "stream=duration,nb_frames",
		"-of", "default=noprint_wrappers=1",
		path,
	) // #nosec G204
	out, err := cmd.Output()
	if err != nil {
		return ProbeInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbeOutput(out), nil
}

// parseProbeOutput reads ffprobe key=value lines. Unparseable or "N/A"
// values leave the zero value in place; some containers report no
// nb_frames at all.
func parseProbeOutput(out []byte) ProbeInfo {
	var info ProbeInfo
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, val, found := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !found {
			continue
		}
		switch key {
		case "duration":
			if secs, err := strconv.ParseFloat(val, 64); err == nil && secs > 0 {
				info.Duration = time.Duration(secs * float64(time.Second))
			}
		case "nb_frames":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > 0 {
				info.Frames = n
			}
		}
	}
	return info
}
