// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package finalize

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// thumbnail extracts a single frame at ~3s into thumbPath. ffmpeg first;
// if that fails (very short or damaged file), a direct frame decode is
// attempted as fallback. A failed thumbnail never fails finalization.
func (f *Finalizer) thumbnail(ctx context.Context, videoPath, thumbPath string) error {
	cmd := exec.CommandContext(ctx, f.ffmpeg,
		"-y",
		"-ss", "3",
		"-i", videoPath,
		"-vframes", "1",
		"-vf", "scale=320:-1",
		thumbPath,
	) // #nosec G204
	if err := cmd.Run(); err == nil && thumbExists(thumbPath) {
		return nil
	}

	if grabFrame(videoPath, thumbPath) && thumbExists(thumbPath) {
		return nil
	}

	// Last resort: first decodable frame, no seek.
	cmd = exec.CommandContext(ctx, f.ffmpeg,
		"-y",
		"-i", videoPath,
		"-vframes", "1",
		"-vf", "scale=320:-1",
		thumbPath,
	) // #nosec G204
	if err := cmd.Run(); err != nil || !thumbExists(thumbPath) {
		return fmt.Errorf("thumbnail extraction failed for %s", videoPath)
	}
	return nil
}

func thumbExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > 0
}
