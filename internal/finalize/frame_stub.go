// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !opencv

package finalize

// grabFrame is a no-op without the opencv build tag; the caller falls
// through to the plain ffmpeg decode.
func grabFrame(videoPath, thumbPath string) bool {
	return false
}
