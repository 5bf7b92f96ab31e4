// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix

package relay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// writeFakeDecoder creates a shell script that emits one JPEG frame on
// stdout and then blocks, standing in for an ffmpeg decode session. The
// frame bytes are written from Go and cat'd by the script, so the script
// stays portable across /bin/sh implementations.
func writeFakeDecoder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	framePath := filepath.Join(dir, "frame.jpg")
	require.NoError(t, os.WriteFile(framePath, fakeJPEG(0xaa), 0o644))

	script := "#!/bin/sh\ncat " + framePath + "\nexec sleep 30\n"
	path := filepath.Join(dir, "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestRelay_RunCancel_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := New(Config{
		SessionID:  "sess_leak",
		Source:     "http://camera.test/feed",
		FFmpegPath: writeFakeDecoder(t),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- rl.Run(ctx)
	}()

	require.Eventually(t, rl.HasVideo, 2*time.Second, 10*time.Millisecond,
		"relay never observed the fake frame")

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() didn't return after cancel")
	}
}
