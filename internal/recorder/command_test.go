// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package recorder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtcast/courtcast/internal/config"
)

func TestEncodeArgsPlain(t *testing.T) {
	cfg := config.Default().Recording

	args := encodeArgs("http://127.0.0.1:8090/stream", nil, 90*time.Second, "/videos/out.mp4", cfg)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i http://127.0.0.1:8090/stream")
	assert.Contains(t, joined, "-t 90")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-preset veryfast")
	assert.Contains(t, joined, "-crf 23")
	assert.NotContains(t, joined, "-filter_complex")
	assert.Equal(t, "/videos/out.mp4", args[len(args)-1])
}

func TestEncodeArgsWithOverlays(t *testing.T) {
	cfg := config.Default().Recording
	overlays := []Overlay{
		{Name: "logo", Path: "/static/logo.png", PositionX: 5, PositionY: 5, Opacity: 1.0},
	}

	args := encodeArgs("http://cam/stream", overlays, time.Minute, "/videos/out.mp4", cfg)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-loop 1 -i /static/logo.png")
	assert.Contains(t, joined, "-filter_complex")
}

func TestOverlayFilterSingleOpaque(t *testing.T) {
	got := overlayFilter([]Overlay{
		{Path: "a.png", PositionX: 5, PositionY: 10, Opacity: 1.0},
	})
	assert.Equal(t, "[0:v][1:v]overlay=W*0.05:H*0.1:shortest=1", got)
}

func TestOverlayFilterSingleTransparent(t *testing.T) {
	got := overlayFilter([]Overlay{
		{Path: "a.png", PositionX: 50, PositionY: 50, Opacity: 0.5},
	})
	assert.Equal(t,
		"[1:v]format=rgba,colorchannelmixer=aa=0.5[ov1];[0:v][ov1]overlay=W*0.5:H*0.5:shortest=1",
		got)
}

func TestOverlayFilterChain(t *testing.T) {
	got := overlayFilter([]Overlay{
		{Path: "a.png", PositionX: 0, PositionY: 0, Opacity: 1.0},
		{Path: "b.png", PositionX: 100, PositionY: 100, Opacity: 0.75},
	})
	assert.Equal(t,
		"[0:v][1:v]overlay=W*0:H*0:shortest=1[tmp1];"+
			"[2:v]format=rgba,colorchannelmixer=aa=0.75[ov2];"+
			"[tmp1][ov2]overlay=W*1:H*1:shortest=1",
		got)
}

func TestOverlayFilterIgnoresWidth(t *testing.T) {
	// Width is carried for clients and storage; compositing keeps the
	// image at its native size.
	got := overlayFilter([]Overlay{
		{Path: "a.png", PositionX: 5, PositionY: 10, WidthPercent: 20, Opacity: 1.0},
	})
	assert.Equal(t, "[0:v][1:v]overlay=W*0.05:H*0.1:shortest=1", got)
}

func TestOverlayFilterOpacityThreshold(t *testing.T) {
	// 0.99 and above counts as opaque; the blend stage is skipped.
	got := overlayFilter([]Overlay{
		{Path: "a.png", PositionX: 0, PositionY: 0, Opacity: 0.99},
	})
	assert.NotContains(t, got, "colorchannelmixer")
}

func TestResolveOverlaysSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(present, []byte("png"), 0o644))

	got := resolveOverlays(zerolog.Nop(), []Overlay{
		{Name: "present", Path: present},
		{Name: "missing", Path: filepath.Join(dir, "nope.png")},
		{Name: "empty", Path: ""},
	})

	require.Len(t, got, 1)
	assert.Equal(t, "present", got[0].Name)
}
