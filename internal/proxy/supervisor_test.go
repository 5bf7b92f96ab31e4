// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix && !windows

package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtcast/courtcast/internal/config"
	"github.com/courtcast/courtcast/internal/relay"
)

func testProxyConfig() config.ProxyConfig {
	return config.ProxyConfig{
		BasePort:      8090,
		PortRange:     16,
		ReadyTimeout:  time.Second,
		ReadyInterval: 50 * time.Millisecond,
		HealthTimeout: time.Second,
		StopGrace:     time.Second,
		RelayFPS:      25,
		RelayQuality:  5,
	}
}

// healthServer fakes a relay's /health endpoint.
func healthServer(t *testing.T, hasVideo func() bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(relay.Health{Status: "ok", HasVideo: hasVideo()})
	}))
}

func newTestSupervisor(t *testing.T, srv *httptest.Server) *Supervisor {
	t.Helper()
	s := NewSupervisor(testProxyConfig(), "relay-unused", "ffmpeg")
	s.launch = func(sessionID, cameraURL string, port int) *exec.Cmd {
		return exec.Command("sleep", "60")
	}
	s.baseURL = func(port int) string { return srv.URL }
	return s
}

func TestRelayCommand_PassesResolvedFFmpeg(t *testing.T) {
	s := NewSupervisor(testProxyConfig(), "/opt/courtcast/bin/courtcast-relay", "/usr/local/bin/ffmpeg")

	cmd := s.relayCommand("sess-1", "http://cam/feed", 8092)
	assert.Equal(t, "/opt/courtcast/bin/courtcast-relay", cmd.Path)
	assert.Contains(t, cmd.Args, "--ffmpeg")
	assert.Contains(t, cmd.Args, "/usr/local/bin/ffmpeg")
	assert.Contains(t, cmd.Args, "--port")
	assert.Contains(t, cmd.Args, "8092")

	// Without a resolved ffmpeg the flag is omitted and the relay's own
	// default applies.
	s = NewSupervisor(testProxyConfig(), "courtcast-relay", "")
	assert.NotContains(t, s.relayCommand("sess-1", "http://cam/feed", 8092).Args, "--ffmpeg")
}

func TestStartProxy_ReadyWhenVideoObserved(t *testing.T) {
	srv := healthServer(t, func() bool { return true })
	defer srv.Close()

	s := newTestSupervisor(t, srv)
	h, err := s.StartProxy(context.Background(), "sess-1", "http://cam/feed")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, 8090, h.Port)
	assert.Equal(t, "http://127.0.0.1:8090/stream", h.LocalFeedURL)
	assert.True(t, s.CheckHealth(context.Background(), h.Port))

	require.NoError(t, s.StopProxy(h.Port))
	assert.False(t, s.ports.InUse(h.Port), "port must be released on stop")
}

func TestStartProxy_TimeoutWithoutVideoTearsDown(t *testing.T) {
	// Relay responds but never observes frames: must be treated as not-ready.
	srv := healthServer(t, func() bool { return false })
	defer srv.Close()

	cfg := testProxyConfig()
	cfg.ReadyTimeout = 200 * time.Millisecond

	s := NewSupervisor(cfg, "relay-unused", "ffmpeg")
	var cmd *exec.Cmd
	s.launch = func(sessionID, cameraURL string, port int) *exec.Cmd {
		cmd = exec.Command("sleep", "60")
		return cmd
	}
	s.baseURL = func(port int) string { return srv.URL }

	_, err := s.StartProxy(context.Background(), "sess-1", "http://cam/feed")
	require.ErrorIs(t, err, ErrNotReady)

	// The process must be gone and the port immediately reusable.
	require.NotNil(t, cmd.ProcessState, "relay process must have been reaped")
	port, err := s.ports.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 8090, port, "failed start must release its port")
}

func TestStartProxy_RelayExitsDuringStartup(t *testing.T) {
	srv := healthServer(t, func() bool { return false })
	defer srv.Close()

	s := newTestSupervisor(t, srv)
	s.launch = func(sessionID, cameraURL string, port int) *exec.Cmd {
		return exec.Command("true")
	}

	_, err := s.StartProxy(context.Background(), "sess-1", "http://cam/feed")
	require.ErrorIs(t, err, ErrNotReady)
	assert.Zero(t, s.ports.Count())
}

func TestStopProxy_UnknownPort(t *testing.T) {
	srv := healthServer(t, func() bool { return true })
	defer srv.Close()

	s := newTestSupervisor(t, srv)
	err := s.StopProxy(9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCheckHealth_UnknownPort(t *testing.T) {
	srv := healthServer(t, func() bool { return true })
	defer srv.Close()

	s := newTestSupervisor(t, srv)
	assert.False(t, s.CheckHealth(context.Background(), 8091))
}

func TestPortAllocator_NoDuplicatesUnderConcurrency(t *testing.T) {
	alloc := NewPortAllocator(9000, 64)

	var mu sync.Mutex
	seen := make(map[int]bool)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := alloc.Allocate()
			mu.Lock()
			defer mu.Unlock()
			assert.NoError(t, err)
			assert.False(t, seen[port], "port %d handed out twice", port)
			seen[port] = true
		}()
	}
	wg.Wait()
	assert.Equal(t, 64, alloc.Count())

	_, err := alloc.Allocate()
	require.ErrorIs(t, err, ErrNoFreePorts)
}

func TestPortAllocator_ReleaseAllowsReuse(t *testing.T) {
	alloc := NewPortAllocator(9100, 2)

	p1, err := alloc.Allocate()
	require.NoError(t, err)
	alloc.Release(p1)

	p2, err := alloc.Allocate()
	require.NoError(t, err)
	assert.Equal(t, p1, p2, "released port should be the first candidate again")

	// Release of an unallocated port must be a no-op.
	alloc.Release(4242)
	assert.Equal(t, 1, alloc.Count())
}