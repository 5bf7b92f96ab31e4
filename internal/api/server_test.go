// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtcast/courtcast/internal/camera"
	"github.com/courtcast/courtcast/internal/config"
	"github.com/courtcast/courtcast/internal/recorder"
	"github.com/courtcast/courtcast/internal/session"
	"github.com/courtcast/courtcast/internal/store"
)

type fakeSessions struct {
	sessions  map[string]session.VideoSession
	createErr error
	closed    []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]session.VideoSession)}
}

func (f *fakeSessions) CreateSession(_ context.Context, courtID int64, cameraURL string, clubID, userID int64) (session.VideoSession, error) {
	if f.createErr != nil {
		return session.VideoSession{}, f.createErr
	}
	sess := session.VideoSession{
		ID:        "sess_new",
		CourtID:   courtID,
		ClubID:    clubID,
		UserID:    userID,
		Source:    camera.Source{URL: cameraURL, Transport: camera.TransportMJPEG},
		Verified:  true,
		CreatedAt: time.Now(),
	}
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeSessions) Get(id string) (session.VideoSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return session.VideoSession{}, session.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) List() []session.VideoSession {
	out := make([]session.VideoSession, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out
}

func (f *fakeSessions) Close(id string) error {
	if _, ok := f.sessions[id]; !ok {
		return session.ErrNotFound
	}
	delete(f.sessions, id)
	f.closed = append(f.closed, id)
	return nil
}

type fakeRecordings struct {
	startErr error
	stopErr  error
	status   recorder.Status
	result   recorder.Result
	active   int
}

func (f *fakeRecordings) Start(_ context.Context, sess session.VideoSession, duration time.Duration) (recorder.Status, error) {
	if f.startErr != nil {
		return recorder.Status{}, f.startErr
	}
	return recorder.Status{SessionID: sess.ID, Active: true, PlannedSec: int(duration.Seconds())}, nil
}

func (f *fakeRecordings) Stop(sessionID string) (recorder.Result, error) {
	if f.stopErr != nil {
		return recorder.Result{}, f.stopErr
	}
	f.result.SessionID = sessionID
	return f.result, nil
}

func (f *fakeRecordings) Status(sessionID string) (recorder.Status, error) {
	if f.status.SessionID == "" {
		return recorder.Status{}, recorder.ErrNotRecording
	}
	return f.status, nil
}

func (f *fakeRecordings) ActiveCount() int { return f.active }

type fakePreviews struct{ err error }

func (f *fakePreviews) Stream(w http.ResponseWriter, _ *http.Request, _ session.VideoSession) error {
	return f.err
}

type fakeLibrary struct {
	recs     []store.Recording
	overlays map[int64][]recorder.Overlay
}

func (f *fakeLibrary) ListRecordings(_ context.Context, clubID int64, _ int) ([]store.Recording, error) {
	var out []store.Recording
	for _, r := range f.recs {
		if r.ClubID == clubID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLibrary) GetRecording(_ context.Context, sessionID string) (store.Recording, error) {
	for _, r := range f.recs {
		if r.SessionID == sessionID {
			return r, nil
		}
	}
	return store.Recording{}, store.ErrNotFound
}

func (f *fakeLibrary) ActiveOverlays(_ context.Context, clubID int64) ([]recorder.Overlay, error) {
	return f.overlays[clubID], nil
}

func (f *fakeLibrary) SaveOverlay(_ context.Context, clubID int64, ov recorder.Overlay, _ int, active bool) error {
	if f.overlays == nil {
		f.overlays = make(map[int64][]recorder.Overlay)
	}
	if active {
		f.overlays[clubID] = append(f.overlays[clubID], ov)
	}
	return nil
}

func testServer(sessions *fakeSessions, recordings *fakeRecordings, library Library) *httptest.Server {
	s := NewServer(config.Default(), sessions, recordings, &fakePreviews{}, library)
	return httptest.NewServer(s.Router())
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateSessionEndpoint(t *testing.T) {
	srv := testServer(newFakeSessions(), &fakeRecordings{}, nil)
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", map[string]any{
		"court_id": 3, "club_id": 7, "user_id": 42,
		"camera_url": "http://cam.local/mjpg/video.mjpg",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	sess := decode[session.VideoSession](t, resp)
	assert.Equal(t, "sess_new", sess.ID)
	assert.True(t, sess.Verified)
}

func TestCreateSessionValidation(t *testing.T) {
	srv := testServer(newFakeSessions(), &fakeRecordings{}, nil)
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", map[string]any{"club_id": 7})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateSessionConflictAndInvalidCamera(t *testing.T) {
	sessions := newFakeSessions()
	srv := testServer(sessions, &fakeRecordings{}, nil)
	defer srv.Close()

	body := map[string]any{"court_id": 3, "camera_url": "http://cam.local/x"}

	sessions.createErr = session.ErrCourtBusy
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", body)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	sessions.createErr = camera.ErrInvalid
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", body)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	sessions := newFakeSessions()
	srv := testServer(sessions, &fakeRecordings{}, nil)
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", map[string]any{
		"court_id": 3, "camera_url": "http://cam.local/mjpg/video.mjpg",
	})
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/v1/sessions/sess_new")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/v1/sessions/sess_missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/sessions/sess_new", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, []string{"sess_new"}, sessions.closed)
}

func TestStartRecordingEndpoint(t *testing.T) {
	sessions := newFakeSessions()
	sessions.sessions["sess_a"] = session.VideoSession{ID: "sess_a", ClubID: 7}
	srv := testServer(sessions, &fakeRecordings{}, nil)
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions/sess_a/recording",
		map[string]any{"duration_seconds": 60})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	status := decode[recorder.Status](t, resp)
	assert.True(t, status.Active)
	assert.Equal(t, 60, status.PlannedSec)
}

func TestStartRecordingConflicts(t *testing.T) {
	sessions := newFakeSessions()
	sessions.sessions["sess_a"] = session.VideoSession{ID: "sess_a"}
	recordings := &fakeRecordings{}
	srv := testServer(sessions, recordings, nil)
	defer srv.Close()

	recordings.startErr = recorder.ErrAlreadyRecording
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions/sess_a/recording", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	recordings.startErr = recorder.ErrTooManyRecordings
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions/sess_a/recording", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestStopRecordingEndpoint(t *testing.T) {
	sessions := newFakeSessions()
	sessions.sessions["sess_a"] = session.VideoSession{ID: "sess_a"}
	recordings := &fakeRecordings{
		result: recorder.Result{
			OutputPath: "/videos/7/sess_a.mp4",
			WallClock:  61 * time.Second,
			Trigger:    recorder.TriggerStop,
		},
	}
	srv := testServer(sessions, recordings, nil)
	defer srv.Close()

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/sessions/sess_a/recording", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "/videos/7/sess_a.mp4", body["output_path"])
	assert.Equal(t, float64(61), body["wallclock_seconds"])

	recordings.stopErr = recorder.ErrNotRecording
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/sessions/sess_a/recording", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecordingStatusEndpoint(t *testing.T) {
	sessions := newFakeSessions()
	recordings := &fakeRecordings{status: recorder.Status{SessionID: "sess_a", Active: true, ElapsedSec: 30, PlannedSec: 60}}
	srv := testServer(sessions, recordings, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/sessions/sess_a/recording")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status := decode[recorder.Status](t, resp)
	assert.True(t, status.Active)
	assert.Equal(t, 30, status.ElapsedSec)
}

func TestListRecordingsEndpoint(t *testing.T) {
	library := &fakeLibrary{recs: []store.Recording{
		{SessionID: "sess_a", ClubID: 7},
		{SessionID: "sess_b", ClubID: 8},
	}}
	srv := testServer(newFakeSessions(), &fakeRecordings{}, library)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/recordings?club_id=7")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string][]store.Recording](t, resp)
	require.Len(t, body["recordings"], 1)
	assert.Equal(t, "sess_a", body["recordings"][0].SessionID)

	resp, err = http.Get(srv.URL + "/api/v1/recordings")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/v1/recordings/sess_missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestOverlayEndpoints(t *testing.T) {
	library := &fakeLibrary{}
	srv := testServer(newFakeSessions(), &fakeRecordings{}, library)
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/overlays", map[string]any{
		"club_id": 7, "name": "club-logo", "path": "/overlays/7/logo.png",
		"position_x": 0.05, "position_y": 0.1, "width_percent": 20,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[recorder.Overlay](t, resp)
	assert.Equal(t, "club-logo", created.Name)
	assert.InDelta(t, 20, created.WidthPercent, 0.001)
	// Opacity defaults to fully opaque when the client omits it.
	assert.InDelta(t, 1.0, created.Opacity, 0.001)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/overlays", map[string]any{"club_id": 7})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/api/v1/overlays?club_id=7")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string][]recorder.Overlay](t, resp)
	require.Len(t, body["overlays"], 1)
	assert.Equal(t, "/overlays/7/logo.png", body["overlays"][0].Path)

	resp, err = http.Get(srv.URL + "/api/v1/overlays")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthz(t *testing.T) {
	srv := testServer(newFakeSessions(), &fakeRecordings{active: 2}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["active_recordings"])
}

func TestMetricsExposed(t *testing.T) {
	srv := testServer(newFakeSessions(), &fakeRecordings{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
