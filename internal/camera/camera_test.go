// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package camera

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDetect_RTSPAcceptedWithoutProbe(t *testing.T) {
	d := NewDetector(time.Second)

	src, err := d.Detect(context.Background(), "rtsp://10.0.0.4:554/h264")
	require.NoError(t, err)
	require.Equal(t, TransportRTSP, src.Transport)
	require.Equal(t, "rtsp://10.0.0.4:554/h264", src.URL)
}

func TestDetect_MJPEGHintConfirmedByGET(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDetector(time.Second)
	src, err := d.Detect(context.Background(), srv.URL+"/mjpg/video.mjpg")
	require.NoError(t, err)
	require.Equal(t, TransportMJPEG, src.Transport)
	require.Equal(t, http.MethodGet, gotMethod)
}

func TestDetect_MJPEGHintNon200Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewDetector(time.Second)
	src, err := d.Detect(context.Background(), srv.URL+"/video.mjpeg")
	require.ErrorIs(t, err, ErrInvalid)
	require.Equal(t, TransportUnknown, src.Transport)
}

func TestDetect_MultipartContentTypeWithoutHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDetector(time.Second)
	src, err := d.Detect(context.Background(), srv.URL+"/live")
	require.NoError(t, err)
	require.Equal(t, TransportMJPEG, src.Transport)
}

func TestDetect_GenericHTTPHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDetector(time.Second)
	src, err := d.Detect(context.Background(), srv.URL+"/feed")
	require.NoError(t, err)
	require.Equal(t, TransportHTTP, src.Transport)
}

func TestDetect_HTTPErrorStatusRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDetector(time.Second)
	src, err := d.Detect(context.Background(), srv.URL+"/nope")
	require.ErrorIs(t, err, ErrInvalid)
	require.Equal(t, TransportUnknown, src.Transport)
}

func TestDetect_UnreachableHostRejected(t *testing.T) {
	d := NewDetector(200 * time.Millisecond)
	src, err := d.Detect(context.Background(), "http://127.0.0.1:1/cam.mjpeg")
	require.ErrorIs(t, err, ErrInvalid)
	require.Equal(t, TransportUnknown, src.Transport)
}

func TestDetect_MalformedURL(t *testing.T) {
	d := NewDetector(time.Second)
	_, err := d.Detect(context.Background(), "::not a url::")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestDetect_UnsupportedScheme(t *testing.T) {
	d := NewDetector(time.Second)
	_, err := d.Detect(context.Background(), "ftp://camera.local/feed")
	require.ErrorIs(t, err, ErrInvalid)
}
