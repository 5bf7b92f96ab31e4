// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package camera classifies camera URLs into a transport kind.
// RTSP is accepted on scheme alone: probing RTSP before a decoder attaches
// is expensive and unreliable, so trust is deferred to the relay.
package camera

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/courtcast/courtcast/internal/log"
)

// Transport is the closed set of camera transport kinds, selected once at
// session creation.
type Transport string

const (
	TransportMJPEG   Transport = "mjpeg"
	TransportRTSP    Transport = "rtsp"
	TransportHTTP    Transport = "http"
	TransportUnknown Transport = "unknown"
)

// Source is the immutable camera source value attached to a session.
type Source struct {
	URL       string    `json:"url"`
	Transport Transport `json:"transport"`
}

// ErrInvalid is returned when a camera URL cannot be classified or probed.
var ErrInvalid = errors.New("camera invalid")

// Detector probes camera URLs with bounded timeouts.
type Detector struct {
	client *http.Client
	logger zerolog.Logger
}

// NewDetector returns a detector with the given probe timeout.
func NewDetector(probeTimeout time.Duration) *Detector {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Detector{
		client: &http.Client{Timeout: probeTimeout},
		logger: log.WithComponent("camera"),
	}
}

// Detect classifies the camera URL. On failure it returns ErrInvalid wrapped
// with the probe detail; the caller must refuse to create a session.
func (d *Detector) Detect(ctx context.Context, cameraURL string) (Source, error) {
	u, err := url.Parse(cameraURL)
	if err != nil || u.Host == "" {
		return Source{URL: cameraURL, Transport: TransportUnknown},
			fmt.Errorf("%w: malformed url %q", ErrInvalid, cameraURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "rtsp", "rtsps":
		d.logger.Debug().Str(log.FieldSourceURL, cameraURL).Msg("rtsp scheme accepted without probe")
		return Source{URL: cameraURL, Transport: TransportRTSP}, nil
	case "http", "https":
	default:
		return Source{URL: cameraURL, Transport: TransportUnknown},
			fmt.Errorf("%w: unsupported scheme %q", ErrInvalid, u.Scheme)
	}

	if hasMJPEGHint(u) {
		if err := d.probeMJPEG(ctx, cameraURL); err != nil {
			return Source{URL: cameraURL, Transport: TransportUnknown}, err
		}
		return Source{URL: cameraURL, Transport: TransportMJPEG}, nil
	}

	// No MJPEG hint in the URL itself; a GET may still reveal a multipart
	// stream via Content-Type, otherwise fall back to a generic HEAD probe.
	if ok, err := d.sniffMultipart(ctx, cameraURL); err == nil && ok {
		return Source{URL: cameraURL, Transport: TransportMJPEG}, nil
	}

	if err := d.probeHTTP(ctx, cameraURL); err != nil {
		return Source{URL: cameraURL, Transport: TransportUnknown}, err
	}
	return Source{URL: cameraURL, Transport: TransportHTTP}, nil
}

func hasMJPEGHint(u *url.URL) bool {
	s := strings.ToLower(u.Path + "?" + u.RawQuery)
	return strings.Contains(s, "mjpg") || strings.Contains(s, "mjpeg")
}

// probeMJPEG confirms an MJPEG-hinted URL with a short GET. The body is a
// live stream; only the status line and headers matter.
func (d *Detector) probeMJPEG(ctx context.Context, cameraURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cameraURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: mjpeg probe: %v", ErrInvalid, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: mjpeg probe status %d", ErrInvalid, resp.StatusCode)
	}
	d.logger.Debug().
		Str(log.FieldSourceURL, cameraURL).
		Str("content_type", resp.Header.Get("Content-Type")).
		Msg("mjpeg source confirmed")
	return nil
}

func (d *Detector) sniffMultipart(ctx context.Context, cameraURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cameraURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	return strings.Contains(ct, "multipart/x-mixed-replace") || strings.Contains(ct, "mjpeg"), nil
}

// probeHTTP is the generic fallback: a HEAD request, any status below 400
// is accepted.
func (d *Detector) probeHTTP(ctx context.Context, cameraURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, cameraURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: http probe: %v", ErrInvalid, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: http probe status %d", ErrInvalid, resp.StatusCode)
	}
	return nil
}
