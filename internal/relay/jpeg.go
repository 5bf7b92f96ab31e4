// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

package relay

import (
	"bufio"
	"errors"
	"io"
)

// maxFrameSize bounds a single JPEG frame; camera frames are far smaller.
const maxFrameSize = 8 << 20

var errFrameTooLarge = errors.New("jpeg frame exceeds size limit")

// FrameScanner splits a concatenated JPEG stream (ffmpeg image2pipe output)
// into individual frames. Within entropy-coded data 0xFF is always stuffed
// (followed by 0x00 or an RST marker), so scanning for the SOI/EOI byte
// pairs is a correct frame delimiter for encoder output without embedded
// thumbnails.
type FrameScanner struct {
	r   *bufio.Reader
	buf []byte
}

// NewFrameScanner wraps r for frame-by-frame reading.
func NewFrameScanner(r io.Reader) *FrameScanner {
	return &FrameScanner{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next complete JPEG frame, or an error once the stream
// ends. The returned slice is owned by the caller.
func (s *FrameScanner) Next() ([]byte, error) {
	if err := s.syncToSOI(); err != nil {
		return nil, err
	}

	s.buf = s.buf[:0]
	s.buf = append(s.buf, 0xFF, 0xD8)

	prev := byte(0)
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		s.buf = append(s.buf, b)
		if len(s.buf) > maxFrameSize {
			return nil, errFrameTooLarge
		}
		if prev == 0xFF && b == 0xD9 {
			frame := make([]byte, len(s.buf))
			copy(frame, s.buf)
			return frame, nil
		}
		prev = b
	}
}

// syncToSOI discards bytes until a start-of-image marker, so the scanner
// recovers after a mid-frame reconnect.
func (s *FrameScanner) syncToSOI() error {
	prev := byte(0)
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xFF && b == 0xD8 {
			return nil
		}
		prev = b
	}
}
