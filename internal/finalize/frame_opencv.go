// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build opencv

package finalize

import "gocv.io/x/gocv"

// grabFrame decodes one frame at ~3s via OpenCV and writes it as JPEG.
// Used when ffmpeg could not seek into the file.
func grabFrame(videoPath, thumbPath string) bool {
	cap, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return false
	}
	defer cap.Close()

	cap.Set(gocv.VideoCapturePosMsec, 3000)

	img := gocv.NewMat()
	defer img.Close()
	if !cap.Read(&img) || img.Empty() {
		return false
	}
	return gocv.IMWrite(thumbPath, img)
}
