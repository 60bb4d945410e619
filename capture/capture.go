// Package capture acquires frames from the camera and publishes them into
// the pool at a fixed cadence. Nothing is ever queued: a slow capture
// skips its tick, a fast camera's excess frames are dropped. Freshness
// beats completeness.
package capture

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Source is the external capture capability, one frame per call at the
// resolution agreed at startup.
type Source interface {
	Read(dst *gocv.Mat) error
	Close() error
}

// DeviceSource reads from a V4L camera through OpenCV.
type DeviceSource struct {
	vc     *gocv.VideoCapture
	width  int
	height int
}

// OpenDevice opens camera deviceID at the fixed resolution.
func OpenDevice(deviceID, width, height int, fps float64) (*DeviceSource, error) {
	vc, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("opening camera %d: %v", deviceID, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	vc.Set(gocv.VideoCaptureFPS, fps)
	return &DeviceSource{vc: vc, width: width, height: height}, nil
}

// Read grabs one frame into dst. A failed or empty grab is an error for
// this frame only; the loop above decides what to do with it.
func (s *DeviceSource) Read(dst *gocv.Mat) error {
	if ok := s.vc.Read(dst); !ok || dst.Empty() {
		return fmt.Errorf("camera returned no frame")
	}
	if dst.Cols() != s.width || dst.Rows() != s.height {
		return fmt.Errorf("camera produced %dx%d, configured %dx%d",
			dst.Cols(), dst.Rows(), s.width, s.height)
	}
	return nil
}

// Close releases the camera.
func (s *DeviceSource) Close() error {
	return s.vc.Close()
}

// SyntheticSource fills frames with a rolling gray value. Stands in for
// the camera on bench runs; the interface stays the same.
type SyntheticSource struct {
	frameIndex int
}

// Read fills dst with the next rolling value.
func (s *SyntheticSource) Read(dst *gocv.Mat) error {
	v := float64(s.frameIndex % 256)
	s.frameIndex++
	dst.SetTo(gocv.NewScalar(v, v, v, 0))
	return nil
}

// Close is a no-op.
func (s *SyntheticSource) Close() error { return nil }
