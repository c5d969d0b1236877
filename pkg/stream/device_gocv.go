package stream

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-camhub/pkg/frame"
)

// gocvDevice wraps a gocv.VideoCapture. The Mat is reused across reads; the
// pixel data is copied out before a frame leaves the device, so the next
// read never mutates a frame already handed off.
type gocvDevice struct {
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	source string
	closed bool
}

// OpenDevice opens a capture device with gocv. It accepts a device index or
// a network URI via the source descriptor. This is the default Opener used
// by NewRegistry.
func OpenDevice(src Source, cfg Config) (Device, error) {
	cap, err := gocv.OpenVideoCapture(src.Descriptor())
	if err != nil {
		return nil, &DeviceError{Op: "open", Source: src.ID, Cause: err}
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, &DeviceError{
			Op:     "open",
			Source: src.ID,
			Cause:  fmt.Errorf("%w: %v", ErrDeviceUnavailable, src.Descriptor()),
		}
	}

	if cfg.Width > 0 {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.Framerate > 0 {
		cap.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	return &gocvDevice{
		cap:    cap,
		mat:    gocv.NewMat(),
		source: src.ID,
	}, nil
}

// Read blocks on the device until the next frame arrives and returns it as
// a BGR byte buffer copied out of the capture Mat.
func (d *gocvDevice) Read() (*frame.Frame, error) {
	if ok := d.cap.Read(&d.mat); !ok {
		return nil, &DeviceError{
			Op:        "read",
			Source:    d.source,
			Cause:     fmt.Errorf("capture returned no frame"),
			Retryable: true,
		}
	}
	if d.mat.Empty() {
		return nil, &DeviceError{
			Op:        "read",
			Source:    d.source,
			Cause:     fmt.Errorf("capture returned empty frame"),
			Retryable: true,
		}
	}

	// ToBytes copies the Mat data, so the frame survives the next Read.
	data := d.mat.ToBytes()
	return frame.New(data, d.mat.Cols(), d.mat.Rows(), 0), nil
}

// Close releases the capture handle. Idempotent.
func (d *gocvDevice) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.mat.Close()
	return d.cap.Close()
}
