// Package video converts captured frames to wire formats.
package video

import (
	"errors"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-camhub/pkg/frame"
)

// DefaultJPEGQuality balances preview latency against bandwidth.
const DefaultJPEGQuality = 80

var errEmptyFrame = errors.New("video: empty frame")

// EncodeJPEG compresses a BGR frame to JPEG bytes.
func EncodeJPEG(f *frame.Frame, quality int) ([]byte, error) {
	if f == nil || len(f.Data) == 0 {
		return nil, errEmptyFrame
	}
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat,
		[]int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
