// Package detect defines the detection pipeline boundary: a Detector
// consumes a frame and returns typed detections. The model itself is a
// collaborator; this package carries the contract and a gocv-backed
// reference implementation.
package detect

import (
	"errors"
	"fmt"
	"image"

	"github.com/teslashibe/go-camhub/pkg/frame"
)

// Detection is one typed detection in frame pixel coordinates.
type Detection struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Area returns the bounding box area in pixels.
func (d Detection) Area() int {
	return d.Box.Dx() * d.Box.Dy()
}

// Detector runs inference on a single frame.
type Detector interface {
	// Detect finds objects in the frame. Failures are reported as
	// *InferenceError and are non-fatal to the caller's stream.
	Detect(f *frame.Frame) ([]Detection, error)

	// Close releases model resources.
	Close() error
}

// ErrModelNotFound indicates the model file does not exist.
var ErrModelNotFound = errors.New("detect: model file not found")

// InferenceError wraps a failed inference pass. It never escalates to the
// stream: callers log it and move on to the next frame.
type InferenceError struct {
	// Model identifies the backend that failed.
	Model string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	return fmt.Sprintf("detect [%s]: inference failed: %v", e.Model, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *InferenceError) Unwrap() error {
	return e.Cause
}

// IsInference returns true if the error is a non-fatal inference failure.
func IsInference(err error) bool {
	var infErr *InferenceError
	return errors.As(err, &infErr)
}

// SelectBest picks the strongest detection from a set.
// Priority: confidence * 0.7 + relative area * 0.3.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}
	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection
	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += float64(dets[i].Area()) / float64(maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}
	return best
}

// FilterLabel keeps only detections with the given label.
func FilterLabel(dets []Detection, label string) []Detection {
	var out []Detection
	for _, d := range dets {
		if d.Label == label {
			out = append(out, d)
		}
	}
	return out
}
