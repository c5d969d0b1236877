// Package frame defines the pixel buffer handed between the capture side
// and consumers.
package frame

import "time"

// Frame is a single captured image sample.
//
// Data is a 3-channel interleaved BGR buffer of Width*Height*3 bytes.
// Once a Frame has been published to a consumer it is owned by that consumer
// alone and must not be mutated by anyone else; the capture side always
// publishes a fresh copy.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Seq       uint64
	Timestamp time.Time
}

// New builds a Frame over data. The buffer is used as-is, not copied.
func New(data []byte, width, height int, seq uint64) *Frame {
	return &Frame{
		Data:      data,
		Width:     width,
		Height:    height,
		Seq:       seq,
		Timestamp: time.Now(),
	}
}

// Clone returns an independently owned deep copy of the frame.
func (f *Frame) Clone() *Frame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &Frame{
		Data:      data,
		Width:     f.Width,
		Height:    f.Height,
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
	}
}

// Age returns the time elapsed since the frame was captured.
func (f *Frame) Age() time.Duration {
	return time.Since(f.Timestamp)
}

// Size returns the byte length of the pixel buffer.
func (f *Frame) Size() int {
	return len(f.Data)
}
