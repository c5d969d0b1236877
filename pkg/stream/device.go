package stream

import (
	"strconv"

	"github.com/teslashibe/go-camhub/pkg/frame"
)

// Source describes where a stream's frames come from.
type Source struct {
	// ID is the camera id the stream is registered under.
	ID string `json:"id"`

	// Index is the local device index (e.g. /dev/video0 = 0).
	// Ignored when URI is set.
	Index int `json:"index"`

	// URI is a network source descriptor (e.g. an RTSP URL).
	URI string `json:"uri,omitempty"`
}

// Descriptor returns the value handed to the device opener: the URI when
// set, otherwise the device index.
func (s Source) Descriptor() interface{} {
	if s.URI != "" {
		return s.URI
	}
	return s.Index
}

// ParseSource maps a camera id to a Source. Purely numeric ids address
// local devices by index; anything else is passed to the opener as a
// URI-style descriptor (RTSP URLs, device paths, file names).
func ParseSource(id string) Source {
	if n, err := strconv.Atoi(id); err == nil {
		return Source{ID: id, Index: n}
	}
	return Source{ID: id, URI: id}
}

// Device is an open capture handle. It is owned exclusively by one capture
// goroutine; implementations do not need to be safe for concurrent use.
type Device interface {
	// Read blocks until the device yields the next frame. The returned
	// frame is a private copy the caller may hand off without aliasing
	// the device's internal buffer.
	Read() (*frame.Frame, error)

	// Close releases the device handle. Must be idempotent.
	Close() error
}

// Opener opens a capture device for a source. The production opener is
// backed by gocv; tests inject doubles.
type Opener func(src Source, cfg Config) (Device, error)
