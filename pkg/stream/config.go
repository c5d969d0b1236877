// Package stream multiplexes one physical capture device across any number
// of independent consumers. A Registry maps camera ids to Streams, each
// Stream owns a single capture goroutine, and every consumer gets its own
// bounded drop-oldest queue so a slow consumer can never stall the capture
// loop or another consumer.
package stream

import (
	"fmt"
	"time"
)

// Config holds capture and delivery parameters for a stream.
type Config struct {
	// === Capture ===
	Width     int `json:"width"`     // Requested frame width in pixels (0 = device default)
	Height    int `json:"height"`    // Requested frame height in pixels (0 = device default)
	Framerate int `json:"framerate"` // Target FPS (0 = device default)

	// === Delivery ===
	// QueueSize is the per-consumer queue capacity. When the queue is full
	// the oldest frame is evicted, so consumers always see the newest frames.
	// Zero selects the default; there is no unbounded mode.
	QueueSize int `json:"queue_size"`

	// === Failure handling ===
	// ReadRetries is how many consecutive read failures are tolerated
	// before the stream transitions to StateError. Zero selects the
	// default; a stream that should fail on the first read error is not
	// expressible.
	ReadRetries int `json:"read_retries"`

	// ReadBackoff is the pause between failed reads. Zero selects the
	// default.
	ReadBackoff time.Duration `json:"read_backoff"`
}

// DefaultConfig returns the recommended configuration: 640x480 capture and
// a 2-frame consumer queue, which keeps latency low while absorbing
// scheduling jitter.
func DefaultConfig() Config {
	return Config{
		Width:       640,
		Height:      480,
		Framerate:   30,
		QueueSize:   2,
		ReadRetries: 3,
		ReadBackoff: 50 * time.Millisecond,
	}
}

// Validate checks the configuration and returns a list of problems.
// Zero values are valid everywhere; withDefaults resolves them.
func (c Config) Validate() []string {
	var errs []string
	if c.Width < 0 || c.Height < 0 {
		errs = append(errs, fmt.Sprintf("invalid dimensions %dx%d", c.Width, c.Height))
	}
	if c.Framerate < 0 {
		errs = append(errs, fmt.Sprintf("invalid framerate %d", c.Framerate))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Sprintf("queue size must be >= 0, got %d", c.QueueSize))
	}
	if c.ReadRetries < 0 {
		errs = append(errs, fmt.Sprintf("read retries must be >= 0, got %d", c.ReadRetries))
	}
	if c.ReadBackoff < 0 {
		errs = append(errs, "read backoff must be >= 0")
	}
	return errs
}

// withDefaults fills zero-valued delivery/failure fields from DefaultConfig.
// Zero always means "use the default", matching the field docs above.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.QueueSize == 0 {
		c.QueueSize = def.QueueSize
	}
	if c.ReadRetries == 0 {
		c.ReadRetries = def.ReadRetries
	}
	if c.ReadBackoff == 0 {
		c.ReadBackoff = def.ReadBackoff
	}
	return c
}
