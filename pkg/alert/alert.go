// Package alert defines the alerting boundary. The multiplexer hands events
// to a Dispatcher and never waits on delivery; the notification channels
// (email, SMS, chat) live behind the Notifier interface.
package alert

import (
	"context"
	"errors"
)

// Event is one alert: a detection worth telling somebody about.
type Event struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	ImagePath  string  `json:"image_path,omitempty"`
	Recipient  string  `json:"recipient"`
}

// Notifier delivers one event over one channel.
type Notifier interface {
	// Notify delivers the event. Called from the dispatcher's worker
	// goroutine, never from the multiplexer's delivery path.
	Notify(ctx context.Context, ev Event) error
}

// ErrClosed is returned when sending to a closed dispatcher.
var ErrClosed = errors.New("alert: dispatcher closed")
