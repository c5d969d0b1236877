package alert

import (
	"context"

	"github.com/teslashibe/go-camhub/internal/log"
)

// LogNotifier writes alerts to the structured log. It is the default
// notifier when no external channel (mail, webhook) is configured.
type LogNotifier struct{}

// Notify logs the event.
func (LogNotifier) Notify(ctx context.Context, ev Event) error {
	log.Warn("alert",
		"label", ev.Label,
		"confidence", ev.Confidence,
		"recipient", ev.Recipient,
	)
	return nil
}
