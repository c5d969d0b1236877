package alert

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-camhub/internal/log"
)

// Dispatcher fans events out to its notifiers from a single worker
// goroutine. Send never blocks: when the buffer is full the event is
// dropped and counted, so a slow notification channel can never stall a
// frame pipeline.
type Dispatcher struct {
	notifiers []Notifier
	events    chan Event

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}

	dropped atomic.Uint64
	sent    atomic.Uint64
}

// NewDispatcher starts a dispatcher with the given buffer size and
// notifiers. A buffer size below 1 gets a default of 64.
func NewDispatcher(buffer int, notifiers ...Notifier) *Dispatcher {
	if buffer < 1 {
		buffer = 64
	}
	d := &Dispatcher{
		notifiers: notifiers,
		events:    make(chan Event, buffer),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// Send queues an event for delivery. Fire-and-forget: it returns
// immediately, dropping the event when the buffer is full or the
// dispatcher is closed.
func (d *Dispatcher) Send(ev Event) {
	select {
	case <-d.closed:
		d.dropped.Add(1)
		return
	default:
	}
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
		log.Warn("alert buffer full, dropping event", "label", ev.Label)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.closed:
			// Drain what is already queued, then exit.
			for {
				select {
				case ev := <-d.events:
					d.deliver(ev)
				default:
					return
				}
			}
		case ev := <-d.events:
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx := context.Background()
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			// Notification failures never propagate upstream.
			log.Warn("alert delivery failed", "label", ev.Label, "error", err)
			continue
		}
		d.sent.Add(1)
	}
}

// Close stops the dispatcher after draining queued events.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
	<-d.done
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Sent returns how many notifications were delivered.
func (d *Dispatcher) Sent() uint64 {
	return d.sent.Load()
}
