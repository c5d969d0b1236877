package stream

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-camhub/pkg/frame"
)

// Consumer is one registered sink on a stream. It owns a bounded
// drop-oldest queue: the capture goroutine posts into it without ever
// blocking, and the consumer drains it at its own pace from whatever
// execution context it lives in.
//
// post is called by the capture goroutine; Pull by the consumer's own
// goroutine. The mutex is held only for queue access, never across I/O.
type Consumer struct {
	id string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*frame.Frame
	cap    int
	closed bool

	// Delivery stats, guarded by mu.
	drops    uint64
	lastSeq  uint64
	lastPull time.Time

	// Set by the stream at registration; detaches the consumer.
	unregister func()
}

func newConsumer(id string, capacity int) *Consumer {
	c := &Consumer{
		id:       id,
		queue:    make([]*frame.Frame, 0, capacity),
		cap:      capacity,
		lastPull: time.Now(),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// ID returns the consumer's id within its stream.
func (c *Consumer) ID() string {
	return c.id
}

// post hands a frame to the consumer. Never blocks: when the queue is full
// the oldest frame is evicted so the consumer always sees the newest frames.
// Posting to a closed consumer is a silent drop. Reports whether a queued
// frame was evicted.
func (c *Consumer) post(f *frame.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	evicted := false
	if len(c.queue) >= c.cap {
		// Drop-oldest: queue-full is not an error.
		copy(c.queue, c.queue[1:])
		c.queue = c.queue[:len(c.queue)-1]
		c.drops++
		evicted = true
	}
	c.queue = append(c.queue, f)
	c.cond.Signal()
	return evicted
}

// Pull blocks until a frame is available or the stream has terminated.
// Termination surfaces as ErrEndOfStream; frames for a single consumer
// arrive in capture order.
func (c *Consumer) Pull() (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.queue) == 0 && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return nil, ErrEndOfStream
	}
	return c.take(), nil
}

// PullContext is Pull with cancellation.
func (c *Consumer) PullContext(ctx context.Context) (*frame.Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		// Take the lock so the wakeup cannot slip between a waiter's
		// ctx check and its cond.Wait.
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.queue) == 0 && !c.closed && ctx.Err() == nil {
		c.cond.Wait()
	}
	if c.closed {
		return nil, ErrEndOfStream
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.take(), nil
}

// take pops the oldest queued frame. Caller holds mu.
func (c *Consumer) take() *frame.Frame {
	f := c.queue[0]
	copy(c.queue, c.queue[1:])
	c.queue = c.queue[:len(c.queue)-1]
	c.lastSeq = f.Seq
	c.lastPull = time.Now()
	return f
}

// Close unregisters the consumer from its stream. Safe to call more than
// once and concurrently with delivery; any blocked Pull returns
// ErrEndOfStream promptly.
func (c *Consumer) Close() {
	if c.unregister != nil {
		c.unregister()
	} else {
		c.shut()
	}
}

// shut marks the consumer terminated and wakes blocked pullers. Idempotent.
func (c *Consumer) shut() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.queue = nil
		c.cond.Broadcast()
	}
	c.mu.Unlock()
}

// Drops returns how many frames were evicted because this consumer
// fell behind.
func (c *Consumer) Drops() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drops
}

// LastSeq returns the sequence number of the last pulled frame.
func (c *Consumer) LastSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}
