package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-camhub/internal/log"
	"github.com/teslashibe/go-camhub/pkg/frame"
	"github.com/teslashibe/go-camhub/pkg/metrics"
)

// Stream owns one capture device and fans its frames out to the registered
// consumers. It is created lazily by the Registry on first registration and
// torn down when its last consumer leaves.
type Stream struct {
	source Source
	cfg    Config
	open   Opener
	logger *slog.Logger

	// mu guards state, cause and the consumer map. It is held only for
	// short map/state accesses, never across device I/O or delivery.
	mu        sync.Mutex
	state     State
	cause     error
	consumers map[string]*Consumer

	// Newest-frame slot ("arena of one"): late joiners read the latest
	// capture without waiting for delivery. Seq tagging lets them detect
	// staleness.
	latestMu sync.RWMutex
	latest   *frame.Frame

	dev    Device
	cancel context.CancelFunc
	done   chan struct{}
	seq    uint64

	// Registry hooks.
	onStopped func(*Stream)
	onEvent   func(Event)
	metrics   *metrics.Metrics
}

// Event describes a stream lifecycle transition, for operational feeds.
type Event struct {
	CameraID string    `json:"camera_id"`
	State    string    `json:"state"`
	Time     time.Time `json:"time"`
}

func newStream(src Source, cfg Config, open Opener) *Stream {
	return &Stream{
		source:    src,
		cfg:       cfg,
		open:      open,
		logger:    log.With("camera", src.ID),
		state:     StateInit,
		consumers: make(map[string]*Consumer),
		done:      make(chan struct{}),
	}
}

// Source returns the stream's source descriptor.
func (s *Stream) Source() Source {
	return s.source
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the stored failure cause when the stream is in StateError.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// start opens the device and launches the capture goroutine. Called once by
// the registry. An open failure moves the stream to StateError; recovery
// requires a brand-new stream.
func (s *Stream) start() error {
	s.setState(StateOpening)

	dev, err := s.open(s.source, s.cfg)
	if err != nil {
		// Consumers may have registered while the open was in flight;
		// they get end-of-stream just like on a capture failure.
		s.mu.Lock()
		s.state = StateError
		s.cause = err
		removed := make([]*Consumer, 0, len(s.consumers))
		for _, c := range s.consumers {
			removed = append(removed, c)
		}
		s.consumers = make(map[string]*Consumer)
		s.mu.Unlock()

		for _, c := range removed {
			c.shut()
			s.metrics.ConsumerRemoved()
		}
		s.metrics.IncCaptureErrors(s.source.ID)
		s.emit(StateError)
		s.logger.Error("device open failed", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.state != StateOpening {
		// Stopped while the open was in flight.
		s.mu.Unlock()
		cancel()
		dev.Close()
		return ErrStreamUnavailable
	}
	s.dev = dev
	s.cancel = cancel
	s.state = StateRunning
	s.mu.Unlock()

	s.metrics.StreamStarted()
	s.emit(StateRunning)
	s.logger.Info("stream running")

	go s.runLoop(ctx)
	return nil
}

// Register adds a pull consumer. An empty id gets a generated one. Fails
// with ErrDuplicateConsumer for a taken id and ErrStreamUnavailable when
// the stream is failed or shutting down.
func (s *Stream) Register(id string) (*Consumer, error) {
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	if s.state.terminal() {
		s.mu.Unlock()
		return nil, ErrStreamUnavailable
	}
	if _, exists := s.consumers[id]; exists {
		s.mu.Unlock()
		return nil, ErrDuplicateConsumer
	}
	c := newConsumer(id, s.cfg.QueueSize)
	c.unregister = func() { s.Unregister(id) }
	s.consumers[id] = c
	s.mu.Unlock()

	s.metrics.ConsumerAdded()
	s.logger.Debug("consumer registered", "consumer", id)
	return c, nil
}

// RegisterFunc adds a push consumer: fn is invoked for each delivered frame
// on a dedicated drain goroutine, never on the capture goroutine. The drain
// stops when the consumer is closed or the stream ends.
func (s *Stream) RegisterFunc(id string, fn func(*frame.Frame)) (*Consumer, error) {
	c, err := s.Register(id)
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			f, err := c.Pull()
			if err != nil {
				return
			}
			fn(f)
		}
	}()
	return c, nil
}

// Unregister removes a consumer and wakes its blocked Pull with
// ErrEndOfStream. Unknown ids are a no-op, so the call is idempotent and
// safe concurrently with delivery. Removing the last consumer tears the
// stream down and releases the device.
func (s *Stream) Unregister(id string) {
	s.mu.Lock()
	c, ok := s.consumers[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.consumers, id)
	empty := len(s.consumers) == 0
	running := s.state == StateRunning || s.state == StateOpening
	if empty && running {
		s.state = StateStopping
	}
	s.mu.Unlock()

	c.shut()
	s.metrics.ConsumerRemoved()
	s.logger.Debug("consumer unregistered", "consumer", id)

	if empty && running {
		s.teardown()
	}
}

// Consumer returns a registered consumer by id.
func (s *Stream) Consumer(id string) (*Consumer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consumers[id]
	if !ok {
		return nil, ErrUnknownConsumer
	}
	return c, nil
}

// Latest returns a copy of the most recently captured frame, if any.
// Useful for late-joining synchronous readers such as snapshot endpoints.
func (s *Stream) Latest() (*frame.Frame, bool) {
	s.latestMu.RLock()
	f := s.latest
	s.latestMu.RUnlock()
	if f == nil {
		return nil, false
	}
	return f.Clone(), true
}

// Status reports the stream's operational state.
func (s *Stream) Status() Status {
	s.mu.Lock()
	st := Status{
		CameraID:      s.source.ID,
		State:         s.state.String(),
		ConsumerCount: len(s.consumers),
		ConsumerIDs:   make([]string, 0, len(s.consumers)),
		Drops:         make(map[string]uint64, len(s.consumers)),
	}
	consumers := make([]*Consumer, 0, len(s.consumers))
	for id, c := range s.consumers {
		st.ConsumerIDs = append(st.ConsumerIDs, id)
		consumers = append(consumers, c)
	}
	s.mu.Unlock()

	for _, c := range consumers {
		st.Drops[c.ID()] = c.Drops()
	}

	s.latestMu.RLock()
	if s.latest != nil {
		st.LastFrameSeq = s.latest.Seq
		st.LastFrameAge = time.Since(s.latest.Timestamp)
	}
	s.latestMu.RUnlock()
	return st
}

// Stop force-terminates the stream: every consumer gets end-of-stream and
// the device is released. Used for administrative removal and shutdown.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateStopping {
		s.mu.Unlock()
		return
	}
	wasError := s.state == StateError
	s.state = StateStopping
	removed := make([]*Consumer, 0, len(s.consumers))
	for _, c := range s.consumers {
		removed = append(removed, c)
	}
	s.consumers = make(map[string]*Consumer)
	s.mu.Unlock()

	for _, c := range removed {
		c.shut()
		s.metrics.ConsumerRemoved()
	}
	if wasError {
		// Device and capture loop are already gone; just finish the
		// state machine.
		s.finishStop()
		return
	}
	s.teardown()
}

// teardown joins the capture goroutine, releases the device and removes the
// stream from the registry. Runs without holding mu: the capture loop takes
// mu during fan-out.
func (s *Stream) teardown() {
	s.emit(StateStopping)
	if s.cancel != nil {
		s.cancel()
	}
	// Close before joining: a device blocked in Read only wakes up when
	// its handle goes away.
	if s.dev != nil {
		if err := s.dev.Close(); err != nil {
			s.logger.Warn("device close failed", "error", err)
		}
	}
	if s.cancel != nil {
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			s.logger.Warn("capture loop did not exit in time")
		}
	}
	if s.dev != nil {
		s.metrics.StreamStopped()
	}
	s.finishStop()
}

func (s *Stream) finishStop() {
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.emit(StateStopped)
	s.logger.Info("stream stopped")
	if s.onStopped != nil {
		s.onStopped(s)
	}
}

// fanOut delivers a captured frame to every consumer. Runs on the capture
// goroutine: it only clones and enqueues, never blocks, never does I/O.
// Each consumer receives its own copy so no two consumers alias a buffer.
func (s *Stream) fanOut(f *frame.Frame) {
	s.mu.Lock()
	consumers := make([]*Consumer, 0, len(s.consumers))
	for _, c := range s.consumers {
		consumers = append(consumers, c)
	}
	s.mu.Unlock()

	for _, c := range consumers {
		if evicted := c.post(f.Clone()); evicted {
			s.metrics.IncFramesDropped(s.source.ID, c.ID())
		}
	}
}

func (s *Stream) storeLatest(f *frame.Frame) {
	s.latestMu.Lock()
	s.latest = f
	s.latestMu.Unlock()
}

func (s *Stream) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.emit(st)
}

func (s *Stream) emit(st State) {
	if s.onEvent != nil {
		s.onEvent(Event{CameraID: s.source.ID, State: st.String(), Time: time.Now()})
	}
}

// Status is the operational snapshot returned by Stream.Status and the
// registry's introspection surface.
type Status struct {
	CameraID      string            `json:"camera_id"`
	State         string            `json:"state"`
	ConsumerCount int               `json:"consumer_count"`
	ConsumerIDs   []string          `json:"consumer_ids"`
	LastFrameSeq  uint64            `json:"last_frame_seq"`
	LastFrameAge  time.Duration     `json:"last_frame_age"`
	Drops         map[string]uint64 `json:"drops"`
}
