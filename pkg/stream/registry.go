package stream

import (
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-camhub/internal/log"
	"github.com/teslashibe/go-camhub/pkg/metrics"
)

// Registry is the process-wide camera id → Stream table. Streams are
// created lazily on first registration and removed eagerly when they stop.
// Construct one at process start and inject it; there is no package-level
// instance.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*Stream

	open    Opener
	cfg     Config
	metrics *metrics.Metrics
	events  func(Event)
}

// Option configures a Registry.
type Option func(*Registry)

// WithOpener overrides the device opener (tests inject doubles here).
func WithOpener(open Opener) Option {
	return func(r *Registry) { r.open = open }
}

// WithConfig sets the capture/delivery configuration for new streams.
func WithConfig(cfg Config) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithEvents attaches a lifecycle event hook. The hook is called from
// stream goroutines and must not block.
func WithEvents(fn func(Event)) Option {
	return func(r *Registry) { r.events = fn }
}

// NewRegistry creates a Registry. By default it opens devices with gocv
// and uses DefaultConfig.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		streams: make(map[string]*Stream),
		open:    OpenDevice,
		cfg:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cfg = r.cfg.withDefaults()
	return r
}

// GetOrCreate returns the active stream for the source's camera id,
// creating and starting one when none exists. A failed device open leaves
// the stream in StateError and returns the open error; the errored stream
// stays in the table until Remove.
func (r *Registry) GetOrCreate(src Source) (*Stream, error) {
	r.mu.Lock()
	if st, ok := r.streams[src.ID]; ok {
		r.mu.Unlock()
		return st, nil
	}

	st := newStream(src, r.cfg, r.open)
	st.metrics = r.metrics
	st.onEvent = r.events
	st.onStopped = r.dropStopped
	r.streams[src.ID] = st
	r.mu.Unlock()

	log.Info("stream created", "camera", src.ID)
	if err := st.start(); err != nil {
		return st, err
	}
	return st, nil
}

// Get returns the active stream for a camera id.
func (r *Registry) Get(cameraID string) (*Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.streams[cameraID]
	if !ok {
		return nil, ErrStreamNotFound
	}
	return st, nil
}

// Subscribe is the common registration path: get-or-create the stream and
// register a pull consumer on it. A registration that races with stream
// teardown is retried against a fresh stream.
func (r *Registry) Subscribe(src Source, consumerID string) (*Consumer, error) {
	for attempt := 0; attempt < 3; attempt++ {
		st, err := r.GetOrCreate(src)
		if err == ErrStreamUnavailable {
			// Stream stopped while its device open was in flight.
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err != nil {
			return nil, err
		}
		c, err := st.Register(consumerID)
		if err == ErrStreamUnavailable {
			if state := st.State(); state == StateStopping || state == StateStopped {
				// Lost the race with teardown; wait for the table to
				// shed this stream, then try again with a fresh one.
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, ErrStreamUnavailable
}

// Remove force-removes a stream: all consumers get end-of-stream, the
// device is released, and the id becomes free for a fresh stream. This is
// the administrative reset path and the only way out of StateError.
func (r *Registry) Remove(cameraID string) error {
	r.mu.Lock()
	st, ok := r.streams[cameraID]
	r.mu.Unlock()
	if !ok {
		return ErrStreamNotFound
	}
	st.Stop()
	return nil
}

// StopAll force-stops every stream. Used during process shutdown and tests.
func (r *Registry) StopAll() {
	r.mu.Lock()
	streams := make([]*Stream, 0, len(r.streams))
	for _, st := range r.streams {
		streams = append(streams, st)
	}
	r.mu.Unlock()

	for _, st := range streams {
		st.Stop()
	}
}

// List returns a status snapshot for every active stream, sorted by
// camera id.
func (r *Registry) List() []Status {
	r.mu.Lock()
	streams := make([]*Stream, 0, len(r.streams))
	for _, st := range r.streams {
		streams = append(streams, st)
	}
	r.mu.Unlock()

	statuses := make([]Status, 0, len(streams))
	for _, st := range streams {
		statuses = append(statuses, st.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].CameraID < statuses[j].CameraID
	})
	return statuses
}

// Status returns the status snapshot for one camera.
func (r *Registry) Status(cameraID string) (Status, error) {
	st, err := r.Get(cameraID)
	if err != nil {
		return Status{}, err
	}
	return st.Status(), nil
}

// dropStopped removes a stopped stream from the table. Only the exact
// stream instance is removed: a replacement registered under the same id
// is left alone.
func (r *Registry) dropStopped(st *Stream) {
	r.mu.Lock()
	if cur, ok := r.streams[st.source.ID]; ok && cur == st {
		delete(r.streams, st.source.ID)
	}
	r.mu.Unlock()
	log.Info("stream removed", "camera", st.source.ID)
}
