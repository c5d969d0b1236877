package stream

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-camhub/pkg/frame"
)

// fakeOpener is a test double for the device layer. It refuses double-opens
// for the same camera id, which is how the tests verify that at most one
// capture worker ever holds a given device.
type fakeOpener struct {
	mu      sync.Mutex
	busy    map[string]bool
	devices map[string]*fakeDevice
	opens   int
	failAll bool

	// When set, Open blocks until a value arrives on gate; a non-nil
	// value is returned as the open error. Lets tests race registrations
	// against an in-flight open.
	gate chan error
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		busy:    make(map[string]bool),
		devices: make(map[string]*fakeDevice),
	}
}

func (o *fakeOpener) Open(src Source, cfg Config) (Device, error) {
	o.mu.Lock()
	gate := o.gate
	o.mu.Unlock()
	if gate != nil {
		if err := <-gate; err != nil {
			return nil, &DeviceError{Op: "open", Source: src.ID, Cause: err}
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.failAll {
		return nil, &DeviceError{Op: "open", Source: src.ID, Cause: ErrDeviceUnavailable}
	}
	if o.busy[src.ID] {
		return nil, &DeviceError{
			Op:     "open",
			Source: src.ID,
			Cause:  fmt.Errorf("%w: already in use", ErrDeviceUnavailable),
		}
	}
	o.busy[src.ID] = true
	o.opens++

	d := &fakeDevice{
		source:  src.ID,
		reads:   make(chan fakeRead, 64),
		closeCh: make(chan struct{}),
	}
	d.onClose = func() {
		o.mu.Lock()
		delete(o.busy, src.ID)
		o.mu.Unlock()
	}
	o.devices[src.ID] = d
	return d, nil
}

func (o *fakeOpener) opened(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy[id]
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func (o *fakeOpener) device(id string) *fakeDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.devices[id]
}

type fakeRead struct {
	fail bool
}

// fakeDevice yields one 2x2 BGR frame per emit call. Read blocks until an
// emit arrives or the device is closed, like a real capture handle.
type fakeDevice struct {
	source    string
	reads     chan fakeRead
	closeCh   chan struct{}
	closeOnce sync.Once
	onClose   func()
	counter   byte
}

func (d *fakeDevice) Read() (*frame.Frame, error) {
	select {
	case r := <-d.reads:
		if r.fail {
			return nil, &DeviceError{
				Op:        "read",
				Source:    d.source,
				Cause:     errors.New("injected read failure"),
				Retryable: true,
			}
		}
		p := d.counter
		d.counter++
		data := make([]byte, 2*2*3)
		for i := range data {
			data[i] = p
		}
		return frame.New(data, 2, 2, 0), nil
	case <-d.closeCh:
		return nil, &DeviceError{Op: "read", Source: d.source, Cause: errors.New("device closed")}
	}
}

func (d *fakeDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.closeCh)
		if d.onClose != nil {
			d.onClose()
		}
	})
	return nil
}

// emit queues n successful reads.
func (d *fakeDevice) emit(n int) {
	for i := 0; i < n; i++ {
		d.reads <- fakeRead{}
	}
}

// failRead queues n failing reads.
func (d *fakeDevice) failRead(n int) {
	for i := 0; i < n; i++ {
		d.reads <- fakeRead{fail: true}
	}
}

// testConfig keeps retry pauses short so failure tests run quickly.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReadBackoff = time.Millisecond
	return cfg
}
