package detect

import (
	"sync"

	"github.com/teslashibe/go-camhub/pkg/frame"
)

// MockDetector is a scripted Detector for tests and development without a
// model file. Results are returned in order; after the script runs out it
// returns no detections.
type MockDetector struct {
	mu      sync.Mutex
	script  [][]Detection
	errs    []error
	calls   int
	closed  bool
	OnCalls func(n int)
}

// NewMock creates a MockDetector that replays the given results.
func NewMock(script ...[]Detection) *MockDetector {
	return &MockDetector{script: script}
}

// FailWith queues errors returned before any scripted results.
func (m *MockDetector) FailWith(errs ...error) *MockDetector {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
	return m
}

// Detect replays the next scripted result.
func (m *MockDetector) Detect(f *frame.Frame) ([]Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.OnCalls != nil {
		m.OnCalls(m.calls)
	}
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	if len(m.script) > 0 {
		dets := m.script[0]
		m.script = m.script[1:]
		return dets, nil
	}
	return nil, nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the mock closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
