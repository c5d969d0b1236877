package alert

import (
	"context"
	"sync"
)

// MockNotifier records delivered events for tests.
type MockNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewMockNotifier creates a recording notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// FailWith makes every Notify call return err.
func (m *MockNotifier) FailWith(err error) *MockNotifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Notify records the event.
func (m *MockNotifier) Notify(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MockNotifier) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
