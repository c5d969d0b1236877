package stream

// State is a stream's lifecycle state.
//
// Transitions: StateInit → StateOpening → StateRunning →
// {StateError, StateStopping} → StateStopped. A stopped stream is removed
// from the registry; re-registering its camera id builds a brand-new stream.
type State int32

const (
	// StateInit: stream constructed, no device opened.
	StateInit State = iota
	// StateOpening: device open in progress.
	StateOpening
	// StateRunning: capture loop active, consumers may come and go.
	StateRunning
	// StateError: capture failed irrecoverably; consumers got end-of-stream.
	// The stream lingers in the registry until an administrative Remove.
	StateError
	// StateStopping: last consumer left, device release in progress.
	StateStopping
	// StateStopped: device released, stream removed from the registry.
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateOpening:
		return "opening"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// terminal reports whether the stream can no longer accept consumers.
func (s State) terminal() bool {
	return s == StateError || s == StateStopping || s == StateStopped
}
