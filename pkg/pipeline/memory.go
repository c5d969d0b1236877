package pipeline

import (
	"context"
	"sync"
)

// MemorySink keeps saved batches in memory. Used in tests and as a
// stand-in while the real persistence collaborator is not wired up.
type MemorySink struct {
	mu      sync.Mutex
	batches []Batch
	err     error
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailWith makes every SaveBatch call return err.
func (s *MemorySink) FailWith(err error) *MemorySink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// SaveBatch records the batch.
func (s *MemorySink) SaveBatch(ctx context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, b)
	return nil
}

// Batches returns a copy of the recorded batches.
func (s *MemorySink) Batches() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Batch, len(s.batches))
	copy(out, s.batches)
	return out
}
