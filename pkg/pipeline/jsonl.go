package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"sync"
)

// FileSink appends detection batches to a file as JSON lines. It is the
// default sink when no database is wired up; one line per batch keeps the
// output greppable and trivially replayable.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewFileSink opens (or creates) path for appending.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f, enc: json.NewEncoder(f)}, nil
}

// SaveBatch writes the batch as one JSON line.
func (s *FileSink) SaveBatch(ctx context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(b)
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
