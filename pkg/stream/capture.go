package stream

import (
	"context"
	"time"
)

// runLoop is the capture worker: it blocks on device reads and republishes
// the newest frame. One per stream, exclusive owner of the device handle.
// Transient read failures are retried with a short backoff; exhausting the
// configured retries escalates to StateError.
func (s *Stream) runLoop(ctx context.Context) {
	defer close(s.done)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		f, err := s.dev.Read()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			s.metrics.IncCaptureErrors(s.source.ID)
			s.logger.Warn("device read failed",
				"error", err, "attempt", failures, "max", s.cfg.ReadRetries)
			if failures >= s.cfg.ReadRetries {
				s.fail(err)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.ReadBackoff):
			}
			continue
		}

		failures = 0
		f.Seq = s.seq
		s.seq++

		s.metrics.IncFramesCaptured(s.source.ID)
		s.storeLatest(f)
		s.fanOut(f)
	}
}

// fail moves a running stream to StateError: every consumer gets
// end-of-stream, the device is released, and the stream lingers in the
// registry until an administrative Remove. Runs on the capture goroutine.
func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
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
	if closeErr := s.dev.Close(); closeErr != nil {
		s.logger.Warn("device close failed", "error", closeErr)
	}
	s.metrics.StreamStopped()
	s.emit(StateError)
	s.logger.Error("stream failed", "error", err)
}
