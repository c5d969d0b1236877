// Package pipeline runs a detection loop over a registered stream consumer
// and hands results to the persistence and alerting collaborators. Failures
// on either boundary are logged and never touch frame delivery.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-camhub/internal/log"
	"github.com/teslashibe/go-camhub/pkg/alert"
	"github.com/teslashibe/go-camhub/pkg/detect"
	"github.com/teslashibe/go-camhub/pkg/stream"
)

// Batch is a group of detections saved together, tagged with a task id.
type Batch struct {
	TaskID     string             `json:"task_id"`
	CameraID   string             `json:"camera_id"`
	FrameSeq   uint64             `json:"frame_seq"`
	Timestamp  time.Time          `json:"timestamp"`
	Detections []detect.Detection `json:"detections"`
}

// Sink is the persistence boundary. Implementations own their transactions
// and durability; the pipeline only batches and calls.
type Sink interface {
	SaveBatch(ctx context.Context, b Batch) error
}

// Config tunes one pipeline instance.
type Config struct {
	// TaskID tags every saved batch.
	TaskID string

	// CameraID is recorded on batches for operator queries.
	CameraID string

	// BatchSize is how many frames with detections are grouped per save.
	BatchSize int

	// AlertLabel fires an alert when detected at or above AlertConfidence.
	// Empty disables alerting.
	AlertLabel      string
	AlertConfidence float64
	AlertRecipient  string

	// AlertCooldown suppresses repeat alerts for the same label.
	AlertCooldown time.Duration
}

// DefaultConfig returns workable pipeline defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:       8,
		AlertConfidence: 0.8,
		AlertCooldown:   30 * time.Second,
	}
}

// Pipeline pulls frames from one consumer and runs inference on them.
type Pipeline struct {
	cfg      Config
	detector detect.Detector
	sink     Sink
	alerts   *alert.Dispatcher

	pending   []Batch
	lastAlert time.Time

	frames     atomic.Uint64
	detections atomic.Uint64
	infErrors  atomic.Uint64
	sinkErrors atomic.Uint64
}

// New builds a pipeline. sink and alerts may be nil; the corresponding
// boundary is then skipped.
func New(cfg Config, det detect.Detector, sink Sink, alerts *alert.Dispatcher) *Pipeline {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Pipeline{
		cfg:      cfg,
		detector: det,
		sink:     sink,
		alerts:   alerts,
	}
}

// Run drives the loop until the consumer's stream ends. It blocks; callers
// usually run it in its own goroutine.
func (p *Pipeline) Run(ctx context.Context, c *stream.Consumer) error {
	logger := log.With("task", p.cfg.TaskID, "camera", p.cfg.CameraID)
	logger.Info("pipeline started")
	defer logger.Info("pipeline stopped")

	for {
		f, err := c.PullContext(ctx)
		if err == stream.ErrEndOfStream {
			p.flush(ctx)
			return nil
		}
		if err != nil {
			// Context cancellation; flush what we have.
			p.flush(context.Background())
			return err
		}
		p.frames.Add(1)

		dets, err := p.detector.Detect(f)
		if err != nil {
			// Inference failures are non-fatal: log, count, next frame.
			p.infErrors.Add(1)
			logger.Warn("inference failed", "seq", f.Seq, "error", err)
			continue
		}
		if len(dets) == 0 {
			continue
		}
		p.detections.Add(uint64(len(dets)))

		p.pending = append(p.pending, Batch{
			TaskID:     p.cfg.TaskID,
			CameraID:   p.cfg.CameraID,
			FrameSeq:   f.Seq,
			Timestamp:  f.Timestamp,
			Detections: dets,
		})
		if len(p.pending) >= p.cfg.BatchSize {
			p.flush(ctx)
		}

		p.maybeAlert(dets)
	}
}

// flush saves pending batches. Sink errors are logged and the batches
// dropped; persistence problems never stall the stream.
func (p *Pipeline) flush(ctx context.Context) {
	if p.sink == nil || len(p.pending) == 0 {
		p.pending = nil
		return
	}
	for _, b := range p.pending {
		if err := p.sink.SaveBatch(ctx, b); err != nil {
			p.sinkErrors.Add(1)
			log.Warn("detection batch save failed",
				"task", b.TaskID, "seq", b.FrameSeq, "error", err)
		}
	}
	p.pending = nil
}

func (p *Pipeline) maybeAlert(dets []detect.Detection) {
	if p.alerts == nil || p.cfg.AlertLabel == "" {
		return
	}
	matches := detect.FilterLabel(dets, p.cfg.AlertLabel)
	best := detect.SelectBest(matches)
	if best == nil || best.Confidence < p.cfg.AlertConfidence {
		return
	}
	if time.Since(p.lastAlert) < p.cfg.AlertCooldown {
		return
	}
	p.lastAlert = time.Now()
	p.alerts.Send(alert.Event{
		Label:      best.Label,
		Confidence: best.Confidence,
		Recipient:  p.cfg.AlertRecipient,
	})
}

// Stats is a snapshot of the pipeline's counters.
type Stats struct {
	Frames          uint64 `json:"frames"`
	Detections      uint64 `json:"detections"`
	InferenceErrors uint64 `json:"inference_errors"`
	SinkErrors      uint64 `json:"sink_errors"`
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Frames:          p.frames.Load(),
		Detections:      p.detections.Load(),
		InferenceErrors: p.infErrors.Load(),
		SinkErrors:      p.sinkErrors.Load(),
	}
}
