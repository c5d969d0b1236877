// camhubd multiplexes camera devices to many consumers: HTTP status API,
// websocket previews, WebRTC sessions and lifecycle events.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-camhub/internal/config"
	"github.com/teslashibe/go-camhub/internal/log"
	"github.com/teslashibe/go-camhub/pkg/alert"
	"github.com/teslashibe/go-camhub/pkg/detect"
	"github.com/teslashibe/go-camhub/pkg/metrics"
	"github.com/teslashibe/go-camhub/pkg/pipeline"
	"github.com/teslashibe/go-camhub/pkg/stream"
	"github.com/teslashibe/go-camhub/pkg/web"
)

func main() {
	config.Load()
	log.Init(config.Env("CAMHUB_LOG_LEVEL", "info"))

	cfg := stream.DefaultConfig()
	cfg.Width = config.EnvInt("CAMHUB_WIDTH", cfg.Width)
	cfg.Height = config.EnvInt("CAMHUB_HEIGHT", cfg.Height)
	cfg.Framerate = config.EnvInt("CAMHUB_FPS", cfg.Framerate)
	cfg.QueueSize = config.EnvInt("CAMHUB_QUEUE_SIZE", cfg.QueueSize)
	cfg.ReadRetries = config.EnvInt("CAMHUB_READ_RETRIES", cfg.ReadRetries)
	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			log.Error("invalid configuration", "problem", p)
		}
		os.Exit(1)
	}

	m := metrics.New()

	var server *web.Server
	registry := stream.NewRegistry(
		stream.WithConfig(cfg),
		stream.WithMetrics(m),
		stream.WithEvents(func(ev stream.Event) {
			if server != nil {
				server.PublishEvent(ev)
			}
		}),
	)

	addr := config.Env("CAMHUB_ADDR", ":8080")
	server = web.NewServer(addr, registry, m)

	stopDetect, err := startDetection(registry)
	if err != nil {
		log.Error("detection pipeline failed to start", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Error("server failed", "error", err)
	}

	if err := server.Shutdown(); err != nil {
		log.Warn("server shutdown failed", "error", err)
	}
	registry.StopAll()
	stopDetect()
	log.Info("bye")
}

// startDetection optionally runs an object detection pipeline against one
// camera. Enabled by setting CAMHUB_DETECT_MODEL to an ONNX model path.
// Detections go to a JSONL file; matching high-confidence labels raise
// alerts on the structured log.
func startDetection(registry *stream.Registry) (stop func(), err error) {
	modelPath := config.Env("CAMHUB_DETECT_MODEL", "")
	if modelPath == "" {
		return func() {}, nil
	}

	dcfg := detect.DefaultConfig()
	dcfg.ModelPath = modelPath
	dcfg.ConfidenceThresh = float32(config.EnvFloat("CAMHUB_DETECT_CONFIDENCE", float64(dcfg.ConfidenceThresh)))
	det, err := detect.NewNet(dcfg)
	if err != nil {
		return nil, err
	}

	sink, err := pipeline.NewFileSink(config.Env("CAMHUB_DETECT_OUT", "detections.jsonl"))
	if err != nil {
		det.Close()
		return nil, err
	}

	cameraID := config.Env("CAMHUB_DETECT_CAMERA", "0")
	cons, err := registry.Subscribe(stream.ParseSource(cameraID), "detector")
	if err != nil {
		det.Close()
		sink.Close()
		return nil, err
	}

	alerts := alert.NewDispatcher(16, alert.LogNotifier{})

	pcfg := pipeline.DefaultConfig()
	pcfg.TaskID = config.Env("CAMHUB_DETECT_TASK", "camhubd")
	pcfg.CameraID = cameraID
	pcfg.AlertLabel = config.Env("CAMHUB_ALERT_LABEL", "")
	pcfg.AlertConfidence = config.EnvFloat("CAMHUB_ALERT_CONFIDENCE", pcfg.AlertConfidence)
	pcfg.AlertRecipient = config.Env("CAMHUB_ALERT_RECIPIENT", "")

	p := pipeline.New(pcfg, det, sink, alerts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx, cons); err != nil && ctx.Err() == nil {
			log.Error("detection pipeline exited", "error", err)
		}
	}()

	return func() {
		cons.Close()
		cancel()
		<-done
		alerts.Close()
		sink.Close()
		det.Close()
	}, nil
}
