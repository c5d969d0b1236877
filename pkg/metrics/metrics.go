// Package metrics exposes Prometheus instrumentation for the multiplexer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for go-camhub.
// A nil *Metrics is valid; every method is a no-op on it, so instrumentation
// stays optional for library users.
type Metrics struct {
	registry            *prometheus.Registry
	framesCapturedTotal *prometheus.CounterVec
	framesDroppedTotal  *prometheus.CounterVec
	captureErrorsTotal  *prometheus.CounterVec
	activeStreams       prometheus.Gauge
	activeConsumers     prometheus.Gauge
}

// New creates and registers Prometheus metrics for the multiplexer.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	framesCapturedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camhub_frames_captured_total",
		Help: "Total number of frames read from capture devices",
	}, []string{"camera"})
	framesDroppedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camhub_frames_dropped_total",
		Help: "Total number of frames evicted from consumer queues",
	}, []string{"camera", "consumer"})
	captureErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camhub_capture_errors_total",
		Help: "Total number of device open/read failures",
	}, []string{"camera"})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camhub_active_streams",
		Help: "Number of streams with an open capture device",
	})
	activeConsumers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camhub_active_consumers",
		Help: "Number of registered consumers across all streams",
	})

	registry.MustRegister(
		framesCapturedTotal,
		framesDroppedTotal,
		captureErrorsTotal,
		activeStreams,
		activeConsumers,
	)

	return &Metrics{
		registry:            registry,
		framesCapturedTotal: framesCapturedTotal,
		framesDroppedTotal:  framesDroppedTotal,
		captureErrorsTotal:  captureErrorsTotal,
		activeStreams:       activeStreams,
		activeConsumers:     activeConsumers,
	}
}

// IncFramesCaptured increments the captured frame counter for a camera.
func (m *Metrics) IncFramesCaptured(camera string) {
	if m == nil {
		return
	}
	m.framesCapturedTotal.WithLabelValues(camera).Inc()
}

// IncFramesDropped increments the dropped frame counter for a consumer.
func (m *Metrics) IncFramesDropped(camera, consumer string) {
	if m == nil {
		return
	}
	m.framesDroppedTotal.WithLabelValues(camera, consumer).Inc()
}

// IncCaptureErrors increments the capture error counter for a camera.
func (m *Metrics) IncCaptureErrors(camera string) {
	if m == nil {
		return
	}
	m.captureErrorsTotal.WithLabelValues(camera).Inc()
}

// StreamStarted increments the active stream gauge.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

// StreamStopped decrements the active stream gauge.
func (m *Metrics) StreamStopped() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

// ConsumerAdded increments the active consumer gauge.
func (m *Metrics) ConsumerAdded() {
	if m == nil {
		return
	}
	m.activeConsumers.Inc()
}

// ConsumerRemoved decrements the active consumer gauge.
func (m *Metrics) ConsumerRemoved() {
	if m == nil {
		return
	}
	m.activeConsumers.Dec()
}

// Handler returns an http.Handler serving the registry in the Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
