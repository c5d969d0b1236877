// Package web exposes the stream registry over HTTP: a JSON control API,
// websocket previews and lifecycle events, WebRTC signalling and Prometheus
// metrics.
package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-camhub/internal/log"
	"github.com/teslashibe/go-camhub/pkg/hub"
	"github.com/teslashibe/go-camhub/pkg/metrics"
	"github.com/teslashibe/go-camhub/pkg/rtc"
	"github.com/teslashibe/go-camhub/pkg/stream"
)

// Server is the HTTP front for a stream registry.
type Server struct {
	app      *fiber.App
	addr     string
	registry *stream.Registry
	sessions *rtc.Manager
	events   *hub.Hub
}

// NewServer builds the server and its routes. Metrics may be nil.
func NewServer(addr string, registry *stream.Registry, m *metrics.Metrics) *Server {
	s := &Server{
		addr:     addr,
		registry: registry,
		sessions: rtc.NewManager(registry),
		events:   hub.New("events"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "camhub",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/streams", s.handleListStreams)
	api.Get("/streams/:id", s.handleStreamStatus)
	api.Get("/streams/:id/snapshot", s.handleSnapshot)
	api.Delete("/streams/:id", s.handleRemoveStream)
	api.Delete("/streams", s.handleStopAll)
	api.Post("/streams/:id/webrtc", s.handleWebRTCOffer)
	api.Delete("/webrtc/:session", s.handleCloseWebRTC)

	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/streams/:id", websocket.New(s.handlePreviewWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Start runs the event hub and serves until Shutdown. Blocking.
func (s *Server) Start() error {
	go s.events.Run()
	log.Info("http server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// PublishEvent broadcasts a stream lifecycle event to websocket watchers.
// Safe to call from stream goroutines; never blocks.
func (s *Server) PublishEvent(ev stream.Event) {
	if err := s.events.BroadcastJSON(ev); err != nil {
		log.Warn("event broadcast failed", "error", err)
	}
}

// Shutdown stops the listener and tears down websocket and WebRTC clients.
func (s *Server) Shutdown() error {
	s.sessions.Close()
	s.events.Stop()
	return s.app.Shutdown()
}
