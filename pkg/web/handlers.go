package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	webrtc "github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-camhub/internal/log"
	"github.com/teslashibe/go-camhub/pkg/hub"
	"github.com/teslashibe/go-camhub/pkg/stream"
	"github.com/teslashibe/go-camhub/pkg/video"
)

// sourceFromRequest resolves the camera source for a request. The path id
// names the camera; a "source" query parameter overrides the descriptor for
// network cameras whose URLs do not fit in a path segment.
func sourceFromRequest(c *fiber.Ctx) stream.Source {
	src := stream.ParseSource(c.Params("id"))
	if q := c.Query("source"); q != "" {
		src.URI = q
	}
	return src
}

// handleListStreams returns a status snapshot of every active stream.
func (s *Server) handleListStreams(c *fiber.Ctx) error {
	return c.JSON(s.registry.List())
}

// handleStreamStatus returns one stream's status.
func (s *Server) handleStreamStatus(c *fiber.Ctx) error {
	status, err := s.registry.Status(c.Params("id"))
	if errors.Is(err, stream.ErrStreamNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(status)
}

// handleSnapshot returns the most recent frame as a JPEG. Only streams that
// already have consumers hold a frame; a snapshot never starts capture.
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	st, err := s.registry.Get(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	f, ok := st.Latest()
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no frame captured yet"})
	}
	data, err := video.EncodeJPEG(f, video.DefaultJPEGQuality)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Type("jpg")
	return c.Send(data)
}

// handleRemoveStream force-removes a stream. This is the administrative
// reset path: consumers get end-of-stream and the camera id becomes free.
func (s *Server) handleRemoveStream(c *fiber.Ctx) error {
	err := s.registry.Remove(c.Params("id"))
	if errors.Is(err, stream.ErrStreamNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleStopAll force-stops every stream.
func (s *Server) handleStopAll(c *fiber.Ctx) error {
	s.registry.StopAll()
	return c.SendStatus(fiber.StatusNoContent)
}

// handleWebRTCOffer answers a browser SDP offer with frames over a data
// channel.
func (s *Server) handleWebRTCOffer(c *fiber.Ctx) error {
	var offer webrtc.SessionDescription
	if err := c.BodyParser(&offer); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid SDP offer"})
	}
	id, answer, err := s.sessions.Answer(sourceFromRequest(c), offer)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"session": id,
		"answer":  answer,
	})
}

// handleCloseWebRTC tears down one WebRTC session.
func (s *Server) handleCloseWebRTC(c *fiber.Ctx) error {
	if err := s.sessions.CloseSession(c.Params("session")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handlePreviewWS streams JPEG frames for one camera over a websocket. Each
// connection is its own consumer: slow viewers drop frames without holding
// anyone else back.
func (s *Server) handlePreviewWS(conn *websocket.Conn) {
	defer conn.Close()

	src := stream.ParseSource(conn.Params("id"))
	if q := conn.Query("source"); q != "" {
		src.URI = q
	}

	consumerID := "ws-" + uuid.New().String()
	cons, err := s.registry.Subscribe(src, consumerID)
	if err != nil {
		log.Warn("preview subscribe failed", "camera", src.ID, "error", err)
		conn.WriteJSON(fiber.Map{"error": err.Error()})
		return
	}
	defer cons.Close()

	// Reader goroutine: the browser sends nothing useful, but reading is how
	// we notice it went away. Closing the consumer unblocks the pull loop.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cons.Close()
				return
			}
		}
	}()

	logger := log.With("camera", src.ID, "consumer", consumerID)
	logger.Info("preview started")
	defer logger.Info("preview ended")

	for {
		f, err := cons.Pull()
		if err != nil {
			// End of stream: camera failed, was removed, or viewer left.
			return
		}
		data, err := video.EncodeJPEG(f, video.DefaultJPEGQuality)
		if err != nil {
			logger.Warn("frame encode failed", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
	}
}

// handleEventsWS attaches a client to the lifecycle event feed.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	client := hub.NewClient(s.events, conn)
	client.Run()
}
