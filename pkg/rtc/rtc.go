// Package rtc serves camera frames to browsers over WebRTC data channels.
//
// The browser posts an SDP offer, gets an answer back, and receives
// JPEG-encoded frames on a "frames" data channel. Data channels are used
// instead of media tracks so no video encoder is needed on either side.
package rtc

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-camhub/internal/log"
	"github.com/teslashibe/go-camhub/pkg/frame"
	"github.com/teslashibe/go-camhub/pkg/stream"
	"github.com/teslashibe/go-camhub/pkg/video"
)

// maxBuffered is the data channel backlog above which frames are skipped.
// A browser that stops draining gets fresh frames again once it catches up.
const maxBuffered = 1 << 20

// ErrSessionNotFound is returned when closing an unknown session.
var ErrSessionNotFound = errors.New("rtc: session not found")

// Session is one peer connection feeding frames to one browser.
type Session struct {
	ID string

	pc       *webrtc.PeerConnection
	consumer *stream.Consumer

	mu     sync.Mutex
	closed bool
}

func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.consumer != nil {
		s.consumer.Close()
	}
	s.pc.Close()
}

// Manager owns the active WebRTC sessions.
type Manager struct {
	registry *stream.Registry

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager backed by the given stream registry.
func NewManager(registry *stream.Registry) *Manager {
	return &Manager{
		registry: registry,
		sessions: make(map[string]*Session),
	}
}

// Answer accepts a browser's SDP offer for the given camera and returns the
// session id and the SDP answer. The answer carries a complete ICE candidate
// set; no trickle signalling is needed.
func (m *Manager) Answer(src stream.Source, offer webrtc.SessionDescription) (string, webrtc.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return "", webrtc.SessionDescription{}, err
	}

	sess := &Session{ID: uuid.New().String(), pc: pc}
	logger := log.With("session", sess.ID, "camera", src.ID)

	// Track the session before any callback can fire so drop always finds it.
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	dc, err := pc.CreateDataChannel("frames", nil)
	if err != nil {
		m.drop(sess.ID)
		return "", webrtc.SessionDescription{}, err
	}

	dc.OnOpen(func() {
		st, err := m.registry.GetOrCreate(src)
		if err != nil {
			logger.Warn("stream unavailable for webrtc session", "error", err)
			m.drop(sess.ID)
			return
		}
		c, err := st.RegisterFunc("webrtc-"+sess.ID, func(f *frame.Frame) {
			if dc.BufferedAmount() > maxBuffered {
				return
			}
			data, err := video.EncodeJPEG(f, video.DefaultJPEGQuality)
			if err != nil {
				logger.Warn("frame encode failed", "error", err)
				return
			}
			if err := dc.Send(data); err != nil {
				logger.Debug("data channel send failed", "error", err)
			}
		})
		if err != nil {
			logger.Warn("consumer registration failed", "error", err)
			m.drop(sess.ID)
			return
		}
		sess.mu.Lock()
		sess.consumer = c
		closed := sess.closed
		sess.mu.Unlock()
		if closed {
			c.Close()
			return
		}
		logger.Info("webrtc session streaming")
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Debug("ice state changed", "state", state.String())
		switch state {
		case webrtc.ICEConnectionStateDisconnected,
			webrtc.ICEConnectionStateFailed,
			webrtc.ICEConnectionStateClosed:
			m.drop(sess.ID)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		m.drop(sess.ID)
		return "", webrtc.SessionDescription{}, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		m.drop(sess.ID)
		return "", webrtc.SessionDescription{}, err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		m.drop(sess.ID)
		return "", webrtc.SessionDescription{}, err
	}
	<-gathered

	return sess.ID, *pc.LocalDescription(), nil
}

// CloseSession tears down one session.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.close()
	return nil
}

// SessionCount returns the number of active sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close tears down every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// drop removes and closes a session if it is still tracked.
func (m *Manager) drop(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		sess.close()
	}
}
