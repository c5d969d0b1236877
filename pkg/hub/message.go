// Package hub fans websocket messages out to a set of connected clients
// over a channel per client, evicting clients that cannot keep up.
package hub

// MessageType selects the websocket frame format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded text payload (lifecycle events, status).
	JSONMessage MessageType = iota
	// BinaryMessage is raw bytes (JPEG-encoded preview frames).
	BinaryMessage
)

// Message is a single payload queued for broadcast.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
