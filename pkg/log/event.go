package log

import (
	"time"

	"github.com/csf-agent/peerlink/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether the local side accepted or dialed the session.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// AgentID is the local agent's identifier.
	AgentID string `cbor:"8,keyasint,omitempty"`

	// PeerID is the peer agent's identifier (populated after the handshake).
	PeerID string `cbor:"9,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/session state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded JSON).
	LayerWire Layer = 1
	// LayerService is the application/service layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol message.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which side of a session the local agent plays.
type Role uint8

const (
	// RoleListener indicates the session was accepted by the local agent.
	RoleListener Role = 0
	// RoleDialer indicates the local agent dialed the session.
	RoleDialer Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleListener:
		return "LISTENER"
	case RoleDialer:
		return "DIALER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded protocol message at the wire layer.
type MessageEvent struct {
	// Type is the message's type tag.
	Type wire.MessageType `cbor:"1,keyasint"`

	// SenderID is the agent_id carried by the message, if any.
	SenderID string `cbor:"2,keyasint,omitempty"`

	// For responses: the success flag.
	Success *bool `cbor:"3,keyasint,omitempty"`

	// For responses: the human readable message.
	Text string `cbor:"4,keyasint,omitempty"`

	// For handshakes: the announced agent name.
	AgentName string `cbor:"5,keyasint,omitempty"`

	// PayloadSize is the size of the opaque metrics or data field in bytes.
	PayloadSize int `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures connection and session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates a session state change.
	StateEntitySession StateEntity = 1
	// StateEntityPeerLink indicates a supervised peer link state change.
	StateEntityPeerLink StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityPeerLink:
		return "PEER_LINK"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// NewMessageEvent summarizes a decoded message for the protocol log.
func NewMessageEvent(msg wire.Message) *MessageEvent {
	ev := &MessageEvent{Type: msg.Type()}
	switch m := msg.(type) {
	case *wire.Handshake:
		ev.SenderID = m.AgentID.String()
		ev.AgentName = m.AgentName
	case *wire.Heartbeat:
		ev.SenderID = m.AgentID.String()
	case *wire.MetricsShare:
		ev.SenderID = m.AgentID.String()
		ev.PayloadSize = len(m.Metrics)
	case *wire.MetricsRequest:
		ev.SenderID = m.AgentID.String()
	case *wire.Response:
		success := m.Success
		ev.Success = &success
		ev.Text = m.Message
		ev.PayloadSize = len(m.Data)
	}
	return ev
}
