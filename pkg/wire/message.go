package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType is the value of the "type" tag of an encoded message.
type MessageType string

// Message types.
const (
	TypeHandshake      MessageType = "Handshake"
	TypeHeartbeat      MessageType = "Heartbeat"
	TypeMetricsShare   MessageType = "MetricsShare"
	TypeMetricsRequest MessageType = "MetricsRequest"
	TypeResponse       MessageType = "Response"
)

// String returns the tag value.
func (t MessageType) String() string {
	return string(t)
}

// Valid reports whether t names one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeHandshake, TypeHeartbeat, TypeMetricsShare, TypeMetricsRequest, TypeResponse:
		return true
	default:
		return false
	}
}

// Response messages sent by the listener side.
const (
	HeartbeatReceived = "Heartbeat received"
	MetricsData       = "Metrics data"
	MetricsTooLarge   = "metrics too large"
)

// Message is implemented by the five message types of this package only.
type Message interface {
	// Type returns the message's tag.
	Type() MessageType

	message()
}

// Identity is the self-declared identity an agent presents in its handshake.
// It is not derived from the TLS certificate.
type Identity struct {
	AgentID   uuid.UUID
	AgentName string
}

// String formats the identity for logs.
func (i Identity) String() string {
	return i.AgentName + " (" + i.AgentID.String() + ")"
}

// Handshake announces the sender's identity. It is the first message
// each side sends on a session.
type Handshake struct {
	AgentID   uuid.UUID `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Timestamp time.Time `json:"timestamp"`
}

// Heartbeat is a liveness probe answered with a Response.
type Heartbeat struct {
	AgentID   uuid.UUID `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricsShare pushes a metrics snapshot to the peer. It is not answered.
type MetricsShare struct {
	AgentID   uuid.UUID       `json:"agent_id"`
	Timestamp time.Time       `json:"timestamp"`
	Metrics   json.RawMessage `json:"metrics"`
}

// MetricsRequest asks the peer for its current metrics.
type MetricsRequest struct {
	AgentID   uuid.UUID `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Response answers a Heartbeat or MetricsRequest.
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Type implements Message.
func (*Handshake) Type() MessageType { return TypeHandshake }

// Type implements Message.
func (*Heartbeat) Type() MessageType { return TypeHeartbeat }

// Type implements Message.
func (*MetricsShare) Type() MessageType { return TypeMetricsShare }

// Type implements Message.
func (*MetricsRequest) Type() MessageType { return TypeMetricsRequest }

// Type implements Message.
func (*Response) Type() MessageType { return TypeResponse }

func (*Handshake) message()      {}
func (*Heartbeat) message()      {}
func (*MetricsShare) message()   {}
func (*MetricsRequest) message() {}
func (*Response) message()       {}

// Identity returns the identity announced by the handshake.
func (h *Handshake) Identity() Identity {
	return Identity{AgentID: h.AgentID, AgentName: h.AgentName}
}

// now returns the current time in UTC.
func now() time.Time {
	return time.Now().UTC()
}

// NewHandshake builds a handshake announcing id.
func NewHandshake(id Identity) *Handshake {
	return &Handshake{AgentID: id.AgentID, AgentName: id.AgentName, Timestamp: now()}
}

// NewHeartbeat builds a heartbeat from agentID.
func NewHeartbeat(agentID uuid.UUID) *Heartbeat {
	return &Heartbeat{AgentID: agentID, Timestamp: now()}
}

// NewMetricsShare builds a metrics share carrying metrics.
func NewMetricsShare(agentID uuid.UUID, metrics json.RawMessage) *MetricsShare {
	return &MetricsShare{AgentID: agentID, Timestamp: now(), Metrics: metrics}
}

// NewMetricsRequest builds a metrics request from agentID.
func NewMetricsRequest(agentID uuid.UUID) *MetricsRequest {
	return &MetricsRequest{AgentID: agentID, Timestamp: now()}
}

// NewResponse builds a response without data.
func NewResponse(success bool, message string) *Response {
	return &Response{Success: success, Message: message}
}

// NewDataResponse builds a successful response carrying data.
func NewDataResponse(message string, data json.RawMessage) *Response {
	return &Response{Success: true, Message: message, Data: data}
}

// Compile-time interface satisfaction checks.
var (
	_ Message = (*Handshake)(nil)
	_ Message = (*Heartbeat)(nil)
	_ Message = (*MetricsShare)(nil)
	_ Message = (*MetricsRequest)(nil)
	_ Message = (*Response)(nil)
)
