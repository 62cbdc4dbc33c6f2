package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Codec errors.
var (
	ErrInvalidMessage     = errors.New("invalid message")
	ErrMissingType        = errors.New("message has no type tag")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMissingField       = errors.New("missing required field")
)

// requiredFields lists the keys each message type must carry.
var requiredFields = map[MessageType][]string{
	TypeHandshake:      {"agent_id", "agent_name", "timestamp"},
	TypeHeartbeat:      {"agent_id", "timestamp"},
	TypeMetricsShare:   {"agent_id", "timestamp", "metrics"},
	TypeMetricsRequest: {"agent_id", "timestamp"},
	TypeResponse:       {"success", "message"},
}

// Marshal encodes msg as a single JSON object tagged with its type.
func Marshal(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Type(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("%w: %s did not encode as an object", ErrInvalidMessage, msg.Type())
	}

	tag, err := json.Marshal(msg.Type())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 9)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

// PeekMessageType returns the type tag of an encoded message without
// decoding its fields.
func PeekMessageType(data []byte) (MessageType, error) {
	var peek struct {
		Type *MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if peek.Type == nil {
		return "", ErrMissingType
	}
	if !peek.Type.Valid() {
		return *peek.Type, fmt.Errorf("%w: %q", ErrUnknownMessageType, string(*peek.Type))
	}
	return *peek.Type, nil
}

// Unmarshal decodes one tagged JSON message.
//
// Unknown tags and missing required fields are errors. Fields the message
// type does not define are ignored.
func Unmarshal(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, ErrMissingType
	}
	var t MessageType
	if err := json.Unmarshal(rawType, &t); err != nil {
		return nil, fmt.Errorf("%w: type tag: %v", ErrInvalidMessage, err)
	}

	var msg Message
	switch t {
	case TypeHandshake:
		msg = &Handshake{}
	case TypeHeartbeat:
		msg = &Heartbeat{}
	case TypeMetricsShare:
		msg = &MetricsShare{}
	case TypeMetricsRequest:
		msg = &MetricsRequest{}
	case TypeResponse:
		msg = &Response{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, string(t))
	}

	for _, name := range requiredFields[t] {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingField, t, name)
		}
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, t, err)
	}

	switch m := msg.(type) {
	case *Response:
		if isJSONNull(m.Data) {
			m.Data = nil
		}
	case *MetricsShare:
		if isJSONNull(m.Metrics) {
			m.Metrics = nil
		}
	}

	return msg, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) > 0 && string(bytes.TrimSpace(raw)) == "null"
}
