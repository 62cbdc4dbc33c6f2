package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/csf-agent/peerlink/pkg/wire"
)

func TestEventCBORRoundTrip(t *testing.T) {
	success := true
	event := Event{
		Timestamp:    time.Date(2026, 1, 28, 10, 0, 0, 123456789, time.UTC),
		ConnectionID: "conn-123",
		Direction:    DirectionOut,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		LocalRole:    RoleDialer,
		RemoteAddr:   "10.0.0.2:9443",
		AgentID:      "agent-a",
		PeerID:       "agent-b",
		Message: &MessageEvent{
			Type:    wire.TypeResponse,
			Success: &success,
			Text:    "Heartbeat received",
		},
	}

	data, err := MarshalEvent(event)
	if err != nil {
		t.Fatalf("MarshalEvent failed: %v", err)
	}

	decoded, err := UnmarshalEvent(data)
	if err != nil {
		t.Fatalf("UnmarshalEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp = %v, want %v (nanosecond precision)", decoded.Timestamp, event.Timestamp)
	}
	if decoded.LocalRole != RoleDialer || decoded.PeerID != "agent-b" || decoded.AgentID != "agent-a" {
		t.Errorf("identifiers not preserved: %+v", decoded)
	}
	if decoded.Message == nil {
		t.Fatal("Message is nil")
	}
	if decoded.Message.Type != wire.TypeResponse {
		t.Errorf("Message.Type = %s, want Response", decoded.Message.Type)
	}
	if decoded.Message.Success == nil || !*decoded.Message.Success {
		t.Error("Message.Success not preserved")
	}
	if decoded.Frame != nil || decoded.StateChange != nil || decoded.Error != nil {
		t.Error("unset payloads decoded as non-nil")
	}
}

func TestEventCBORDeterministic(t *testing.T) {
	event := Event{
		Timestamp:    time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC),
		ConnectionID: "conn-1",
		Layer:        LayerService,
		Category:     CategoryState,
		StateChange:  &StateChangeEvent{Entity: StateEntitySession, OldState: "AWAIT_HANDSHAKE", NewState: "ESTABLISHED"},
	}

	a, err := MarshalEvent(event)
	if err != nil {
		t.Fatalf("MarshalEvent failed: %v", err)
	}
	b, _ := MarshalEvent(event)
	if !bytes.Equal(a, b) {
		t.Error("encoding is not deterministic")
	}
}

func TestEventCBORUsesIntegerKeys(t *testing.T) {
	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
	}

	data, err := MarshalEvent(event)
	if err != nil {
		t.Fatalf("MarshalEvent failed: %v", err)
	}

	var rawMap map[uint64]any
	if err := eventDecMode.Unmarshal(data, &rawMap); err != nil {
		t.Fatalf("failed to decode as map: %v", err)
	}

	for _, key := range []uint64{1, 2, 3, 4, 5} {
		if _, ok := rawMap[key]; !ok {
			t.Errorf("expected integer key %d not found in encoded data", key)
		}
	}
}

func TestUnmarshalEventRejectsTrailingData(t *testing.T) {
	data, err := MarshalEvent(Event{Timestamp: time.Now(), ConnectionID: "conn-1"})
	if err != nil {
		t.Fatalf("MarshalEvent failed: %v", err)
	}

	twice := append(append([]byte{}, data...), data...)
	if _, err := UnmarshalEvent(twice); err == nil {
		t.Error("UnmarshalEvent accepted two concatenated events")
	}

	dec := NewEventDecoder(bytes.NewReader(twice))
	for i := range 2 {
		var e Event
		if err := dec.Decode(&e); err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}
}

func TestUnmarshalEventRejectsDeepNesting(t *testing.T) {
	// Ten nested single-element arrays around an integer.
	data := append(bytes.Repeat([]byte{0x81}, 10), 0x01)
	var v any
	if err := eventDecMode.Unmarshal(data, &v); err == nil {
		t.Error("decoder accepted nesting beyond its limit")
	}
}
