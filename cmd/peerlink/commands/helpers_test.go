package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/csf-agent/peerlink/pkg/log"
	"github.com/csf-agent/peerlink/pkg/wire"
)

var baseTime = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

// sampleEvents is a short dialer-side trace: handshake, one heartbeat
// exchange, a peer link state change and an error.
func sampleEvents() []log.Event {
	success := true
	return []log.Event{
		{
			Timestamp: baseTime, ConnectionID: "abc12345-0000", Direction: log.DirectionOut,
			Layer: log.LayerWire, Category: log.CategoryMessage, LocalRole: log.RoleDialer,
			RemoteAddr: "10.0.0.2:9443", AgentID: "agent-1",
			Message: &log.MessageEvent{Type: wire.TypeHandshake, SenderID: "agent-1", AgentName: "edge-01"},
		},
		{
			Timestamp: baseTime.Add(time.Millisecond), ConnectionID: "abc12345-0000", Direction: log.DirectionIn,
			Layer: log.LayerTransport, Category: log.CategoryMessage, LocalRole: log.RoleDialer,
			RemoteAddr: "10.0.0.2:9443", AgentID: "agent-1", PeerID: "peer-2",
			Frame: &log.FrameEvent{Size: 64, Data: []byte{0x7b, 0x22}, Truncated: true},
		},
		{
			Timestamp: baseTime.Add(2 * time.Millisecond), ConnectionID: "abc12345-0000", Direction: log.DirectionOut,
			Layer: log.LayerWire, Category: log.CategoryMessage, LocalRole: log.RoleDialer,
			AgentID: "agent-1", PeerID: "peer-2",
			Message: &log.MessageEvent{Type: wire.TypeHeartbeat, SenderID: "agent-1"},
		},
		{
			Timestamp: baseTime.Add(3 * time.Millisecond), ConnectionID: "abc12345-0000", Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryMessage, LocalRole: log.RoleDialer,
			AgentID: "agent-1", PeerID: "peer-2",
			Message: &log.MessageEvent{Type: wire.TypeResponse, Success: &success, Text: wire.HeartbeatReceived},
		},
		{
			Timestamp: baseTime.Add(4 * time.Millisecond), Layer: log.LayerService, Category: log.CategoryState,
			LocalRole: log.RoleDialer, RemoteAddr: "10.0.0.2:9443", AgentID: "agent-1",
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityPeerLink, OldState: "CONNECTING", NewState: "CONNECTED"},
		},
		{
			Timestamp: baseTime.Add(5 * time.Second), ConnectionID: "def67890-0000", Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryError, LocalRole: log.RoleListener,
			RemoteAddr: "10.0.0.3:50000", AgentID: "agent-1",
			Error: &log.ErrorEventData{Layer: log.LayerWire, Message: "protocol error", Context: "decode"},
		},
	}
}

func writeLog(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.plog")
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}
