package transport

import (
	"context"
	"encoding/json"
	"net"

	"github.com/csf-agent/peerlink/pkg/wire"
)

// HeartbeatTarget receives heartbeats from a Heartbeater.
// Implemented by PeerConn.
type HeartbeatTarget interface {
	// SendHeartbeat sends one heartbeat and waits for the acknowledgement.
	SendHeartbeat(ctx context.Context) error
}

// PeerLink is an authenticated outbound session to another agent.
// Implemented by PeerConn.
type PeerLink interface {
	HeartbeatTarget

	// Peer returns the identity the peer announced.
	Peer() wire.Identity

	// RequestMetrics asks the peer for its metrics.
	RequestMetrics(ctx context.Context) (json.RawMessage, error)

	// ShareMetrics pushes our metrics to the peer.
	ShareMetrics(ctx context.Context, metrics json.RawMessage) error

	// Close closes the session.
	Close() error
}

// TransportServer accepts peer sessions.
// Implemented by Server.
type TransportServer interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop gracefully stops the server.
	Stop() error

	// Addr returns the server's listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of active connections.
	ConnectionCount() int
}

// MessageReadWriter reads and writes whole messages.
// Implemented by MessageConn.
type MessageReadWriter interface {
	// ReadMessage reads one message.
	ReadMessage() (wire.Message, error)

	// WriteMessage writes one message.
	WriteMessage(msg wire.Message) error
}

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	// ReadFrame reads a length-prefixed frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes a length-prefixed frame.
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ HeartbeatTarget   = (*PeerConn)(nil)
	_ PeerLink          = (*PeerConn)(nil)
	_ TransportServer   = (*Server)(nil)
	_ MessageReadWriter = (*MessageConn)(nil)
	_ FrameReadWriter   = (*Framer)(nil)
)
