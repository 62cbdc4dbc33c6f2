package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/csf-agent/peerlink/pkg/log"
	"github.com/csf-agent/peerlink/pkg/wire"
)

// DefaultConnectTimeout bounds TCP dial plus TLS handshake.
const DefaultConnectTimeout = 30 * time.Second

// Request errors.
var (
	// ErrHeartbeatRejected indicates the peer answered a heartbeat with
	// success set to false.
	ErrHeartbeatRejected = errors.New("heartbeat rejected")

	// ErrRequestRejected indicates the peer answered a request with
	// success set to false.
	ErrRequestRejected = errors.New("request rejected")
)

// ClientConfig configures the dialing side of the connector.
type ClientConfig struct {
	// TLSConfig is the dial configuration (see TrustConfig.Dial). It is
	// never modified; the server name is set on a per-dial copy.
	TLSConfig *tls.Config

	// Identity is announced to every peer.
	Identity wire.Identity

	// MaxFrameSize limits inbound and outbound frames (default 1 MiB).
	MaxFrameSize uint32

	// ConnectTimeout is the connection timeout (default: 30s).
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds the identity handshake
	// (default 10s, negative disables).
	HandshakeTimeout time.Duration

	// ProtocolLogger for protocol event capture (optional).
	ProtocolLogger log.Logger
}

// Client dials peer agents.
type Client struct {
	config ClientConfig
}

// NewClient creates a client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.TLSConfig == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Client{config: config}, nil
}

// Connect dials address, completes the TLS handshake with the server name
// taken from address, then runs the dialer side of the identity handshake.
func (c *Client) Connect(ctx context.Context, address string) (*PeerConn, error) {
	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    c.config.TLSConfig,
	}
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	sess := NewSession(conn, SessionConfig{
		Local:          c.config.Identity,
		Role:           RoleDialer,
		MaxFrameSize:   c.config.MaxFrameSize,
		ProtocolLogger: c.config.ProtocolLogger,
	})

	hctx := ctx
	if c.config.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, c.config.HandshakeTimeout)
		defer cancel()
	}
	if err := sess.HandshakeAsDialer(hctx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}

	return &PeerConn{session: sess, address: address}, nil
}

// PeerConn is an established outbound session.
//
// Request/response exchanges are serialized, so SendHeartbeat and
// RequestMetrics may be called from different goroutines.
type PeerConn struct {
	session *Session
	address string

	mu sync.Mutex
}

// Session returns the underlying session.
func (p *PeerConn) Session() *Session {
	return p.session
}

// Address returns the address that was dialed.
func (p *PeerConn) Address() string {
	return p.address
}

// Peer returns the identity the peer announced.
func (p *PeerConn) Peer() wire.Identity {
	id, _ := p.session.Peer()
	return id
}

// RemoteAddr returns the peer's network address.
func (p *PeerConn) RemoteAddr() net.Addr {
	return p.session.RemoteAddr()
}

// SendHeartbeat sends one heartbeat and waits for its Response.
//
// A Response with success false returns an error wrapping
// ErrHeartbeatRejected with the peer's message. There is no retry.
func (p *PeerConn) SendHeartbeat(ctx context.Context) error {
	resp, err := p.roundTrip(ctx, wire.NewHeartbeat(p.session.Local().AgentID))
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrHeartbeatRejected, resp.Message)
	}
	return nil
}

// RequestMetrics asks the peer for its metrics. A successful Response
// without data yields an empty JSON object.
func (p *PeerConn) RequestMetrics(ctx context.Context) (json.RawMessage, error) {
	resp, err := p.roundTrip(ctx, wire.NewMetricsRequest(p.session.Local().AgentID))
	if err != nil {
		return nil, fmt.Errorf("metrics request: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrRequestRejected, resp.Message)
	}
	if len(resp.Data) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return resp.Data, nil
}

// ShareMetrics pushes a metrics document to the peer. No reply is expected.
func (p *PeerConn) ShareMetrics(ctx context.Context, metrics json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := wire.NewMetricsShare(p.session.Local().AgentID, metrics)
	return p.session.withContext(ctx, func() error {
		return p.session.Send(msg)
	})
}

// Close closes the session.
func (p *PeerConn) Close() error {
	return p.session.Close()
}

// roundTrip sends req and reads the next message, which must be a Response.
func (p *PeerConn) roundTrip(ctx context.Context, req wire.Message) (*wire.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var reply wire.Message
	err := p.session.withContext(ctx, func() error {
		if err := p.session.Send(req); err != nil {
			return err
		}
		var err error
		reply, err = p.session.Receive()
		return err
	})
	if err != nil {
		return nil, err
	}

	resp, ok := reply.(*wire.Response)
	if !ok {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedMessage, wire.TypeResponse, reply.Type())
	}
	return resp, nil
}
