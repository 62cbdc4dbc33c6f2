package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/csf-agent/peerlink/pkg/log"
	"github.com/csf-agent/peerlink/pkg/metrics"
	"github.com/csf-agent/peerlink/pkg/wire"
)

// ConnectorConfig configures a Connector.
type ConnectorConfig struct {
	// Identity is announced on every session.
	Identity wire.Identity

	// Trust holds the accept and dial TLS configurations.
	Trust *TrustConfig

	// ListenAddress for inbound sessions (default ":9443").
	ListenAddress string

	// MaxFrameSize limits frames in both directions (default 1 MiB).
	MaxFrameSize uint32

	// HandshakeTimeout bounds session handshakes (default 10s, negative disables).
	HandshakeTimeout time.Duration

	// ConnectTimeout bounds outbound dials (default 30s).
	ConnectTimeout time.Duration

	// HeartbeatInterval for RunHeartbeat (default 30s).
	HeartbeatInterval time.Duration

	// HeartbeatTimeout bounds each heartbeat exchange. Zero waits indefinitely.
	HeartbeatTimeout time.Duration

	// Metrics answers inbound MetricsRequest messages (optional).
	Metrics metrics.Provider

	// OnMetrics is called for every inbound MetricsShare (optional).
	OnMetrics func(peer wire.Identity, share *wire.MetricsShare)

	// Logger for operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger for protocol event capture (optional).
	ProtocolLogger log.Logger
}

// Connector is an agent's peer-to-peer endpoint: it accepts sessions from
// other agents and dials them.
//
// The trust configuration is built once and shared by every session.
type Connector struct {
	config ConnectorConfig
	logger *slog.Logger
	server *Server
	client *Client
}

// NewConnector creates a connector.
func NewConnector(config ConnectorConfig) (*Connector, error) {
	if config.Trust == nil || config.Trust.Accept == nil || config.Trust.Dial == nil {
		return nil, fmt.Errorf("trust configuration is required")
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	server, err := NewServer(ServerConfig{
		TLSConfig:        config.Trust.Accept,
		Address:          config.ListenAddress,
		Identity:         config.Identity,
		MaxFrameSize:     config.MaxFrameSize,
		HandshakeTimeout: config.HandshakeTimeout,
		Metrics:          config.Metrics,
		Logger:           logger,
		ProtocolLogger:   config.ProtocolLogger,
		OnMetrics:        config.OnMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	client, err := NewClient(ClientConfig{
		TLSConfig:        config.Trust.Dial,
		Identity:         config.Identity,
		MaxFrameSize:     config.MaxFrameSize,
		ConnectTimeout:   config.ConnectTimeout,
		HandshakeTimeout: config.HandshakeTimeout,
		ProtocolLogger:   config.ProtocolLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Connector{
		config: config,
		logger: logger,
		server: server,
		client: client,
	}, nil
}

// Identity returns the identity this connector announces.
func (c *Connector) Identity() wire.Identity {
	return c.config.Identity
}

// Server returns the accepting side.
func (c *Connector) Server() *Server {
	return c.server
}

// StartListener binds the listen address and accepts sessions in the
// background. A bind failure is returned.
func (c *Connector) StartListener(ctx context.Context) error {
	return c.server.Start(ctx)
}

// Stop closes the listener and every inbound session.
func (c *Connector) Stop() error {
	return c.server.Stop()
}

// ConnectToPeer dials address and returns the authenticated session.
func (c *Connector) ConnectToPeer(ctx context.Context, address string) (*PeerConn, error) {
	c.logger.Info("connecting to peer", "address", address)

	pc, err := c.client.Connect(ctx, address)
	if err != nil {
		return nil, err
	}

	c.logger.Info("connected to peer", "address", address, "peer", pc.Peer().String())
	return pc, nil
}

// NewHeartbeater returns a heartbeater for pc using the connector's
// interval and timeout.
func (c *Connector) NewHeartbeater(pc *PeerConn) *Heartbeater {
	peer := pc.Peer().String()
	return NewHeartbeater(pc, HeartbeatConfig{
		Interval: c.config.HeartbeatInterval,
		Timeout:  c.config.HeartbeatTimeout,
		OnHeartbeat: func(rtt time.Duration) {
			c.logger.Debug("heartbeat acknowledged", "peer", peer, "rtt", rtt)
		},
		OnFailure: func(err error) {
			c.logger.Warn("heartbeat failed", "peer", peer, "error", err)
		},
	})
}

// StartHeartbeat starts heartbeating pc in the background. The returned
// heartbeater reports the first failure on Done and Err.
func (c *Connector) StartHeartbeat(ctx context.Context, pc *PeerConn) *Heartbeater {
	hb := c.NewHeartbeater(pc)
	hb.Start(ctx)
	return hb
}

// RunHeartbeat heartbeats pc until the first failure or until ctx is done,
// and returns the reason.
func (c *Connector) RunHeartbeat(ctx context.Context, pc *PeerConn) error {
	return c.NewHeartbeater(pc).Run(ctx)
}
