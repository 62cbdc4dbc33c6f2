package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/csf-agent/peerlink/pkg/log"
	"github.com/csf-agent/peerlink/pkg/metrics"
	"github.com/csf-agent/peerlink/pkg/wire"
)

// ServerConfig configures the accepting side of the connector.
type ServerConfig struct {
	// TLSConfig is the accept configuration (see TrustConfig.Accept).
	TLSConfig *tls.Config

	// Address to listen on (default ":9443").
	Address string

	// Identity is announced to every peer.
	Identity wire.Identity

	// MaxFrameSize limits inbound and outbound frames (default 1 MiB).
	MaxFrameSize uint32

	// HandshakeTimeout bounds the TLS and identity handshakes
	// (default 10s, negative disables).
	HandshakeTimeout time.Duration

	// Metrics answers MetricsRequest. When nil the placeholder document is sent.
	Metrics metrics.Provider

	// Logger for operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger for protocol event capture (optional).
	ProtocolLogger log.Logger

	// OnSession is called when a session completes its handshake.
	OnSession func(s *Session)

	// OnSessionClosed is called when an established session ends. err is nil
	// when the peer closed the stream cleanly.
	OnSessionClosed func(s *Session, err error)

	// OnMetrics is called for every MetricsShare received.
	OnMetrics func(peer wire.Identity, share *wire.MetricsShare)
}

// Server accepts sessions from peer agents and answers their messages.
type Server struct {
	config   ServerConfig
	logger   *slog.Logger
	listener net.Listener

	// Live sessions, tracked so Stop can close them.
	sessions   map[*Session]struct{}
	sessionsMu sync.Mutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. The TLS config must require client certificates.
func NewServer(config ServerConfig) (*Server, error) {
	if config.TLSConfig == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if config.TLSConfig.ClientAuth != tls.RequireAndVerifyClientCert {
		return nil, fmt.Errorf("TLSConfig must require and verify client certificates")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Server{
		config:   config,
		logger:   logger,
		sessions: make(map[*Session]struct{}),
	}, nil
}

// Start binds the listen address and begins accepting in the background.
// A bind failure is returned. Cancelling ctx stops the server.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.logger.Info("peer listener started", "address", listener.Addr().String(), "agent", s.config.Identity.String())

	s.wg.Add(1)
	go s.acceptLoop()

	context.AfterFunc(s.ctx, func() { s.Stop() })

	return nil
}

// Stop closes the listener and every live session, then waits for their
// goroutines to finish. It is safe to call more than once.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	err := s.listener.Close()

	s.sessionsMu.Lock()
	for sess := range s.sessions {
		sess.Close()
	}
	s.sessionsMu.Unlock()

	s.wg.Wait()
	s.logger.Info("peer listener stopped", "address", s.listener.Addr().String())

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of live sessions.
func (s *Server) ConnectionCount() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

// acceptLoop accepts incoming connections until the listener is closed.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			select {
			case <-time.After(50 * time.Millisecond):
			case <-s.ctx.Done():
				return
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs one session from TLS handshake to close. Failures
// end only this session.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()

	hctx, cancel := s.handshakeContext()
	defer cancel()

	tlsConn := tls.Server(conn, s.config.TLSConfig)
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		conn.Close()
		s.logger.Warn("TLS handshake failed", "remote", remote, "error", err)
		return
	}
	if err := VerifyPeerCertificate(tlsConn.ConnectionState()); err != nil {
		tlsConn.Close()
		s.logger.Warn("peer rejected", "remote", remote, "error", err)
		return
	}

	sess := NewSession(tlsConn, SessionConfig{
		Local:          s.config.Identity,
		Role:           RoleListener,
		MaxFrameSize:   s.config.MaxFrameSize,
		ProtocolLogger: s.config.ProtocolLogger,
	})

	if !s.register(sess) {
		sess.Close()
		return
	}
	defer s.unregister(sess)

	if err := sess.HandshakeAsListener(hctx); err != nil {
		s.logger.Warn("session handshake failed", "remote", remote, "connID", sess.ConnID(), "error", err)
		return
	}
	cancel()

	peer, _ := sess.Peer()
	s.logger.Info("peer connected", "peer", peer.String(), "remote", remote, "connID", sess.ConnID())

	if s.config.OnSession != nil {
		s.config.OnSession(sess)
	}

	err := s.serve(sess)
	sess.Close()

	switch {
	case err == nil:
		s.logger.Info("peer disconnected", "peer", peer.String(), "remote", remote)
	case isClosedError(err):
		s.logger.Info("peer connection closed", "peer", peer.String(), "remote", remote, "error", err)
	default:
		s.logger.Warn("peer session ended", "peer", peer.String(), "remote", remote, "error", err)
	}

	if s.config.OnSessionClosed != nil {
		s.config.OnSessionClosed(sess, err)
	}
}

func (s *Server) handshakeContext() (context.Context, context.CancelFunc) {
	if s.config.HandshakeTimeout < 0 {
		return context.WithCancel(s.ctx)
	}
	return context.WithTimeout(s.ctx, s.config.HandshakeTimeout)
}

func (s *Server) register(sess *Session) bool {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) unregister(sess *Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess)
	s.sessionsMu.Unlock()
}

// serve reads and dispatches messages until the stream ends. A clean close
// by the peer returns nil.
func (s *Server) serve(sess *Session) error {
	for {
		msg, err := sess.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := s.dispatch(sess, msg); err != nil {
			return err
		}
	}
}

// dispatch handles one message from an established session.
func (s *Server) dispatch(sess *Session, msg wire.Message) error {
	peer, _ := sess.Peer()

	switch m := msg.(type) {
	case *wire.Heartbeat:
		s.logger.Debug("heartbeat received", "peer", peer.String(), "sent", m.Timestamp)
		return sess.Send(wire.NewResponse(true, wire.HeartbeatReceived))

	case *wire.MetricsRequest:
		s.logger.Debug("metrics requested", "peer", peer.String())
		err := sess.Send(s.metricsResponse())
		if errors.Is(err, ErrMessageTooLarge) {
			s.logger.Warn("metrics exceed frame limit", "peer", peer.String(), "error", err)
			return sess.Send(wire.NewResponse(false, wire.MetricsTooLarge))
		}
		return err

	case *wire.MetricsShare:
		s.logger.Info("metrics received", "peer", peer.String(), "size", len(m.Metrics))
		if s.config.OnMetrics != nil {
			s.config.OnMetrics(peer, m)
		}
		return nil

	default:
		s.logger.Warn("unhandled message", "peer", peer.String(), "type", msg.Type().String())
		return nil
	}
}

func (s *Server) metricsResponse() *wire.Response {
	if s.config.Metrics == nil {
		return wire.NewDataResponse(wire.MetricsData, metrics.Placeholder)
	}
	data, err := s.config.Metrics.Snapshot(s.ctx)
	if err != nil {
		s.logger.Warn("metrics snapshot failed", "error", err)
		return wire.NewResponse(false, err.Error())
	}
	return wire.NewDataResponse(wire.MetricsData, data)
}
