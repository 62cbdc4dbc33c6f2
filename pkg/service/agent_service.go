package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/csf-agent/peerlink/pkg/cert"
	"github.com/csf-agent/peerlink/pkg/config"
	"github.com/csf-agent/peerlink/pkg/connection"
	"github.com/csf-agent/peerlink/pkg/log"
	"github.com/csf-agent/peerlink/pkg/metrics"
	"github.com/csf-agent/peerlink/pkg/persistence"
	"github.com/csf-agent/peerlink/pkg/transport"
	"github.com/csf-agent/peerlink/pkg/wire"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// AgentService runs one agent: the listener plus a supervised link to every
// configured peer.
type AgentService struct {
	mu sync.RWMutex

	config config.Config
	opts   options
	logger *slog.Logger
	state  ServiceState

	identity  wire.Identity
	connector *transport.Connector
	provider  metrics.Provider
	protocol  log.Logger
	fileLog   *log.FileLogger

	// Outbound links in configuration order
	links []*peerLink

	// Latest MetricsShare per inbound peer
	received map[uuid.UUID]ReceivedMetrics

	cancel context.CancelFunc
	group  *errgroup.Group
}

// peerLink is the supervised link to one configured peer.
type peerLink struct {
	address    string
	supervisor *connection.Supervisor

	mu   sync.Mutex
	conn *transport.PeerConn
	peer wire.Identity
}

func (l *peerLink) setConn(pc *transport.PeerConn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = pc
	if pc != nil {
		l.peer = pc.Peer()
	}
}

func (l *peerLink) current() (*transport.PeerConn, wire.Identity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn, l.peer
}

// NewAgentService creates an agent service. cfg is expected to be
// validated already (config.Load does so).
func NewAgentService(cfg config.Config, opts ...Option) *AgentService {
	o := options{backoff: connection.DefaultBackoffConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &AgentService{
		config:   cfg,
		opts:     o,
		logger:   logger,
		state:    StateIdle,
		received: make(map[uuid.UUID]ReceivedMetrics),
	}
}

// Start bootstraps certificates, starts the listener and launches one
// supervisor per configured peer. It returns once the listener is bound.
func (s *AgentService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := s.start(ctx); err != nil {
		s.closeProtocolLog()
		s.setState(StateIdle)
		return err
	}

	s.setState(StateRunning)
	s.logger.Info("agent started",
		"agent", s.identity.String(),
		"listen", s.connector.Server().Addr().String(),
		"peers", len(s.links))
	return nil
}

func (s *AgentService) start(ctx context.Context) error {
	frameLimit, err := s.config.FrameLimit()
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	identity, err := s.loadIdentity()
	if err != nil {
		return err
	}

	paths := s.config.CertPaths()
	err = cert.EnsureCertificates(s.config.Agent.Name, paths, s.config.Certs.AutoGenerate,
		cert.WithExtraSANs(s.config.Certs.ExtraSANs...),
		cert.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("certificates: %w", err)
	}

	trust, err := transport.LoadTrustConfig(paths)
	if err != nil {
		return fmt.Errorf("trust configuration: %w", err)
	}

	protocol, err := s.openProtocolLog()
	if err != nil {
		return err
	}

	provider := s.metricsProvider(identity)
	heartbeat := s.config.P2P.HeartbeatInterval.Std()

	connector, err := transport.NewConnector(transport.ConnectorConfig{
		Identity:          identity,
		Trust:             trust,
		ListenAddress:     s.config.ListenAddress(),
		MaxFrameSize:      frameLimit,
		HandshakeTimeout:  s.config.HandshakeTimeout(),
		ConnectTimeout:    s.config.P2P.ConnectTimeout.Std(),
		HeartbeatInterval: heartbeat,
		HeartbeatTimeout:  heartbeat,
		Metrics:           provider,
		OnMetrics:         s.handleMetrics,
		Logger:            s.logger,
		ProtocolLogger:    protocol,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := connector.StartListener(runCtx); err != nil {
		cancel()
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddress(), err)
	}

	s.mu.Lock()
	s.identity = identity
	s.connector = connector
	s.provider = provider
	s.protocol = protocol
	s.cancel = cancel
	s.links = s.newLinks(identity)
	links := s.links
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)
	for _, link := range links {
		g.Go(func() error {
			if err := link.supervisor.Run(gctx); err != nil && gctx.Err() == nil {
				s.logger.Warn("peer link stopped", "peer", link.address, "error", err)
			}
			return nil
		})
	}
	s.group = g
	return nil
}

// Stop cancels every peer link, closes the listener and its sessions, and
// waits for the supervisors to exit.
func (s *AgentService) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	cancel := s.cancel
	connector := s.connector
	group := s.group
	s.mu.Unlock()

	cancel()
	err := connector.Stop()
	group.Wait()
	s.closeProtocolLog()

	s.setState(StateStopped)
	s.logger.Info("agent stopped")
	return err
}

func (s *AgentService) setState(state ServiceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *AgentService) loadIdentity() (wire.Identity, error) {
	name := s.config.Agent.Name
	path := s.config.Agent.IdentityFile
	if path == "" {
		return wire.Identity{AgentID: uuid.New(), AgentName: name}, nil
	}

	id, err := persistence.NewIdentityStore(path).LoadOrCreate(name)
	if err != nil {
		return wire.Identity{}, fmt.Errorf("identity: %w", err)
	}
	return id.Identity(), nil
}

func (s *AgentService) openProtocolLog() (log.Logger, error) {
	sinks := []log.Logger{s.opts.protocolLogger}
	if path := s.config.Log.ProtocolLog; path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, fmt.Errorf("protocol log: %w", err)
		}
		s.mu.Lock()
		s.fileLog = fl
		s.mu.Unlock()
		sinks = append(sinks, fl)
	}

	return log.Combine(sinks...), nil
}

func (s *AgentService) closeProtocolLog() {
	s.mu.Lock()
	fl := s.fileLog
	s.fileLog = nil
	s.mu.Unlock()

	if fl != nil {
		if n := fl.Dropped(); n > 0 {
			s.logger.Warn("protocol log dropped events", "path", fl.Path(), "dropped", n)
		}
		if err := fl.Close(); err != nil {
			s.logger.Warn("close protocol log", "error", err)
		}
	}
}

func (s *AgentService) metricsProvider(identity wire.Identity) metrics.Provider {
	if s.opts.metrics != nil {
		return s.opts.metrics
	}
	if s.config.Metrics.Source == config.MetricsSourceStatic {
		return metrics.NewStaticProvider(nil)
	}
	return metrics.NewSystemProvider(identity.AgentID)
}

func (s *AgentService) handleMetrics(peer wire.Identity, share *wire.MetricsShare) {
	s.mu.Lock()
	s.received[peer.AgentID] = ReceivedMetrics{
		Peer:       peer,
		Metrics:    share.Metrics,
		ReceivedAt: time.Now(),
	}
	s.mu.Unlock()

	if s.opts.onMetrics != nil {
		s.opts.onMetrics(peer, share)
	}
}

func (s *AgentService) newLinks(identity wire.Identity) []*peerLink {
	seen := make(map[string]bool)
	var links []*peerLink

	for _, address := range s.config.P2P.Peers {
		if seen[address] {
			continue
		}
		seen[address] = true

		link := &peerLink{address: address}
		link.supervisor = connection.NewSupervisor(connection.SupervisorConfig{
			Name:           address,
			Link:           func(ctx context.Context, connected func()) error { return s.runLink(ctx, link, connected) },
			Reconnect:      s.config.P2P.Reconnect,
			Backoff:        s.opts.backoff,
			AgentID:        identity.AgentID.String(),
			Logger:         s.logger,
			ProtocolLogger: s.protocol,
			OnStateChange: func(oldState, newState connection.State) {
				if s.opts.onPeerState != nil {
					s.opts.onPeerState(address, oldState, newState)
				}
			},
		})
		links = append(links, link)
	}
	return links
}

// runLink dials the peer, optionally shares metrics, and heartbeats until
// the first failure.
func (s *AgentService) runLink(ctx context.Context, link *peerLink, connected func()) error {
	pc, err := s.connector.ConnectToPeer(ctx, link.address)
	if err != nil {
		return err
	}
	defer pc.Close()

	link.setConn(pc)
	defer link.setConn(nil)
	connected()

	linkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if interval := s.config.P2P.MetricsShareInterval.Std(); interval > 0 {
		go s.shareMetrics(linkCtx, pc, interval)
	}

	return s.connector.RunHeartbeat(linkCtx, pc)
}

// shareMetrics pushes a snapshot on connect and then every interval. A
// failed push closes the session so the heartbeat loop ends the link.
func (s *AgentService) shareMetrics(ctx context.Context, pc *transport.PeerConn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		data, err := s.provider.Snapshot(ctx)
		if err != nil {
			s.logger.Warn("metrics snapshot failed", "error", err)
		} else if err := pc.ShareMetrics(ctx, data); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("metrics share failed", "peer", pc.Address(), "error", err)
				pc.Close()
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// State returns the current service state.
func (s *AgentService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identity returns the identity announced to peers. Valid after Start.
func (s *AgentService) Identity() wire.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// ListenAddr returns the bound listener address, or nil before Start.
func (s *AgentService) ListenAddr() net.Addr {
	s.mu.RLock()
	connector := s.connector
	s.mu.RUnlock()
	if connector == nil {
		return nil
	}
	return connector.Server().Addr()
}

// InboundSessions returns the number of live accepted sessions.
func (s *AgentService) InboundSessions() int {
	s.mu.RLock()
	connector := s.connector
	s.mu.RUnlock()
	if connector == nil {
		return 0
	}
	return connector.Server().ConnectionCount()
}

// Peers returns the status of every configured peer.
func (s *AgentService) Peers() []PeerStatus {
	s.mu.RLock()
	links := s.links
	s.mu.RUnlock()

	out := make([]PeerStatus, 0, len(links))
	for _, link := range links {
		_, peer := link.current()
		out = append(out, PeerStatus{
			Address: link.address,
			Link:    link.supervisor.Status(),
			Peer:    peer,
		})
	}
	return out
}

// PeerStatus returns the status of one configured peer.
func (s *AgentService) PeerStatus(address string) (PeerStatus, error) {
	for _, p := range s.Peers() {
		if p.Address == address {
			return p, nil
		}
	}
	return PeerStatus{}, fmt.Errorf("%w: %s", ErrUnknownPeer, address)
}

// RequestPeerMetrics asks a connected peer for its metrics over the
// supervised link.
func (s *AgentService) RequestPeerMetrics(ctx context.Context, address string) (json.RawMessage, error) {
	if s.State() != StateRunning {
		return nil, ErrNotStarted
	}

	s.mu.RLock()
	links := s.links
	s.mu.RUnlock()

	for _, link := range links {
		if link.address != address {
			continue
		}
		pc, _ := link.current()
		if pc == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotConnected, address)
		}
		return pc.RequestMetrics(ctx)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, address)
}

// ReceivedMetrics returns the latest metrics pushed by each inbound peer.
func (s *AgentService) ReceivedMetrics() []ReceivedMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ReceivedMetrics, 0, len(s.received))
	for _, m := range s.received {
		out = append(out, m)
	}
	return out
}
