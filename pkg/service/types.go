package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/csf-agent/peerlink/pkg/connection"
	"github.com/csf-agent/peerlink/pkg/log"
	"github.com/csf-agent/peerlink/pkg/metrics"
	"github.com/csf-agent/peerlink/pkg/wire"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrUnknownPeer    = errors.New("unknown peer")
	ErrNotConnected   = errors.New("peer not connected")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateStarting - service is starting up.
	StateStarting

	// StateRunning - service is running normally.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// PeerStatus describes one configured peer.
type PeerStatus struct {
	// Address is the configured host:port.
	Address string

	// Link is the supervisor snapshot.
	Link connection.Status

	// Peer is the identity learned in the last handshake.
	Peer wire.Identity
}

// ReceivedMetrics is the latest MetricsShare from an inbound peer.
type ReceivedMetrics struct {
	Peer       wire.Identity
	Metrics    json.RawMessage
	ReceivedAt time.Time
}

// Option customizes an AgentService.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	protocolLogger log.Logger
	metrics        metrics.Provider
	onPeerState    func(address string, oldState, newState connection.State)
	onMetrics      func(peer wire.Identity, share *wire.MetricsShare)
	backoff        connection.BackoffConfig
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProtocolLogger adds a protocol event sink alongside the configured
// protocol log file.
func WithProtocolLogger(logger log.Logger) Option {
	return func(o *options) { o.protocolLogger = logger }
}

// WithMetricsProvider overrides the configured metrics source.
func WithMetricsProvider(p metrics.Provider) Option {
	return func(o *options) { o.metrics = p }
}

// WithPeerStateHandler is called on every peer link state change.
func WithPeerStateHandler(fn func(address string, oldState, newState connection.State)) Option {
	return func(o *options) { o.onPeerState = fn }
}

// WithMetricsHandler is called for every MetricsShare received.
func WithMetricsHandler(fn func(peer wire.Identity, share *wire.MetricsShare)) Option {
	return func(o *options) { o.onMetrics = fn }
}

// WithBackoff overrides the reconnect backoff.
func WithBackoff(cfg connection.BackoffConfig) Option {
	return func(o *options) { o.backoff = cfg }
}
