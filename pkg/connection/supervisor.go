package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/csf-agent/peerlink/pkg/log"
)

// DefaultStableAfter is how long a link must stay up before a later
// failure starts again from the initial backoff.
const DefaultStableAfter = 60 * time.Second

// ErrAlreadyRunning indicates Run was called on a running supervisor.
var ErrAlreadyRunning = errors.New("supervisor already running")

// State represents the state of a supervised link.
type State uint8

const (
	// StateDisconnected indicates no active link.
	StateDisconnected State = iota

	// StateConnecting indicates a link attempt is in progress.
	StateConnecting

	// StateConnected indicates the link is up.
	StateConnected

	// StateReconnecting indicates the supervisor is waiting out a backoff delay.
	StateReconnecting

	// StateClosed indicates the supervisor has stopped.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// LinkFunc establishes a link and keeps it up until it fails.
//
// It calls connected once the link is established and returns when the link
// ends. An error returned before connected is a failed attempt.
type LinkFunc func(ctx context.Context, connected func()) error

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// Name identifies the link in logs and status (typically the peer address).
	Name string

	// Link runs one link attempt.
	Link LinkFunc

	// Reconnect restarts the link after it ends. When false, Run makes one
	// attempt and returns its result.
	Reconnect bool

	// Backoff configures delays between attempts.
	Backoff BackoffConfig

	// StableAfter is the uptime after which the backoff is reset
	// (default 60s).
	StableAfter time.Duration

	// AgentID is the local agent, recorded on protocol log events.
	AgentID string

	// Logger for operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger receives PEER_LINK state change events (optional).
	ProtocolLogger log.Logger

	// OnStateChange is called on every state transition.
	OnStateChange func(oldState, newState State)
}

// Status is a snapshot of a supervisor.
type Status struct {
	Name           string
	State          State
	Attempts       int
	LastError      error
	ConnectedSince time.Time
}

// Supervisor keeps one link alive, redialing with exponential backoff.
type Supervisor struct {
	config  SupervisorConfig
	logger  *slog.Logger
	backoff *Backoff

	mu             sync.RWMutex
	state          State
	running        bool
	attempts       int
	lastErr        error
	connectedSince time.Time
}

// NewSupervisor creates a supervisor. It does nothing until Run is called.
func NewSupervisor(config SupervisorConfig) *Supervisor {
	if config.StableAfter <= 0 {
		config.StableAfter = DefaultStableAfter
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{
		config:  config,
		logger:  logger.With("peer", config.Name),
		backoff: NewBackoffWithConfig(config.Backoff),
		state:   StateDisconnected,
	}
}

// Run supervises the link until ctx is done. Without Reconnect it returns
// after the first attempt ends, with that attempt's error.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.setState(StateClosed)
	}()

	for {
		s.setState(StateConnecting)
		uptime, err := s.attempt(ctx)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = errLinkEnded
		}
		s.recordError(err)
		s.setState(StateDisconnected)

		if !s.config.Reconnect {
			s.logger.Warn("peer link ended", "error", err)
			return err
		}

		if uptime >= s.config.StableAfter {
			s.backoff.Reset()
		}

		s.setState(StateReconnecting)
		delay := s.backoff.Next()
		s.logger.Warn("peer link ended, reconnecting", "error", err, "attempt", s.backoff.Attempts(), "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// errLinkEnded stands in for a link that returned without an error.
var errLinkEnded = errors.New("link ended")

// attempt runs the link once and reports how long it stayed connected.
func (s *Supervisor) attempt(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()

	var connectedAt time.Time
	err := s.config.Link(ctx, func() {
		connectedAt = time.Now()
		s.mu.Lock()
		s.connectedSince = connectedAt
		s.mu.Unlock()
		s.setState(StateConnected)
	})

	s.mu.Lock()
	s.connectedSince = time.Time{}
	s.mu.Unlock()

	if connectedAt.IsZero() {
		return 0, err
	}
	return time.Since(connectedAt), err
}

func (s *Supervisor) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	old := s.state
	s.state = state
	s.mu.Unlock()

	if old == state {
		return
	}
	s.logger.Debug("peer link state", "from", old.String(), "to", state.String())
	if s.config.ProtocolLogger != nil {
		s.config.ProtocolLogger.Log(log.Event{
			Timestamp:  time.Now(),
			Layer:      log.LayerService,
			Category:   log.CategoryState,
			LocalRole:  log.RoleDialer,
			RemoteAddr: s.config.Name,
			AgentID:    s.config.AgentID,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityPeerLink,
				OldState: old.String(),
				NewState: state.String(),
				Reason:   s.reason(),
			},
		})
	}
	if s.config.OnStateChange != nil {
		s.config.OnStateChange(old, state)
	}
}

func (s *Supervisor) reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastErr == nil || s.state == StateConnected {
		return ""
	}
	return s.lastErr.Error()
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Name:           s.config.Name,
		State:          s.state,
		Attempts:       s.attempts,
		LastError:      s.lastErr,
		ConnectedSince: s.connectedSince,
	}
}

// BackoffAttempts returns the number of delays since the last reset.
func (s *Supervisor) BackoffAttempts() int {
	return s.backoff.Attempts()
}
