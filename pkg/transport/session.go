package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/csf-agent/peerlink/pkg/log"
	"github.com/csf-agent/peerlink/pkg/wire"
	"github.com/google/uuid"
)

// DefaultHandshakeTimeout bounds the TLS and identity handshakes of a session.
const DefaultHandshakeTimeout = 10 * time.Second

// Session errors.
var (
	// ErrUnexpectedMessage indicates a message of the wrong type for the
	// current step of the protocol.
	ErrUnexpectedMessage = errors.New("unexpected message")

	// ErrHandshakeRequired indicates traffic on a session whose identity
	// handshake has not completed.
	ErrHandshakeRequired = errors.New("handshake not completed")

	// ErrSessionClosed indicates use of a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// SessionState is the lifecycle state of a session.
type SessionState uint8

const (
	// StateAwaitHandshake is the initial state; only a Handshake may be exchanged.
	StateAwaitHandshake SessionState = iota

	// StateEstablished means both identities are known and any message may flow.
	StateEstablished

	// StateClosed is terminal.
	StateClosed
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateAwaitHandshake:
		return "AWAIT_HANDSHAKE"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Role says which side of a session the local agent plays.
type Role uint8

const (
	// RoleListener accepted the session. It sends its handshake first.
	RoleListener Role = iota

	// RoleDialer opened the session. It reads the peer's handshake first.
	RoleDialer
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleListener:
		return "listener"
	case RoleDialer:
		return "dialer"
	default:
		return "unknown"
	}
}

func (r Role) logRole() log.Role {
	if r == RoleDialer {
		return log.RoleDialer
	}
	return log.RoleListener
}

// SessionConfig configures a session.
type SessionConfig struct {
	// Local is the identity announced in our handshake.
	Local wire.Identity

	// Role selects the handshake order.
	Role Role

	// MaxFrameSize limits inbound and outbound frames (default 1 MiB).
	MaxFrameSize uint32

	// ProtocolLogger receives protocol events (optional).
	ProtocolLogger log.Logger
}

// Session is one authenticated stream between two agents.
//
// Reads must be issued from one goroutine at a time. Writes are safe for
// concurrent use.
type Session struct {
	conn   net.Conn
	mc     *MessageConn
	local  wire.Identity
	role   Role
	connID string
	logger log.Logger

	mu    sync.RWMutex
	state SessionState
	peer  wire.Identity

	closeOnce sync.Once
}

// NewSession wraps an established (TLS) connection. The session starts in
// StateAwaitHandshake.
func NewSession(conn net.Conn, config SessionConfig) *Session {
	s := &Session{
		conn:   conn,
		mc:     NewMessageConn(conn, config.MaxFrameSize),
		local:  config.Local,
		role:   config.Role,
		connID: uuid.New().String(),
		logger: config.ProtocolLogger,
		state:  StateAwaitHandshake,
	}
	if s.logger != nil {
		s.mc.SetLogger(s.logger, log.Event{
			ConnectionID: s.connID,
			LocalRole:    s.role.logRole(),
			RemoteAddr:   addrString(conn.RemoteAddr()),
			AgentID:      s.local.AgentID.String(),
		})
	}
	return s
}

// ConnID returns the unique connection identifier.
func (s *Session) ConnID() string {
	return s.connID
}

// Role returns the local role.
func (s *Session) Role() Role {
	return s.role
}

// Local returns the identity announced by this side.
func (s *Session) Local() wire.Identity {
	return s.local
}

// RemoteAddr returns the peer's network address.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Peer returns the identity the peer announced. ok is false until the
// handshake has completed.
func (s *Session) Peer() (id wire.Identity, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer, s.state == StateEstablished
}

// Handshake runs the identity exchange for the session's role.
func (s *Session) Handshake(ctx context.Context) error {
	if s.role == RoleDialer {
		return s.HandshakeAsDialer(ctx)
	}
	return s.HandshakeAsListener(ctx)
}

// HandshakeAsListener sends our handshake, then reads exactly one message
// which must be the peer's handshake. Any failure closes the session.
func (s *Session) HandshakeAsListener(ctx context.Context) error {
	return s.handshake(ctx, func() (wire.Identity, error) {
		if err := s.sendHandshake(); err != nil {
			return wire.Identity{}, err
		}
		return s.receiveHandshake()
	})
}

// HandshakeAsDialer reads the peer's handshake, then sends ours. Any failure
// closes the session.
func (s *Session) HandshakeAsDialer(ctx context.Context) error {
	return s.handshake(ctx, func() (wire.Identity, error) {
		peer, err := s.receiveHandshake()
		if err != nil {
			return wire.Identity{}, err
		}
		return peer, s.sendHandshake()
	})
}

func (s *Session) handshake(ctx context.Context, exchange func() (wire.Identity, error)) error {
	if state := s.State(); state != StateAwaitHandshake {
		return fmt.Errorf("handshake in state %s: %w", state, ErrUnexpectedMessage)
	}

	var peer wire.Identity
	err := s.withContext(ctx, func() error {
		var err error
		peer, err = exchange()
		return err
	})
	if err != nil {
		s.closeWithReason("handshake failed: " + err.Error())
		return fmt.Errorf("handshake failed: %w", err)
	}

	s.mu.Lock()
	if s.state != StateAwaitHandshake {
		s.mu.Unlock()
		return fmt.Errorf("handshake failed: %w", ErrSessionClosed)
	}
	s.peer = peer
	s.state = StateEstablished
	s.mu.Unlock()

	s.mc.setPeerID(peer.AgentID.String())
	s.logState(StateAwaitHandshake, StateEstablished, "peer "+peer.String())
	return nil
}

func (s *Session) sendHandshake() error {
	return s.mc.WriteMessage(wire.NewHandshake(s.local))
}

func (s *Session) receiveHandshake() (wire.Identity, error) {
	msg, err := s.mc.ReadMessage()
	if err != nil {
		return wire.Identity{}, err
	}
	hs, ok := msg.(*wire.Handshake)
	if !ok {
		return wire.Identity{}, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedMessage, wire.TypeHandshake, msg.Type())
	}
	return hs.Identity(), nil
}

// Send writes one message. Refused until the handshake has completed.
func (s *Session) Send(msg wire.Message) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.mc.WriteMessage(msg)
}

// Receive reads one message. Refused until the handshake has completed.
// It blocks without a deadline; closing the session unblocks it.
func (s *Session) Receive() (wire.Message, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.mc.ReadMessage()
}

func (s *Session) ready() error {
	switch s.State() {
	case StateEstablished:
		return nil
	case StateClosed:
		return ErrSessionClosed
	default:
		return ErrHandshakeRequired
	}
}

// Close closes the session and its connection.
func (s *Session) Close() error {
	return s.closeWithReason("")
}

func (s *Session) closeWithReason(reason string) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		old := s.state
		s.state = StateClosed
		s.mu.Unlock()

		err = s.conn.Close()
		s.logState(old, StateClosed, reason)
	})
	return err
}

// aLongTimeAgo is a deadline that has already passed.
var aLongTimeAgo = time.Unix(1, 0)

// withContext runs fn with the connection's deadline bound to ctx. When ctx
// is cancelled the pending I/O fails immediately. The deadline is cleared
// before withContext returns.
func (s *Session) withContext(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadlineSet := false
	if d, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(d)
		deadlineSet = true
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = s.conn.SetDeadline(aLongTimeAgo)
	})

	err := fn()

	if !stop() {
		<-fired
		deadlineSet = true
		if err != nil {
			err = fmt.Errorf("%w: %w", context.Cause(ctx), err)
		}
	}
	if deadlineSet {
		_ = s.conn.SetDeadline(time.Time{})
	}
	return err
}

func (s *Session) logState(old, next SessionState, reason string) {
	if s.logger == nil {
		return
	}
	s.mu.RLock()
	peer := s.peer
	s.mu.RUnlock()
	peerID := ""
	if peer.AgentID != uuid.Nil {
		peerID = peer.AgentID.String()
	}
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    s.role.logRole(),
		RemoteAddr:   addrString(s.conn.RemoteAddr()),
		AgentID:      s.local.AgentID.String(),
		PeerID:       peerID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
