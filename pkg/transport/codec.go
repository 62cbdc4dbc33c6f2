package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/csf-agent/peerlink/pkg/log"
	"github.com/csf-agent/peerlink/pkg/wire"
)

// Message stream errors.
var (
	// ErrConnectionClosed indicates the stream ended, possibly inside a frame.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrProtocol indicates a frame that cannot be accepted: oversize,
	// empty, not a valid message, or of an unknown type.
	ErrProtocol = errors.New("protocol error")
)

// MessageConn reads and writes whole messages over a framed stream.
//
// Reads must come from a single goroutine. Writes may come from several;
// the underlying FrameWriter serializes them.
type MessageConn struct {
	framer *Framer

	mu     sync.Mutex
	logger log.Logger
	base   log.Event
}

// NewMessageConn wraps rw with length-prefixed framing limited to maxFrameSize.
// A zero maxFrameSize selects DefaultMaxFrameSize.
func NewMessageConn(rw io.ReadWriter, maxFrameSize uint32) *MessageConn {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &MessageConn{framer: NewFramerWithMaxSize(rw, maxFrameSize)}
}

// SetLogger enables protocol logging. Every logged event is a copy of base
// with the time, direction and payload filled in.
func (c *MessageConn) SetLogger(logger log.Logger, base log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
	c.base = base
	c.framer.SetLogger(logger, base.ConnectionID)
}

// setPeerID records the peer's agent id on subsequent log events.
func (c *MessageConn) setPeerID(peerID string) {
	c.mu.Lock()
	c.base.PeerID = peerID
	c.mu.Unlock()
}

// WriteMessage encodes msg and writes it as one frame.
func (c *MessageConn) WriteMessage(msg wire.Message) error {
	data, err := wire.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	if err := c.framer.WriteFrame(data); err != nil {
		if errors.Is(err, ErrMessageTooLarge) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	c.logMessage(msg, log.DirectionOut)
	return nil
}

// ReadMessage reads one frame and decodes it.
//
// End of stream or a truncated frame returns an error wrapping
// ErrConnectionClosed. An oversize or empty frame, undecodable JSON, or an
// unknown type returns an error wrapping ErrProtocol.
func (c *MessageConn) ReadMessage() (wire.Message, error) {
	data, err := c.framer.ReadFrame()
	if err != nil {
		err = classifyReadError(err)
		if errors.Is(err, ErrProtocol) {
			c.logError(err, "read frame")
		}
		return nil, err
	}

	msg, err := wire.Unmarshal(data)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrProtocol, err)
		c.logError(err, "decode message")
		return nil, err
	}

	c.logMessage(msg, log.DirectionIn)
	return msg, nil
}

// classifyReadError maps a framing error onto ErrConnectionClosed or ErrProtocol.
func classifyReadError(err error) error {
	if errors.Is(err, ErrMessageTooLarge) || errors.Is(err, ErrMessageEmpty) {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	// EOF, truncation, resets and timeouts all end the stream.
	return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
}

// isClosedError reports whether err means the stream is gone rather than
// that the peer misbehaved.
func isClosedError(err error) bool {
	return errors.Is(err, ErrConnectionClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF)
}

func (c *MessageConn) logMessage(msg wire.Message, direction log.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger == nil {
		return
	}
	ev := c.base
	ev.Timestamp = time.Now()
	ev.Direction = direction
	ev.Layer = log.LayerWire
	ev.Category = log.CategoryMessage
	ev.Message = log.NewMessageEvent(msg)
	c.logger.Log(ev)
}

func (c *MessageConn) logError(err error, context string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger == nil {
		return
	}
	ev := c.base
	ev.Timestamp = time.Now()
	ev.Direction = log.DirectionIn
	ev.Layer = log.LayerWire
	ev.Category = log.CategoryError
	ev.Error = &log.ErrorEventData{
		Layer:   log.LayerWire,
		Message: err.Error(),
		Context: context,
	}
	c.logger.Log(ev)
}
