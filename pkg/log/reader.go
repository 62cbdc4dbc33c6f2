package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/csf-agent/peerlink/pkg/wire"
	"github.com/fxamacker/cbor/v2"
)

// Filter specifies criteria for filtering log events.
// Empty/nil fields match all events for that criterion.
type Filter struct {
	// ConnectionID filters by exact connection ID match.
	ConnectionID string

	// Direction filters by message direction.
	Direction *Direction

	// Layer filters by protocol layer.
	Layer *Layer

	// Category filters by event category.
	Category *Category

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time

	// AgentID filters by local agent ID.
	AgentID string

	// PeerID filters by peer agent ID.
	PeerID string

	// MessageType filters wire-layer events by message type.
	MessageType wire.MessageType
}

// Matches returns true if the event matches all filter criteria.
func (f *Filter) Matches(event Event) bool {
	if f.ConnectionID != "" && event.ConnectionID != f.ConnectionID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	if f.AgentID != "" && event.AgentID != f.AgentID {
		return false
	}
	if f.PeerID != "" && event.PeerID != f.PeerID {
		return false
	}
	if f.MessageType != "" && (event.Message == nil || event.Message.Type != f.MessageType) {
		return false
	}
	return true
}

// ErrTruncated reports a trace whose final event was cut off, as left
// behind by an agent that stopped mid-write.
var ErrTruncated = errors.New("trace ends with a partial event")

// Reader streams events from a .plog file, applying a Filter.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter

	read      int
	truncated bool
}

// NewReader creates a Reader that returns every event in path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader creates a Reader that returns only events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewEventDecoder(f),
		filter:  filter,
	}, nil
}

// Next returns the next matching event, or io.EOF at the end of the trace.
//
// A partial final event also ends the trace with io.EOF; Truncated then
// reports true. Corruption before the end is returned as an error.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.decoder.Decode(&event)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return Event{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			r.truncated = true
			return Event{}, io.EOF
		default:
			return Event{}, fmt.Errorf("event %d: %w", r.read+1, err)
		}

		r.read++
		if r.filter.Matches(event) {
			return event, nil
		}
	}
}

// Count returns how many events were decoded, matching or not.
func (r *Reader) Count() int {
	return r.read
}

// Truncated reports whether the trace ended in a partial event.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Err returns ErrTruncated once a partial final event has been seen.
func (r *Reader) Err() error {
	if r.truncated {
		return ErrTruncated
	}
	return nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
