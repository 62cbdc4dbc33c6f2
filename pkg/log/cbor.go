package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// A .plog file is a plain concatenation of CBOR-encoded events. Struct
// fields use integer keys and timestamps keep nanosecond precision, so a
// file can be merged or sorted without losing ordering information.
var (
	eventEncMode = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		Time:          cbor.TimeRFC3339Nano,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	})

	// Traces are copied between machines; bound what a corrupt or hostile
	// file can make the reader allocate.
	eventDecMode = mustDecMode(cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxNestedLevels:  8,
		MaxArrayElements: 1 << 16,
		MaxMapPairs:      64,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("plog encode mode: %v", err))
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("plog decode mode: %v", err))
	}
	return m
}

// MarshalEvent returns the .plog encoding of one event.
func MarshalEvent(event Event) ([]byte, error) {
	return eventEncMode.Marshal(event)
}

// UnmarshalEvent decodes a single event. Trailing bytes are an error; use
// NewEventDecoder to walk a whole file.
func UnmarshalEvent(data []byte) (Event, error) {
	var event Event
	if err := eventDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}

// NewEventEncoder writes consecutive events to w.
func NewEventEncoder(w io.Writer) *cbor.Encoder {
	return eventEncMode.NewEncoder(w)
}

// NewEventDecoder reads consecutive events from r until io.EOF.
func NewEventDecoder(r io.Reader) *cbor.Decoder {
	return eventDecMode.NewDecoder(r)
}
