package log

// MultiLogger fans each event out to several sinks in order.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger returns a logger writing to every non-nil sink.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Log forwards event to each sink.
func (m *MultiLogger) Log(event Event) {
	for _, s := range m.sinks {
		s.Log(event)
	}
}

// Len returns the number of sinks.
func (m *MultiLogger) Len() int {
	return len(m.sinks)
}

// Combine merges sinks into one Logger. Nil sinks are skipped; it returns
// nil when none remain and the sink itself when exactly one remains, so a
// disabled trace stays a nil Logger.
func Combine(sinks ...Logger) Logger {
	m := NewMultiLogger(sinks...)
	switch m.Len() {
	case 0:
		return nil
	case 1:
		return m.sinks[0]
	default:
		return m
	}
}
