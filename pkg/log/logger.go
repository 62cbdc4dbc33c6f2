package log

// Logger receives protocol events from transport and service code.
//
// Log is called on the session's goroutine, so implementations must be
// safe for concurrent use and must not block on slow sinks. Components
// accept a nil Logger and skip event construction entirely.
type Logger interface {
	Log(event Event)
}

// LoggerFunc adapts an ordinary function to Logger.
type LoggerFunc func(event Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// Discard drops every event.
var Discard Logger = LoggerFunc(func(Event) {})
