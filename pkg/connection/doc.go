// Package connection keeps outbound peer links alive.
//
// A Supervisor runs a LinkFunc (dial, handshake, heartbeat until failure)
// and redials with exponential backoff whenever the link ends. Context
// cancellation is the only way to stop it.
//
// # Backoff
//
// Delays start at 1 second and double up to 60 seconds:
//
//	delay = base + random(0, base * 0.25)
//
// A link that stayed up for at least StableAfter starts over from the
// initial delay. Links that fail quickly, including those rejected right
// after the TLS handshake, keep growing the delay.
//
// # States
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> DISCONNECTED -> RECONNECTING -> CONNECTING ...
//
// Every transition ends in CLOSED once Run returns.
package connection
