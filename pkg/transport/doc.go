// Package transport provides the agent-to-agent transport.
//
// The transport layer handles:
//   - Mutual TLS with certificates signed by the fleet CA
//   - Length-prefixed message framing
//   - The identity handshake that opens every session
//   - Heartbeats and metrics exchange between agents
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│       TLS 1.2 / 1.3            │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # TLS Requirements
//
// Both sides present a certificate signed by the shared CA. The accepting
// side requires and verifies the client certificate; the dialing side
// verifies the server certificate against the same CA, using the dialed
// host as server name. ALPN "peerlink/1" is offered but not required.
//
// # Sessions
//
// After TLS, the listener sends its Handshake first and then reads the
// peer's; the dialer reads first and then answers. No other message is
// accepted before both handshakes are exchanged.
//
// # Heartbeats
//
// The dialer sends a Heartbeat immediately and then every 30 seconds. The
// listener answers each with a Response. The first failed heartbeat ends
// the loop; reconnecting is left to the caller (see package connection).
package transport
