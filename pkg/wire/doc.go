// Package wire defines the messages agents exchange over an authenticated
// peerlink session and their JSON encoding.
//
// # Message Types
//
// The set of messages is closed:
//   - Handshake: first message in each direction, carries the sender identity
//   - Heartbeat: liveness probe, answered with a Response
//   - MetricsShare: unsolicited metrics snapshot, no reply
//   - MetricsRequest: asks the peer for its metrics, answered with a Response
//   - Response: success flag, human readable message, optional data
//
// # Encoding
//
// Each message is one JSON object tagged by a "type" field naming the
// variant, with the variant's fields alongside it:
//
//	{"type":"Heartbeat","agent_id":"6f1c...","timestamp":"2025-01-02T03:04:05Z"}
//
// Metrics and response data are opaque JSON and pass through unchanged.
// Framing is the transport's concern; this package only maps one message
// to one JSON document.
package wire
