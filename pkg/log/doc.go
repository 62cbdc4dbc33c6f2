// Package log provides structured protocol logging for peerlink.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, service).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace of every session for debugging.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/peerlink/agent.plog")
//
//	// Both: Combine skips nil sinks and unwraps a single one
//	cfg.ProtocolLogger = log.Combine(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw frame bytes (FrameEvent)
//   - Wire: Decoded messages (MessageEvent)
//   - Service: Session and peer link state changes (StateChangeEvent)
//
// Errors have a dedicated event type.
//
// # File Format
//
// Log files use CBOR encoding with .plog extension. A Reader stops cleanly
// at a partial final event, as left by a killed process, and reports it via
// Truncated. The "peerlink log" command provides viewing, export and
// statistics.
package log
