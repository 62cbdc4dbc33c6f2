// Package metrics supplies the local agent's metrics to the transport.
//
// The transport treats metrics as an opaque JSON document obtained from a
// Provider. SystemProvider samples CPU, memory, disk, network and host
// information; StaticProvider serves a fixed document.
package metrics
