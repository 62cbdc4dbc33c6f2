package metrics

import (
	"context"
	"encoding/json"
	"sync"
)

// Placeholder is the snapshot answered when no provider is configured.
var Placeholder = json.RawMessage(`{"status":"ok"}`)

// Provider supplies the local agent's current metrics as an opaque JSON value.
type Provider interface {
	// Snapshot returns a fresh metrics document.
	Snapshot(ctx context.Context) (json.RawMessage, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (json.RawMessage, error)

// Snapshot calls f(ctx).
func (f ProviderFunc) Snapshot(ctx context.Context) (json.RawMessage, error) {
	return f(ctx)
}

// StaticProvider answers every request with the same document.
type StaticProvider struct {
	mu   sync.RWMutex
	data json.RawMessage
}

// NewStaticProvider returns a provider serving data. A nil data serves
// Placeholder.
func NewStaticProvider(data json.RawMessage) *StaticProvider {
	p := &StaticProvider{}
	p.Set(data)
	return p
}

// Set replaces the served document.
func (p *StaticProvider) Set(data json.RawMessage) {
	if data == nil {
		data = Placeholder
	}
	p.mu.Lock()
	p.data = append(json.RawMessage(nil), data...)
	p.mu.Unlock()
}

// Snapshot implements Provider.
func (p *StaticProvider) Snapshot(context.Context) (json.RawMessage, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append(json.RawMessage(nil), p.data...), nil
}

// Compile-time interface satisfaction checks.
var (
	_ Provider = ProviderFunc(nil)
	_ Provider = (*StaticProvider)(nil)
	_ Provider = (*SystemProvider)(nil)
)
