package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHeartbeatInterval is the time between heartbeats.
const DefaultHeartbeatInterval = 30 * time.Second

// ErrHeartbeaterStarted indicates Run or Start was called twice.
var ErrHeartbeaterStarted = errors.New("heartbeater already started")

// HeartbeatConfig configures a Heartbeater.
type HeartbeatConfig struct {
	// Interval between heartbeats (default 30s). The first heartbeat is
	// sent immediately.
	Interval time.Duration

	// Timeout bounds each heartbeat exchange. Zero waits indefinitely.
	Timeout time.Duration

	// OnHeartbeat is called after every acknowledged heartbeat.
	OnHeartbeat func(rtt time.Duration)

	// OnFailure is called once with the error that stopped the loop.
	OnFailure func(err error)
}

// DefaultHeartbeatConfig returns the default heartbeat configuration.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: DefaultHeartbeatInterval,
	}
}

// HeartbeatStats contains heartbeat statistics.
type HeartbeatStats struct {
	Sent         uint64
	Acknowledged uint64
	LastRTT      time.Duration
	LastSuccess  time.Time
}

// Heartbeater sends heartbeats to one peer at a fixed interval.
//
// The first failed heartbeat stops the loop and is reported through Done
// and Err. A Heartbeater never restarts itself; reconnecting is up to the
// caller.
type Heartbeater struct {
	config HeartbeatConfig
	target HeartbeatTarget

	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu    sync.Mutex
	err   error
	stats HeartbeatStats
}

// NewHeartbeater creates a heartbeater for target.
func NewHeartbeater(target HeartbeatTarget, config HeartbeatConfig) *Heartbeater {
	if config.Interval <= 0 {
		config.Interval = DefaultHeartbeatInterval
	}
	return &Heartbeater{
		config: config,
		target: target,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start runs the heartbeat loop in a new goroutine.
func (h *Heartbeater) Start(ctx context.Context) {
	if h.started.Load() {
		return
	}
	go h.Run(ctx)
}

// Run sends heartbeats until one fails, ctx is done, or Stop is called.
// It returns the heartbeat error, ctx's error, or nil after Stop.
func (h *Heartbeater) Run(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrHeartbeaterStarted
	}

	err := h.loop(ctx)

	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)

	return err
}

func (h *Heartbeater) loop(ctx context.Context) error {
	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	for {
		if err := h.beat(ctx); err != nil {
			select {
			case <-h.stopCh:
				return nil
			default:
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if h.config.OnFailure != nil {
				h.config.OnFailure(err)
			}
			return err
		}

		select {
		case <-ticker.C:
		case <-h.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Heartbeater) beat(ctx context.Context) error {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	h.mu.Lock()
	h.stats.Sent++
	h.mu.Unlock()

	start := time.Now()
	if err := h.target.SendHeartbeat(ctx); err != nil {
		return err
	}
	rtt := time.Since(start)

	h.mu.Lock()
	h.stats.Acknowledged++
	h.stats.LastRTT = rtt
	h.stats.LastSuccess = time.Now()
	h.mu.Unlock()

	if h.config.OnHeartbeat != nil {
		h.config.OnHeartbeat(rtt)
	}
	return nil
}

// Stop ends the loop after the current heartbeat.
func (h *Heartbeater) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
}

// Done is closed when the loop has ended.
func (h *Heartbeater) Done() <-chan struct{} {
	return h.done
}

// Err returns the reason the loop ended. It is nil while running and
// after Stop.
func (h *Heartbeater) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Stats returns heartbeat statistics.
func (h *Heartbeater) Stats() HeartbeatStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
