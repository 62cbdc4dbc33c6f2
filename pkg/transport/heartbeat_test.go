package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/csf-agent/peerlink/pkg/wire"
)

// pipePeer connects a PeerConn to a scripted listener over net.Pipe. reply
// is called for every message the listener receives; a nil result sends
// nothing.
func pipePeer(t *testing.T, reply func(msg wire.Message) wire.Message) (*PeerConn, *atomic.Int32) {
	t.Helper()

	a, b := net.Pipe()
	listener := NewSession(a, SessionConfig{Local: testIdentity("listener"), Role: RoleListener})
	dialer := NewSession(b, SessionConfig{Local: testIdentity("dialer"), Role: RoleDialer})

	errCh := make(chan error, 1)
	go func() { errCh <- listener.Handshake(testContext(t)) }()
	if err := dialer.Handshake(testContext(t)); err != nil {
		t.Fatalf("dialer handshake failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("listener handshake failed: %v", err)
	}

	var received atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			msg, err := listener.Receive()
			if err != nil {
				return
			}
			received.Add(1)
			if out := reply(msg); out != nil {
				if err := listener.Send(out); err != nil {
					return
				}
			}
		}
	}()

	t.Cleanup(func() {
		dialer.Close()
		listener.Close()
		wg.Wait()
	})
	return &PeerConn{session: dialer}, &received
}

func TestSendHeartbeatAcknowledged(t *testing.T) {
	pc, received := pipePeer(t, func(wire.Message) wire.Message {
		return wire.NewResponse(true, wire.HeartbeatReceived)
	})

	if err := pc.SendHeartbeat(testContext(t)); err != nil {
		t.Fatalf("SendHeartbeat failed: %v", err)
	}
	if got := received.Load(); got != 1 {
		t.Errorf("received = %d, want 1", got)
	}
}

func TestHeartbeatFailurePropagates(t *testing.T) {
	pc, received := pipePeer(t, func(wire.Message) wire.Message {
		return wire.NewResponse(false, "reason")
	})

	var failures atomic.Int32
	hb := NewHeartbeater(pc, HeartbeatConfig{
		Interval:  10 * time.Millisecond,
		OnFailure: func(error) { failures.Add(1) },
	})

	err := hb.Run(testContext(t))
	if !errors.Is(err, ErrHeartbeatRejected) {
		t.Fatalf("Run error = %v, want ErrHeartbeatRejected", err)
	}
	if err.Error() != "heartbeat rejected: reason" {
		t.Errorf("error text = %q", err.Error())
	}
	if !errors.Is(hb.Err(), ErrHeartbeatRejected) {
		t.Errorf("Err() = %v, want ErrHeartbeatRejected", hb.Err())
	}

	// No retry: exactly one heartbeat went out.
	time.Sleep(30 * time.Millisecond)
	if got := received.Load(); got != 1 {
		t.Errorf("heartbeats received = %d, want 1", got)
	}
	if got := failures.Load(); got != 1 {
		t.Errorf("OnFailure calls = %d, want 1", got)
	}
	if stats := hb.Stats(); stats.Sent != 1 || stats.Acknowledged != 0 {
		t.Errorf("Stats = %+v, want 1 sent, 0 acknowledged", stats)
	}
}

func TestSendHeartbeatUnexpectedReply(t *testing.T) {
	pc, _ := pipePeer(t, func(msg wire.Message) wire.Message {
		return wire.NewHeartbeat(testIdentity("x").AgentID)
	})

	err := pc.SendHeartbeat(testContext(t))
	if !errors.Is(err, ErrUnexpectedMessage) {
		t.Errorf("error = %v, want ErrUnexpectedMessage", err)
	}
}

func TestSendHeartbeatTimeout(t *testing.T) {
	pc, _ := pipePeer(t, func(wire.Message) wire.Message { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := pc.SendHeartbeat(ctx); err == nil {
		t.Fatal("SendHeartbeat succeeded without a reply")
	}
}

func TestRequestMetrics(t *testing.T) {
	tests := []struct {
		name    string
		reply   *wire.Response
		want    string
		wantErr error
	}{
		{"with data", wire.NewDataResponse(wire.MetricsData, []byte(`{"cpu":1}`)), `{"cpu":1}`, nil},
		{"without data", wire.NewResponse(true, wire.MetricsData), `{}`, nil},
		{"rejected", wire.NewResponse(false, "no metrics"), "", ErrRequestRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, _ := pipePeer(t, func(msg wire.Message) wire.Message {
				if msg.Type() != wire.TypeMetricsRequest {
					t.Errorf("listener got %s, want MetricsRequest", msg.Type())
				}
				return tt.reply
			})

			got, err := pc.RequestMetrics(testContext(t))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("data = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPeerConnSerializesExchanges(t *testing.T) {
	pc, received := pipePeer(t, func(msg wire.Message) wire.Message {
		if msg.Type() == wire.TypeMetricsRequest {
			return wire.NewDataResponse(wire.MetricsData, []byte(`{"n":1}`))
		}
		return wire.NewResponse(true, wire.HeartbeatReceived)
	})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				if err := pc.SendHeartbeat(testContext(t)); err != nil {
					t.Errorf("SendHeartbeat failed: %v", err)
				}
				return
			}
			data, err := pc.RequestMetrics(testContext(t))
			if err != nil || string(data) != `{"n":1}` {
				t.Errorf("RequestMetrics = %s, %v", data, err)
			}
		}()
	}
	wg.Wait()

	if got := received.Load(); got != 20 {
		t.Errorf("received = %d, want 20", got)
	}
}

// countingTarget acknowledges heartbeats until failAt.
type countingTarget struct {
	calls  atomic.Int32
	failAt int32
}

func (c *countingTarget) SendHeartbeat(context.Context) error {
	n := c.calls.Add(1)
	if c.failAt > 0 && n >= c.failAt {
		return errors.New("peer gone")
	}
	return nil
}

func TestHeartbeaterSendsImmediatelyThenOnInterval(t *testing.T) {
	target := &countingTarget{failAt: 3}
	var acks atomic.Int32

	hb := NewHeartbeater(target, HeartbeatConfig{
		Interval:    20 * time.Millisecond,
		OnHeartbeat: func(time.Duration) { acks.Add(1) },
	})

	start := time.Now()
	err := hb.Run(testContext(t))
	if err == nil || err.Error() != "peer gone" {
		t.Fatalf("Run error = %v, want peer gone", err)
	}
	// Three beats: at 0, ~20ms and ~40ms.
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("elapsed = %v, want at least two intervals", elapsed)
	}
	if got := target.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if got := acks.Load(); got != 2 {
		t.Errorf("acks = %d, want 2", got)
	}
	stats := hb.Stats()
	if stats.Sent != 3 || stats.Acknowledged != 2 || stats.LastSuccess.IsZero() {
		t.Errorf("Stats = %+v", stats)
	}

	select {
	case <-hb.Done():
	default:
		t.Error("Done not closed after Run returned")
	}
}

func TestHeartbeaterStop(t *testing.T) {
	target := &countingTarget{}
	hb := NewHeartbeater(target, HeartbeatConfig{Interval: time.Hour})
	hb.Start(context.Background())

	// The first heartbeat goes out without waiting for the interval.
	deadline := time.After(2 * time.Second)
	for target.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first heartbeat not sent")
		case <-time.After(time.Millisecond):
		}
	}

	hb.Stop()
	select {
	case <-hb.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeater did not stop")
	}
	if hb.Err() != nil {
		t.Errorf("Err() = %v, want nil after Stop", hb.Err())
	}
	hb.Stop()
}

func TestHeartbeaterContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hb := NewHeartbeater(&countingTarget{}, HeartbeatConfig{Interval: time.Hour})

	done := make(chan error, 1)
	go func() { done <- hb.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := hb.Run(context.Background()); !errors.Is(err, ErrHeartbeaterStarted) {
		t.Errorf("second Run error = %v, want ErrHeartbeaterStarted", err)
	}
}

func TestDefaultHeartbeatConfig(t *testing.T) {
	if got := DefaultHeartbeatConfig().Interval; got != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", got)
	}
	hb := NewHeartbeater(&countingTarget{}, HeartbeatConfig{})
	if hb.config.Interval != DefaultHeartbeatInterval {
		t.Errorf("zero Interval not defaulted: %v", hb.config.Interval)
	}
}
