package commands

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/csf-agent/peerlink/pkg/log"
	"github.com/csf-agent/peerlink/pkg/wire"
)

func TestCollectStats(t *testing.T) {
	stats, err := CollectStats(writeLog(t, sampleEvents()))
	if err != nil {
		t.Fatalf("CollectStats: %v", err)
	}

	if stats.TotalEvents != 6 {
		t.Errorf("TotalEvents = %d, want 6", stats.TotalEvents)
	}
	if stats.EventsByLayer[log.LayerWire] != 4 {
		t.Errorf("wire events = %d, want 4", stats.EventsByLayer[log.LayerWire])
	}
	if stats.MessagesByType[wire.TypeHeartbeat] != 1 || stats.MessagesByType[wire.TypeResponse] != 1 {
		t.Errorf("MessagesByType = %v", stats.MessagesByType)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if got := stats.TimeRange.End.Sub(stats.TimeRange.Start); got != 5*time.Second {
		t.Errorf("time range = %v, want 5s", got)
	}

	// The peer link event has no connection id.
	if len(stats.Connections) != 2 {
		t.Fatalf("Connections = %d, want 2", len(stats.Connections))
	}
	dial := stats.Connections["abc12345-0000"]
	if dial.Events != 4 || dial.Role != log.RoleDialer || dial.PeerID != "peer-2" || dial.Heartbeats != 1 {
		t.Errorf("dialer connection = %+v", dial)
	}
	if listen := stats.Connections["def67890-0000"]; listen.Role != log.RoleListener || listen.RemoteAddr != "10.0.0.3:50000" {
		t.Errorf("listener connection = %+v", listen)
	}
}

func TestRunStats(t *testing.T) {
	var buf bytes.Buffer
	if err := RunStats(writeLog(t, sampleEvents()), &buf); err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Total Events: 6",
		"Heartbeat:",
		"Connections: 2",
		"[abc12345] DIALER 4 events",
		"Peer: peer-2",
		"Errors: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunStatsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RunStats(writeLog(t, nil), &buf); err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestRunStatsTruncatedTrace(t *testing.T) {
	path := writeLog(t, sampleEvents())
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-2], 0600); err != nil {
		t.Fatal(err)
	}

	stats, err := CollectStats(path)
	if err != nil {
		t.Fatalf("CollectStats: %v", err)
	}
	if !stats.Truncated || stats.TotalEvents != 5 {
		t.Errorf("Truncated = %v, TotalEvents = %d, want true and 5", stats.Truncated, stats.TotalEvents)
	}

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	if !strings.Contains(buf.String(), "Warning: trace ends with a partial event") {
		t.Errorf("output missing truncation warning:\n%s", buf.String())
	}
}
