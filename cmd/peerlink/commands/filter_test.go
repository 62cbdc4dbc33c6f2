package commands

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/csf-agent/peerlink/pkg/log"
)

func TestFilterOptionsBuild(t *testing.T) {
	filter, err := FilterOptions{
		ConnID:    "abc12345-0000",
		PeerID:    "peer-2",
		TimeStart: "2026-01-28T10:00:00Z",
		TimeEnd:   "2026-01-28T11:00:00Z",
		Layer:     "wire",
		Direction: "in",
		Category:  "message",
	}.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if filter.ConnectionID != "abc12345-0000" || filter.PeerID != "peer-2" {
		t.Errorf("filter = %+v", filter)
	}
	if filter.TimeStart == nil || filter.TimeEnd == nil || filter.Layer == nil || filter.Direction == nil || filter.Category == nil {
		t.Errorf("pointer fields not set: %+v", filter)
	}

	bad := []FilterOptions{
		{TimeStart: "yesterday"},
		{TimeEnd: "tomorrow"},
		{Layer: "x"},
		{Direction: "x"},
		{Category: "x"},
		{MessageType: "x"},
	}
	for _, opts := range bad {
		if _, err := opts.Build(); err == nil {
			t.Errorf("Build(%+v) succeeded", opts)
		}
	}
}

func TestRunFilter(t *testing.T) {
	path := writeLog(t, sampleEvents())
	output := filepath.Join(t.TempDir(), "filtered.plog")

	filter, err := FilterOptions{PeerID: "peer-2", Layer: "wire"}.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	n, err := RunFilter(path, output, filter)
	if err != nil {
		t.Fatalf("RunFilter: %v", err)
	}
	if n != 2 {
		t.Errorf("filtered = %d, want 2", n)
	}

	r, err := log.NewReader(output)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	count := 0
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e.PeerID != "peer-2" || e.Layer != log.LayerWire {
			t.Errorf("unexpected event in output: %+v", e)
		}
		count++
	}
	if count != n {
		t.Errorf("output holds %d events, want %d", count, n)
	}
}
