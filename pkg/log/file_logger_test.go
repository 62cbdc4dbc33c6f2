package log

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	dec := NewEventDecoder(bytes.NewReader(data))
	var events []Event
	for {
		var e Event
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("decode event %d: %v", len(events), err)
		}
		events = append(events, e)
	}
}

func TestFileLoggerCreatesPrivateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "agent.plog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if logger.Path() != path {
		t.Errorf("Path() = %q, want %q", logger.Path(), path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("mode = %o, want 0600", perm)
	}
}

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.plog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	logger.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		Frame:        &FrameEvent{Size: 100, Data: []byte{1, 2, 3}},
	})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events := readEvents(t, path)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].ConnectionID != "conn-123" {
		t.Errorf("ConnectionID = %q", events[0].ConnectionID)
	}
	if events[0].Frame == nil || events[0].Frame.Size != 100 {
		t.Errorf("Frame = %+v", events[0].Frame)
	}
	if logger.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", logger.Dropped())
	}
}

func TestFileLoggerAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.plog")

	for _, id := range []string{"conn-1", "conn-2"} {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), ConnectionID: id})
		logger.Close()
	}

	events := readEvents(t, path)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ConnectionID != "conn-1" || events[1].ConnectionID != "conn-2" {
		t.Errorf("order = %q, %q", events[0].ConnectionID, events[1].ConnectionID)
	}
}

func TestFileLoggerConcurrentSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.plog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	const sessions = 10
	const perSession = 100

	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perSession {
				logger.Log(Event{Timestamp: time.Now(), ConnectionID: fmt.Sprintf("conn-%d", i)})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	events := readEvents(t, path)
	if len(events) != sessions*perSession {
		t.Errorf("got %d events, want %d", len(events), sessions*perSession)
	}
}

func TestFileLoggerClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.plog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(Event{Timestamp: time.Now(), ConnectionID: "before"})

	if err := logger.Sync(); err != nil {
		t.Errorf("Sync failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync after Close failed: %v", err)
	}

	logger.Log(Event{Timestamp: time.Now(), ConnectionID: "after"})

	events := readEvents(t, path)
	if len(events) != 1 || events[0].ConnectionID != "before" {
		t.Errorf("events = %+v, want only the one logged before Close", events)
	}
}

func TestFileLoggerOpenFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileLogger(filepath.Join(blocker, "agent.plog")); err == nil {
		t.Error("NewFileLogger succeeded below a regular file")
	}
}
