package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/csf-agent/peerlink/pkg/log"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"single byte", []byte{0x42}},
		{"json", []byte(`{"type":"Heartbeat"}`)},
		{"binary", []byte{0x00, 0xFF, 0x7F, 0x80}},
		{"at limit", bytes.Repeat([]byte("y"), DefaultMaxFrameSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			if err := NewFrameWriter(buf).WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != FrameSize(len(tt.payload)) {
				t.Errorf("frame size = %d, want %d", buf.Len(), FrameSize(len(tt.payload)))
			}
			if got := binary.BigEndian.Uint32(buf.Bytes()[:LengthPrefixSize]); got != uint32(len(tt.payload)) {
				t.Errorf("prefix = %d, want %d", got, len(tt.payload))
			}

			got, err := NewFrameReader(buf).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d", len(got), len(tt.payload))
			}
		})
	}
}

// countingWriter records the number of Write calls.
type countingWriter struct {
	bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

func TestFrameWriterSingleWrite(t *testing.T) {
	w := &countingWriter{}
	if err := NewFrameWriter(w).WriteFrame([]byte("hello")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if w.writes != 1 {
		t.Errorf("Write calls = %d, want 1", w.writes)
	}
}

func TestFrameWriterRejects(t *testing.T) {
	writer := NewFrameWriterWithMaxSize(new(bytes.Buffer), 100)

	if err := writer.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("WriteFrame(nil) error = %v, want ErrMessageEmpty", err)
	}
	if err := writer.WriteFrame(bytes.Repeat([]byte("x"), 101)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("WriteFrame(101 bytes) error = %v, want ErrMessageTooLarge", err)
	}
}

func TestFrameReaderRejectsOversizeBeforeReadingPayload(t *testing.T) {
	// Only the prefix is present. Reading the payload would report
	// truncation, so ErrMessageTooLarge proves the length was checked first.
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], 0xFFFFFFF0)

	_, err := NewFrameReader(bytes.NewReader(prefix[:])).ReadFrame()
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("ReadFrame error = %v, want ErrMessageTooLarge", err)
	}
}

func TestFrameReaderErrors(t *testing.T) {
	prefix := func(n uint32) []byte {
		return binary.BigEndian.AppendUint32(nil, n)
	}

	tests := []struct {
		name    string
		input   []byte
		max     uint32
		wantErr error
	}{
		{"clean EOF", nil, DefaultMaxFrameSize, io.EOF},
		{"partial prefix", []byte{0x00, 0x01}, DefaultMaxFrameSize, ErrFrameTruncated},
		{"partial payload", append(prefix(100), bytes.Repeat([]byte("x"), 50)...), DefaultMaxFrameSize, ErrFrameTruncated},
		{"prefix only", prefix(10), DefaultMaxFrameSize, ErrFrameTruncated},
		{"zero length", prefix(0), DefaultMaxFrameSize, ErrMessageEmpty},
		{"over custom limit", append(prefix(1000), bytes.Repeat([]byte("x"), 1000)...), 100, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewFrameReaderWithMaxSize(bytes.NewReader(tt.input), tt.max)
			_, err := reader.ReadFrame()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadFrame error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFrameWriterConcurrentFramesStayIntact(t *testing.T) {
	buf := new(bytes.Buffer)
	writer := NewFrameWriter(buf)

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte('a' + i)}, 64+i)
			for range perWriter {
				if err := writer.WriteFrame(payload); err != nil {
					t.Errorf("WriteFrame failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	reader := NewFrameReader(buf)
	for n := 0; n < writers*perWriter; n++ {
		frame, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", n, err)
		}
		if !bytes.Equal(frame, bytes.Repeat(frame[:1], len(frame))) {
			t.Fatalf("frame %d interleaved: %q", n, frame)
		}
	}
	if _, err := reader.ReadFrame(); err != io.EOF {
		t.Errorf("trailing read error = %v, want io.EOF", err)
	}
}

// capturingLogger captures log events for testing.
type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *capturingLogger) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *capturingLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

func TestFramerLogsFrames(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := &capturingLogger{}

	framer := NewFramer(buf)
	framer.SetLogger(logger, "conn-1")

	large := bytes.Repeat([]byte("x"), MaxLogFrameDataSize+100)
	if err := framer.WriteFrame(large); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	events := logger.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Direction != log.DirectionOut || events[1].Direction != log.DirectionIn {
		t.Errorf("directions = %v, %v; want OUT, IN", events[0].Direction, events[1].Direction)
	}
	for _, e := range events {
		if e.ConnectionID != "conn-1" || e.Layer != log.LayerTransport {
			t.Errorf("event = %+v, want conn-1 at transport layer", e)
		}
		if e.Frame == nil {
			t.Fatal("Frame is nil")
		}
		if e.Frame.Size != FrameSize(len(large)) {
			t.Errorf("Frame.Size = %d, want %d", e.Frame.Size, FrameSize(len(large)))
		}
		if len(e.Frame.Data) != MaxLogFrameDataSize || !e.Frame.Truncated {
			t.Errorf("Frame.Data = %d bytes (truncated=%v), want %d truncated", len(e.Frame.Data), e.Frame.Truncated, MaxLogFrameDataSize)
		}
	}
}

func BenchmarkFrameWrite(b *testing.B) {
	buf := new(bytes.Buffer)
	writer := NewFrameWriter(buf)
	payload := bytes.Repeat([]byte("x"), 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		writer.WriteFrame(payload)
	}
}
