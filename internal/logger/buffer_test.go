package logger_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

// verifyMessages checks that entries have expected messages in order.
func verifyMessages(t *testing.T, entries []logger.Entry, expected []string) {
	t.Helper()
	if len(entries) != len(expected) {
		t.Errorf("got %d entries, want %d", len(entries), len(expected))
		return
	}
	for i, e := range entries {
		if e.Message != expected[i] {
			t.Errorf("entries[%d].Message = %q, want %q", i, e.Message, expected[i])
		}
	}
}

// writeLetters writes n entries with messages A, B, C, etc.
func writeLetters(buf *logger.RingBuffer, n int) {
	for i := range n {
		buf.Write(logger.Entry{
			Timestamp: time.Now(),
			Message:   string(rune('A' + i)),
		})
	}
}

func TestRingBuffer_Write(t *testing.T) {
	t.Run("writes entries to buffer", func(t *testing.T) {
		buf := logger.NewRingBuffer(10)
		buf.Write(logger.Entry{Timestamp: time.Now(), Level: "info", Message: "scan started"})

		if buf.Size() != 1 {
			t.Errorf("Size() = %d, want 1", buf.Size())
		}
		if buf.Total() != 1 {
			t.Errorf("Total() = %d, want 1", buf.Total())
		}
	})

	t.Run("evicts oldest when full", func(t *testing.T) {
		buf := logger.NewRingBuffer(3)
		writeLetters(buf, 5)

		if buf.Size() != 3 {
			t.Errorf("Size() = %d, want 3", buf.Size())
		}
		if buf.Total() != 5 {
			t.Errorf("Total() = %d, want 5", buf.Total())
		}
		verifyMessages(t, buf.ReadAll(), []string{"C", "D", "E"})
	})

	t.Run("zero capacity falls back to default", func(t *testing.T) {
		buf := logger.NewRingBuffer(0)
		if buf.Capacity() != logger.DefaultBufferSize {
			t.Errorf("Capacity() = %d, want %d", buf.Capacity(), logger.DefaultBufferSize)
		}
	})
}

func TestRingBuffer_ReadLast(t *testing.T) {
	buf := logger.NewRingBuffer(4)
	writeLetters(buf, 6)

	verifyMessages(t, buf.ReadLast(2), []string{"E", "F"})
	verifyMessages(t, buf.ReadLast(10), []string{"C", "D", "E", "F"})

	if len(buf.ReadLast(0)) != 0 {
		t.Error("ReadLast(0) should return empty slice")
	}
}

func TestRingBuffer_ReadSince(t *testing.T) {
	buf := logger.NewRingBuffer(10)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := range 4 {
		buf.Write(logger.Entry{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Message:   string(rune('A' + i)),
		})
	}

	verifyMessages(t, buf.ReadSince(base.Add(2*time.Minute)), []string{"C", "D"})
}

func TestRingBuffer_Clear(t *testing.T) {
	buf := logger.NewRingBuffer(5)
	writeLetters(buf, 3)
	buf.Clear()

	if buf.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", buf.Size())
	}
	if buf.Total() != 3 {
		t.Errorf("Total() after Clear = %d, want 3", buf.Total())
	}
}

func TestRingBuffer_Bytes(t *testing.T) {
	buf := logger.NewRingBuffer(5)
	writeLetters(buf, 2)

	lines := strings.Split(strings.TrimSpace(string(buf.Bytes())), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"message":"A"`) {
		t.Errorf("first line = %s, want message A", lines[0])
	}
}

func TestRingBuffer_ConcurrentWrites(t *testing.T) {
	const writers, perWriter = 8, 250

	buf := logger.NewRingBuffer(100)

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				buf.Write(logger.Entry{Timestamp: time.Now(), Message: "x"})
			}
		}()
	}
	wg.Wait()

	if buf.Size() != 100 {
		t.Errorf("Size() = %d, want 100", buf.Size())
	}
	if buf.Total() != writers*perWriter {
		t.Errorf("Total() = %d, want %d", buf.Total(), writers*perWriter)
	}
}
