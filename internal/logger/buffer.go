package logger

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"
)

// Entry is one captured log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// RingBuffer is a bounded, append-only log buffer. Once full, each write
// evicts the oldest entry. Safe for concurrent use.
type RingBuffer struct {
	entries []Entry
	size    int
	head    int // oldest entry
	count   int
	total   int // entries ever written
	mu      sync.RWMutex
}

// NewRingBuffer creates a buffer holding at most maxLogs entries.
func NewRingBuffer(maxLogs int) *RingBuffer {
	if maxLogs <= 0 {
		maxLogs = DefaultBufferSize
	}
	return &RingBuffer{
		entries: make([]Entry, maxLogs),
		size:    maxLogs,
	}
}

// Write appends an entry, overwriting the oldest one when the buffer is full.
func (b *RingBuffer) Write(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < b.size {
		b.entries[(b.head+b.count)%b.size] = entry
		b.count++
	} else {
		b.entries[b.head] = entry
		b.head = (b.head + 1) % b.size
	}

	b.total++
}

// ReadAll returns all buffered entries in chronological order.
func (b *RingBuffer) ReadAll() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Entry, b.count)
	for i := range b.count {
		result[i] = b.entries[(b.head+i)%b.size]
	}
	return result
}

// ReadSince returns entries with a timestamp at or after since.
func (b *RingBuffer) ReadSince(since time.Time) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Entry, 0, b.count)
	for i := range b.count {
		e := b.entries[(b.head+i)%b.size]
		if !e.Timestamp.Before(since) {
			result = append(result, e)
		}
	}
	return result
}

// ReadLast returns up to n of the most recent entries, oldest first.
func (b *RingBuffer) ReadLast(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 {
		return []Entry{}
	}
	n = min(n, b.count)

	result := make([]Entry, n)
	start := b.count - n
	for i := range n {
		result[i] = b.entries[(b.head+start+i)%b.size]
	}
	return result
}

// Size returns the number of entries currently held.
func (b *RingBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Capacity returns maxLogs.
func (b *RingBuffer) Capacity() int {
	return b.size
}

// Total returns the number of entries ever written, including evicted ones.
func (b *RingBuffer) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Clear empties the buffer. Total is not reset.
func (b *RingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}

// Bytes returns the buffer content as JSON lines.
func (b *RingBuffer) Bytes() []byte {
	var buf bytes.Buffer
	for _, e := range b.ReadAll() {
		line, err := json.Marshal(e)
		if err != nil {
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
