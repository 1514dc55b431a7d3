package testhelpers

import (
	"os"
	"testing"

	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

// NewBufferedLogger returns a debug-level logger that discards output and
// records every entry in the returned buffer, so tests can assert on warnings.
func NewBufferedLogger(t *testing.T) (logger.Logger, *logger.RingBuffer) {
	t.Helper()

	buf := logger.NewRingBuffer(logger.DefaultBufferSize)
	log, err := logger.NewWithBuffer(logger.Config{
		Level:       "debug",
		OutputPaths: []string{os.DevNull},
	}, buf)
	if err != nil {
		t.Fatalf("create test logger: %v", err)
	}
	return log, buf
}

// Messages returns the messages of the buffered entries at level.
func Messages(buf *logger.RingBuffer, level string) []string {
	var out []string
	for _, e := range buf.ReadAll() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}
