package logger

import (
	"go.uber.org/zap/zapcore"
)

// bufferCore is a zapcore.Core that appends every enabled entry to a RingBuffer.
type bufferCore struct {
	zapcore.LevelEnabler
	buf    *RingBuffer
	fields []zapcore.Field
}

func newBufferCore(buf *RingBuffer, enab zapcore.LevelEnabler) zapcore.Core {
	return &bufferCore{LevelEnabler: enab, buf: buf}
}

func (c *bufferCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &bufferCore{LevelEnabler: c.LevelEnabler, buf: c.buf, fields: merged}
}

func (c *bufferCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *bufferCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	entry := Entry{
		Timestamp: ent.Time,
		Level:     ent.Level.String(),
		Message:   ent.Message,
	}
	if len(enc.Fields) > 0 {
		entry.Fields = enc.Fields
	}
	c.buf.Write(entry)
	return nil
}

func (c *bufferCore) Sync() error {
	return nil
}
