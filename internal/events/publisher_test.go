package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/source-registry/internal/events"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

type fakeStream struct {
	mu   sync.Mutex
	args []*redis.XAddArgs
	err  error
	done chan struct{}
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	f.args = append(f.args, a)
	f.mu.Unlock()
	if f.done != nil {
		defer close(f.done)
	}
	return redis.NewStringResult("1700000000000-0", f.err)
}

func TestNewPublisher_NilClient(t *testing.T) {
	t.Parallel()

	pub := events.NewPublisher(nil, "", nil)
	assert.Nil(t, pub)
	require.NoError(t, pub.Publish(context.Background(), events.RegistryEvent{EventType: events.ScanCompleted}))
	pub.PublishAsync(events.RegistryEvent{EventType: events.ScanCompleted})
}

func TestPublisher_PublishFillsEnvelope(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{}
	pub := events.NewPublisher(stream, "", logger.NewNop())

	err := pub.Publish(context.Background(), events.RegistryEvent{
		EventType: events.AssetActivated,
		SubjectID: "asset-1",
		Payload:   events.AssetTogglePayload{Slug: "calculus-volume-1"},
	})
	require.NoError(t, err)
	require.Len(t, stream.args, 1)

	args := stream.args[0]
	assert.Equal(t, events.DefaultStream, args.Stream)

	values, ok := args.Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ASSET_ACTIVATED", values["event_type"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(values["event"].(string)), &decoded))
	assert.NotEmpty(t, decoded["event_id"])
	assert.NotEmpty(t, decoded["timestamp"])
	assert.Equal(t, "asset-1", decoded["subject_id"])
}

func TestPublisher_PublishError(t *testing.T) {
	t.Parallel()

	pub := events.NewPublisher(&fakeStream{err: errors.New("connection refused")}, "custom", nil)
	err := pub.Publish(context.Background(), events.RegistryEvent{EventType: events.ScanCompleted})
	require.ErrorContains(t, err, "connection refused")
}

func TestPublisher_PublishAsync(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{done: make(chan struct{})}
	pub := events.NewPublisher(stream, "custom", nil)
	pub.PublishAsync(events.RegistryEvent{EventType: events.ScanCompleted, SubjectID: "src-1"})

	select {
	case <-stream.done:
	case <-time.After(2 * time.Second):
		t.Fatal("async publish did not reach the stream")
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	assert.Equal(t, "custom", stream.args[0].Stream)
}
