package registry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/registry"
)

type recordingScanner struct {
	mu   sync.Mutex
	opts []domain.ScanOptions
}

func (r *recordingScanner) ScanAllSeeds(_ context.Context, opts domain.ScanOptions) ([]*domain.ScanResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = append(r.opts, opts)
	return nil, nil
}

func TestScheduler_RunOnceSkipsScanned(t *testing.T) {
	t.Parallel()

	scanner := &recordingScanner{}
	s := registry.NewScheduler(scanner, "0 3 * * *", nil)
	s.RunOnce()

	require.Len(t, scanner.opts, 1)
	assert.True(t, scanner.opts[0].SkipScanned)
}

func TestScheduler_Next(t *testing.T) {
	t.Parallel()

	s := registry.NewScheduler(&recordingScanner{}, "0 3 * * *", nil)
	from := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	next, err := s.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 3, 3, 0, 0, 0, time.UTC), next)
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := registry.NewScheduler(&recordingScanner{}, "*/5 * * * *", nil)
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_InvalidSpec(t *testing.T) {
	t.Parallel()

	s := registry.NewScheduler(&recordingScanner{}, "every day", nil)
	require.Error(t, s.Start())
	_, err := s.Next(time.Now())
	require.Error(t, err)
}
