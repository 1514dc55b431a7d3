package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

func testFetcher(srv *httptest.Server) *fetcher.Fetcher {
	return fetcher.New(fetcher.Config{
		UserAgent:      testUserAgent,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     2,
		RatePerMinute:  60000,
		RetryDelay:     time.Millisecond,
	}, logger.NewNop(), fetcher.WithHTTPClient(srv.Client()))
}

// pageServer serves robots.txt plus a page handler, counting page hits.
func pageServer(t *testing.T, robots string, page http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte(robots))
			return
		}
		hits.Add(1)
		page(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	srv, _ := pageServer(t, "User-agent: *\nAllow: /\n", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testUserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html><title>Chapter 1</title></html>"))
	})

	res := testFetcher(srv).Fetch(context.Background(), srv.URL+"/book/ch1", fetcher.Options{})

	require.NoError(t, res.Err)
	assert.True(t, res.OK)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.HTML(), "Chapter 1")
}

func TestFetch_RobotsDisallowedNeverRequestsPage(t *testing.T) {
	t.Parallel()

	srv, hits := pageServer(t, "User-agent: *\nDisallow: /\n", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	res := testFetcher(srv).Fetch(context.Background(), srv.URL+"/book", fetcher.Options{})

	assert.False(t, res.OK)
	require.ErrorIs(t, res.Err, fetcher.ErrRobotsDisallowed)
	assert.Equal(t, int32(0), hits.Load())
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv, hits := pageServer(t, "", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	})

	res := testFetcher(srv).Fetch(context.Background(), srv.URL+"/flaky", fetcher.WithRetries(3))

	require.NoError(t, res.Err)
	assert.Equal(t, "recovered", res.HTML())
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetch_SurfacesLastFailure(t *testing.T) {
	t.Parallel()

	srv, hits := pageServer(t, "", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	res := testFetcher(srv).Fetch(context.Background(), srv.URL+"/down", fetcher.WithRetries(1))

	assert.False(t, res.OK)
	var statusErr *fetcher.StatusError
	require.True(t, errors.As(res.Err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	srv, hits := pageServer(t, "", http.NotFound)

	res := testFetcher(srv).Fetch(context.Background(), srv.URL+"/missing", fetcher.WithRetries(3))

	assert.False(t, res.OK)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_TimeoutCancelsHungRequest(t *testing.T) {
	t.Parallel()

	srv, _ := pageServer(t, "", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	f := fetcher.New(fetcher.Config{
		RequestTimeout: 50 * time.Millisecond,
		RatePerMinute:  60000,
	}, logger.NewNop(), fetcher.WithHTTPClient(srv.Client()))

	start := time.Now()
	res := f.Fetch(context.Background(), srv.URL+"/hang", fetcher.WithRetries(0))

	assert.False(t, res.OK)
	require.Error(t, res.Err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHostLimiter_CrawlDelayIsStricter(t *testing.T) {
	t.Parallel()

	l := fetcher.NewHostLimiter(60)
	assert.InDelta(t, float64(rate.Limit(1)), float64(l.Limit("example.org")), 1e-9)

	l.ApplyCrawlDelay("example.org", 5*time.Second)
	assert.InDelta(t, 0.2, float64(l.Limit("example.org")), 1e-9)

	l.ApplyCrawlDelay("example.org", time.Second)
	assert.InDelta(t, 0.2, float64(l.Limit("example.org")), 1e-9, "a laxer delay must not loosen the limit")
}

func TestHostLimiter_SerializesPermitsPerHost(t *testing.T) {
	t.Parallel()

	l := fetcher.NewHostLimiter(600) // one permit per 100ms
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		require.NoError(t, l.Wait(ctx, "a.example", 0))
	}
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)

	// a different host has its own bucket
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "b.example", 0))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://docs.example.org/3/library/os.html",
		fetcher.ResolveURL("https://docs.example.org/3/contents.html", "library/os.html"))
	assert.Equal(t, "https://cdn.example.org/fig.png",
		fetcher.ResolveURL("https://docs.example.org/a/b.html", "https://cdn.example.org/fig.png"))
	assert.Empty(t, fetcher.ResolveURL("https://docs.example.org/", "  "))
}
