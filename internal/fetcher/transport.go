package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/retry"
)

// CrawlTransport returns a RoundTripper for HTTP stacks that do not go through
// Fetch, such as a crawler. Every attempt takes a permit from the shared host
// limiter at rpm, transient failures on GET are retried, and response bodies
// are capped.
func (f *Fetcher) CrawlTransport(rpm int) http.RoundTripper {
	next := f.client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	return &limitedTransport{f: f, next: next, rpm: rpm}
}

// RequestTimeout returns the per-request timeout.
func (f *Fetcher) RequestTimeout() time.Duration {
	return f.cfg.RequestTimeout
}

type limitedTransport struct {
	f    *Fetcher
	next http.RoundTripper
	rpm  int
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	host := strings.ToLower(req.URL.Host)

	attempts := 1
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		attempts = t.f.cfg.MaxRetries + 1
	}

	var resp *http.Response
	retryCfg := retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: t.f.cfg.RetryDelay,
		IsRetryable:  isRetryable,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			t.f.log.Debug("retrying crawl request",
				logger.String("url", req.URL.String()),
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Error(err),
			)
		},
	}

	err := retry.Retry(req.Context(), retryCfg, func(ctx context.Context) error {
		if resp != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			resp.Body.Close()
			resp = nil
		}
		if waitErr := t.f.limiter.Wait(ctx, host, t.rpm); waitErr != nil {
			return retry.Permanent(fmt.Errorf("rate limit wait: %w", waitErr))
		}

		r, rtErr := t.next.RoundTrip(req)
		if rtErr != nil {
			return rtErr
		}
		resp = r
		if statusErr := (&StatusError{Code: r.StatusCode}); statusErr.Retryable() {
			return statusErr
		}
		return nil
	})

	// A response that stayed retryable until the attempts ran out is still
	// handed back so the caller sees its status.
	if resp == nil {
		t.f.metrics.ObserveFetch(host, "error", time.Since(start))
		return nil, err
	}
	outcome := "ok"
	if resp.StatusCode >= http.StatusBadRequest {
		outcome = "error"
	}
	t.f.metrics.ObserveFetch(host, outcome, time.Since(start))

	resp.Body = &cappedBody{Reader: io.LimitReader(resp.Body, maxBodyBytes), closer: resp.Body}
	return resp, nil
}

type cappedBody struct {
	io.Reader
	closer io.Closer
}

func (b *cappedBody) Close() error { return b.closer.Close() }
