package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
	"github.com/jonesrussell/north-cloud/source-registry/internal/retry"
)

const maxBodyBytes = 10 * 1024 * 1024

var (
	// ErrRobotsDisallowed is returned when robots.txt forbids the URL.
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	// ErrRobotsUnknown is returned when robots.txt could not be evaluated.
	ErrRobotsUnknown = errors.New("robots.txt status unknown")
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusTooManyRequests ||
		e.Code >= http.StatusInternalServerError
}

// Options tune a single Fetch call. Zero values use the fetcher config.
type Options struct {
	// Retries is the number of additional attempts after the first.
	Retries *int
	// RatePerMinute overrides the host rate limit (seed-configured).
	RatePerMinute int
	// Accept sets the Accept header.
	Accept string
}

// WithRetries returns Options with an explicit retry count.
func WithRetries(n int) Options {
	return Options{Retries: &n}
}

// Result is the outcome of a Fetch. OK is true only for a 2xx response.
type Result struct {
	OK       bool
	Body     []byte
	Status   int
	FinalURL string
	Err      error
}

// HTML returns the body as a string.
func (r Result) HTML() string {
	return string(r.Body)
}

// Fetcher is a polite HTTP client: it consults robots.txt before any content
// fetch, rate limits per host, retries transient failures, and bounds every
// attempt with a timeout.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	robots  *RobotsChecker
	limiter *HostLimiter
	log     logger.Logger
	metrics *metrics.Metrics
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMetrics records fetch metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// New creates a Fetcher.
func New(cfg Config, log logger.Logger, opts ...Option) *Fetcher {
	cfg = cfg.WithDefaults()
	if log == nil {
		log = logger.NewNop()
	}

	f := &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout:       cfg.RequestTimeout,
			CheckRedirect: RedirectPolicy(cfg.MaxRedirects),
		},
		limiter: NewHostLimiter(cfg.RatePerMinute),
		log:     log,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.robots = NewRobotsChecker(f.client, cfg.UserAgent, cfg.RobotsCacheTTL, cfg.RequestTimeout)

	return f
}

// UserAgent returns the configured User-Agent.
func (f *Fetcher) UserAgent() string {
	return f.cfg.UserAgent
}

// HTTPClient returns the client used for all requests.
func (f *Fetcher) HTTPClient() *http.Client {
	return f.client
}

// CheckRobots consults robots.txt for rawURL.
func (f *Fetcher) CheckRobots(ctx context.Context, rawURL string) RobotsCheck {
	check := f.robots.Check(ctx, rawURL)
	f.metrics.ObserveRobots(string(check.Status))

	if check.Err != nil {
		f.log.Warn("robots.txt check failed",
			logger.String("url", rawURL),
			logger.Error(check.Err),
		)
	} else {
		f.log.Debug("robots.txt checked",
			logger.String("url", rawURL),
			logger.String("status", string(check.Status)),
		)
	}
	return check
}

// Fetch retrieves rawURL after a robots.txt check and a rate-limit permit.
// Transient failures are retried; the last failure is returned in Result.Err.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) Result {
	start := time.Now()

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return Result{Err: fmt.Errorf("invalid url %q", rawURL)}
	}
	host := strings.ToLower(parsed.Host)

	check := f.CheckRobots(ctx, rawURL)
	switch check.Status {
	case domain.RobotsAllowed:
	case domain.RobotsDisallowed:
		f.metrics.ObserveFetch(host, "robots_disallowed", time.Since(start))
		return Result{Err: ErrRobotsDisallowed}
	default:
		f.metrics.ObserveFetch(host, "robots_unknown", time.Since(start))
		return Result{Err: fmt.Errorf("%w: %w", ErrRobotsUnknown, check.Err)}
	}
	f.limiter.ApplyCrawlDelay(host, check.CrawlDelay)

	retries := f.cfg.MaxRetries
	if opts.Retries != nil {
		retries = max(*opts.Retries, 0)
	}

	var res Result
	retryCfg := retry.Config{
		MaxAttempts:  retries + 1,
		InitialDelay: f.cfg.RetryDelay,
		IsRetryable:  isRetryable,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			f.log.Debug("retrying fetch",
				logger.String("url", rawURL),
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Error(err),
			)
		},
	}

	err = retry.Retry(ctx, retryCfg, func(ctx context.Context) error {
		if waitErr := f.limiter.Wait(ctx, host, opts.RatePerMinute); waitErr != nil {
			return retry.Permanent(fmt.Errorf("rate limit wait: %w", waitErr))
		}
		res = f.attempt(ctx, rawURL, opts)
		return res.Err
	})

	outcome := "ok"
	if err != nil {
		res.OK = false
		res.Err = err
		outcome = "error"
		f.log.Warn("fetch failed",
			logger.String("url", rawURL),
			logger.Int("status", res.Status),
			logger.Error(err),
		)
	}
	f.metrics.ObserveFetch(host, outcome, time.Since(start))

	return res
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string, opts Options) Result {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return Result{Err: retry.Permanent(fmt.Errorf("create request: %w", err))}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	} else {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrTooManyRedirects) {
			err = retry.Permanent(err)
		}
		return Result{Err: err}
	}
	defer resp.Body.Close()

	res := Result{Status: resp.StatusCode, FinalURL: resp.Request.URL.String()}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		statusErr := &StatusError{Code: resp.StatusCode}
		if statusErr.Retryable() {
			res.Err = statusErr
		} else {
			res.Err = retry.Permanent(statusErr)
		}
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		res.Err = fmt.Errorf("read body: %w", err)
		return res
	}

	res.OK = true
	res.Body = body
	return res
}

func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		var perm *retry.PermanentError
		return !errors.As(err, &perm) && statusErr.Retryable()
	}
	return retry.DefaultIsRetryable(err)
}

// ResolveURL resolves ref against base. It returns "" when either is invalid.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}
