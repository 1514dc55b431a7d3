// Package fetcher is the polite HTTP client used by adapters and the content
// retriever: robots.txt compliance, per-host rate limiting, bounded retries
// and per-request timeouts.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
)

const (
	defaultRobotsCacheTTL = 24 * time.Hour
	defaultRobotsTimeout  = 10 * time.Second
	robotsTxtPath         = "/robots.txt"
	maxRobotsBodyBytes    = 512 * 1024
)

// RobotsCheck is the result of consulting a host's robots.txt for one URL.
// Allowed is false whenever Status is not RobotsAllowed.
type RobotsCheck struct {
	Allowed    bool
	Status     domain.RobotsStatus
	CrawlDelay time.Duration
	Err        error
}

// RobotsChecker checks and caches robots.txt rules per host.
type RobotsChecker struct {
	httpClient *http.Client
	userAgent  string
	cache      map[string]*robotsCacheEntry
	mu         sync.RWMutex
	cacheTTL   time.Duration
	timeout    time.Duration
	now        func() time.Time
}

type robotsCacheEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
	allowAll  bool // robots.txt absent (4xx)
}

// NewRobotsChecker creates a new RobotsChecker. Every robots.txt request is
// bounded by timeout.
func NewRobotsChecker(httpClient *http.Client, userAgent string, cacheTTL, timeout time.Duration) *RobotsChecker {
	if cacheTTL <= 0 {
		cacheTTL = defaultRobotsCacheTTL
	}
	if timeout <= 0 {
		timeout = defaultRobotsTimeout
	}

	return &RobotsChecker{
		httpClient: httpClient,
		userAgent:  userAgent,
		cache:      make(map[string]*robotsCacheEntry),
		cacheTTL:   cacheTTL,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Check consults the host's robots.txt for rawURL. A missing robots.txt
// (4xx other than 429) allows everything. Network failures, 429 and 5xx
// yield RobotsUnknown and are not cached.
func (r *RobotsChecker) Check(ctx context.Context, rawURL string) RobotsCheck {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return unknownCheck(fmt.Errorf("robots: parse url: %w", err))
	}

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return unknownCheck(fmt.Errorf("robots: empty host in url %q", rawURL))
	}

	entry, err := r.getOrFetchEntry(ctx, host, parsed.Scheme)
	if err != nil {
		return unknownCheck(err)
	}

	if entry.allowAll {
		return RobotsCheck{Allowed: true, Status: domain.RobotsAllowed}
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}

	check := RobotsCheck{Status: domain.RobotsDisallowed}
	if group := entry.data.FindGroup(r.userAgent); group != nil {
		check.CrawlDelay = group.CrawlDelay
	}
	if entry.data.TestAgent(path, r.userAgent) {
		check.Allowed = true
		check.Status = domain.RobotsAllowed
	}
	return check
}

func unknownCheck(err error) RobotsCheck {
	return RobotsCheck{Allowed: false, Status: domain.RobotsUnknown, Err: err}
}

func (r *RobotsChecker) getOrFetchEntry(ctx context.Context, host, scheme string) (*robotsCacheEntry, error) {
	if entry, ok := r.getCachedEntry(host); ok {
		return entry, nil
	}
	return r.fetchAndCache(ctx, host, scheme)
}

func (r *RobotsChecker) getCachedEntry(host string) (*robotsCacheEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[host]
	if !ok || r.now().Sub(entry.fetchedAt) > r.cacheTTL {
		return nil, false
	}
	return entry, true
}

func (r *RobotsChecker) fetchAndCache(ctx context.Context, host, scheme string) (*robotsCacheEntry, error) {
	if scheme == "" {
		scheme = "https"
	}

	body, statusCode, err := r.doFetch(ctx, scheme+"://"+host+robotsTxtPath)
	if err != nil {
		return nil, err
	}

	entry, err := r.buildEntry(body, statusCode)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[host] = entry
	r.mu.Unlock()

	return entry, nil
}

func (r *RobotsChecker) doFetch(ctx context.Context, robotsURL string) (body []byte, statusCode int, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("robots: create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("robots: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("robots: read body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// buildEntry turns a robots.txt response into a cache entry. Only 2xx bodies
// are parsed; 429 and 5xx are reported as errors so the status stays unknown.
func (r *RobotsChecker) buildEntry(body []byte, statusCode int) (*robotsCacheEntry, error) {
	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		robots, err := robotstxt.FromBytes(body)
		if err != nil {
			return nil, fmt.Errorf("robots: parse: %w", err)
		}
		return &robotsCacheEntry{data: robots, fetchedAt: r.now()}, nil
	case statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("robots: server returned %d", statusCode)
	default:
		return &robotsCacheEntry{fetchedAt: r.now(), allowAll: true}, nil
	}
}
