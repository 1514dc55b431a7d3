package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter hands out request permits per host. Each host gets its own
// token bucket with burst 1, so permits for a host are serialized.
type HostLimiter struct {
	mu         sync.Mutex
	hosts      map[string]*hostLimit
	defaultRPM int
}

type hostLimit struct {
	limiter    *rate.Limiter
	rpm        int
	crawlDelay time.Duration
}

// NewHostLimiter creates a limiter that applies defaultRPM requests per
// minute to hosts without an explicit rate.
func NewHostLimiter(defaultRPM int) *HostLimiter {
	if defaultRPM <= 0 {
		defaultRPM = defaultRatePerMinute
	}
	return &HostLimiter{
		hosts:      make(map[string]*hostLimit),
		defaultRPM: defaultRPM,
	}
}

// Wait blocks until host may be requested again. rpm overrides the default
// rate for the host when positive.
func (h *HostLimiter) Wait(ctx context.Context, host string, rpm int) error {
	return h.get(host, rpm).limiter.Wait(ctx)
}

// ApplyCrawlDelay slows host down to one request per delay when that is
// stricter than its configured rate.
func (h *HostLimiter) ApplyCrawlDelay(host string, delay time.Duration) {
	if delay <= 0 {
		return
	}

	hl := h.get(host, 0)

	h.mu.Lock()
	defer h.mu.Unlock()
	if delay > hl.crawlDelay {
		hl.crawlDelay = delay
		hl.limiter.SetLimit(effectiveLimit(hl.rpm, hl.crawlDelay))
	}
}

// Limit returns the current limit for host, mainly for diagnostics.
func (h *HostLimiter) Limit(host string) rate.Limit {
	return h.get(host, 0).limiter.Limit()
}

func (h *HostLimiter) get(host string, rpm int) *hostLimit {
	host = strings.ToLower(host)

	h.mu.Lock()
	defer h.mu.Unlock()

	hl, ok := h.hosts[host]
	if !ok {
		if rpm <= 0 {
			rpm = h.defaultRPM
		}
		hl = &hostLimit{rpm: rpm}
		hl.limiter = rate.NewLimiter(effectiveLimit(rpm, 0), 1)
		h.hosts[host] = hl
		return hl
	}

	if rpm > 0 && rpm != hl.rpm {
		hl.rpm = rpm
		hl.limiter.SetLimit(effectiveLimit(rpm, hl.crawlDelay))
	}
	return hl
}

// effectiveLimit is the stricter of rpm and one request per crawlDelay.
func effectiveLimit(rpm int, crawlDelay time.Duration) rate.Limit {
	limit := rate.Every(time.Minute / time.Duration(rpm))
	if crawlDelay > 0 {
		limit = min(limit, rate.Every(crawlDelay))
	}
	return limit
}
