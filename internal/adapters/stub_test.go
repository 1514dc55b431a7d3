package adapters

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

// stubFetcher serves canned bodies keyed by URL and records every request.
type stubFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	robots   fetcher.RobotsCheck
	requests []string
}

func newStubFetcher(pages map[string]string) *stubFetcher {
	return &stubFetcher{
		pages:  pages,
		robots: fetcher.RobotsCheck{Allowed: true, Status: domain.RobotsAllowed},
	}
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string, _ fetcher.Options) fetcher.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, rawURL)

	body, ok := s.pages[rawURL]
	if !ok {
		return fetcher.Result{Status: http.StatusNotFound, Err: &fetcher.StatusError{Code: http.StatusNotFound}}
	}
	return fetcher.Result{OK: true, Status: http.StatusOK, Body: []byte(body), FinalURL: rawURL}
}

func (s *stubFetcher) CheckRobots(context.Context, string) fetcher.RobotsCheck {
	return s.robots
}

func (s *stubFetcher) requestCount(rawURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r == rawURL {
			n++
		}
	}
	return n
}

// pacedFetcher is a stubFetcher that also hands out a crawl transport and
// records every request that goes through it.
type pacedFetcher struct {
	*stubFetcher

	mu    sync.Mutex
	rpm   int
	paths []string
}

func (p *pacedFetcher) CrawlTransport(rpm int) http.RoundTripper {
	p.mu.Lock()
	p.rpm = rpm
	p.mu.Unlock()
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		p.mu.Lock()
		p.paths = append(p.paths, req.URL.Path)
		p.mu.Unlock()
		return http.DefaultTransport.RoundTrip(req)
	})
}

func (p *pacedFetcher) RequestTimeout() time.Duration { return 5 * time.Second }

func (p *pacedFetcher) transportPaths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.paths)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func newTestAdapter(sourceType string, f PageFetcher) Adapter {
	a, err := ForType(sourceType, Deps{Fetcher: f, Logger: logger.NewNop(), RatePerMinute: 60000, License: "CC BY 4.0"})
	if err != nil {
		panic(err)
	}
	return a
}

func titles(nodes []domain.TocNode) []string {
	out := make([]string, len(nodes))
	for i := range nodes {
		out[i] = nodes[i].Title
	}
	return out
}
