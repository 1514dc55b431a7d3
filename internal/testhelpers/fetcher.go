package testhelpers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
)

// ErrPageNotFound is the fetch error for URLs StaticFetcher does not serve.
var ErrPageNotFound = errors.New("page not found")

// StaticFetcher serves pages from memory and allows every robots check.
// It records the highest number of concurrent fetches.
type StaticFetcher struct {
	Pages map[string]string
	Delay time.Duration

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	fetched     []string
}

// NewStaticFetcher creates a StaticFetcher serving pages.
func NewStaticFetcher(pages map[string]string) *StaticFetcher {
	return &StaticFetcher{Pages: pages}
}

func (f *StaticFetcher) Fetch(ctx context.Context, rawURL string, _ fetcher.Options) fetcher.Result {
	f.mu.Lock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.fetched = append(f.fetched, rawURL)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return fetcher.Result{Err: ctx.Err()}
		case <-time.After(f.Delay):
		}
	}

	body, ok := f.Pages[rawURL]
	if !ok {
		return fetcher.Result{Status: http.StatusNotFound, Err: ErrPageNotFound}
	}
	return fetcher.Result{OK: true, Status: http.StatusOK, Body: []byte(body), FinalURL: rawURL}
}

func (f *StaticFetcher) CheckRobots(context.Context, string) fetcher.RobotsCheck {
	return fetcher.RobotsCheck{Allowed: true, Status: domain.RobotsAllowed}
}

// MaxInFlight returns the highest observed fetch concurrency.
func (f *StaticFetcher) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// Fetched returns the fetched URLs in call order.
func (f *StaticFetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}
