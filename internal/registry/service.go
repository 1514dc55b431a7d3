// Package registry discovers sources with the site adapters and catalogs their
// assets and tables of contents.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/source-registry/internal/adapters"
	"github.com/jonesrussell/north-cloud/source-registry/internal/config"
	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/events"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
	"github.com/jonesrussell/north-cloud/source-registry/internal/storage"
)

const defaultRatePerMinute = 30

// Scan log actions.
const (
	ActionDiscover   = "discover"
	ActionScanAsset  = "scan_asset"
	ActionSkipAsset  = "skip_asset"
	ActionScanSeed   = "scan_seed"
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
)

var (
	// ErrActivationBlocked is returned when an asset's robots or license
	// status forbids activation.
	ErrActivationBlocked = errors.New("asset cannot be activated")
	// ErrSeedNotFound is returned for an unknown seed name.
	ErrSeedNotFound = config.ErrSeedNotFound
)

// AdapterFactory builds the adapter for a seed.
type AdapterFactory func(seed domain.Seed) (adapters.Adapter, error)

// Config holds the Service collaborators.
type Config struct {
	Store   storage.Store
	Fetcher adapters.PageFetcher
	Seeds   []domain.Seed
	// DefaultRateLimit applies to seeds without a rate_limit.
	DefaultRateLimit int
	UserAgent        string
	// Adapters overrides adapter construction.
	Adapters  AdapterFactory
	Publisher *events.Publisher
	Metrics   *metrics.Metrics
	Logger    logger.Logger
}

// Service runs scans and exposes the catalog.
type Service struct {
	store     storage.Store
	fetcher   adapters.PageFetcher
	seeds     []domain.Seed
	rpm       int
	userAgent string
	factory   AdapterFactory
	publisher *events.Publisher
	metrics   *metrics.Metrics
	log       logger.Logger
	now       func() time.Time

	// adapters are kept per seed so adapter caches survive between scans.
	adaptersMu sync.Mutex
	adapters   map[string]adapters.Adapter

	// scanMu serializes scans.
	scanMu sync.Mutex
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.DefaultRateLimit <= 0 {
		cfg.DefaultRateLimit = defaultRatePerMinute
	}

	s := &Service{
		store:     cfg.Store,
		fetcher:   cfg.Fetcher,
		seeds:     cfg.Seeds,
		rpm:       cfg.DefaultRateLimit,
		userAgent: cfg.UserAgent,
		factory:   cfg.Adapters,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		log:       cfg.Logger.With(logger.String("component", "registry")),
		now:       func() time.Time { return time.Now().UTC() },
		adapters:  make(map[string]adapters.Adapter),
	}
	if s.factory == nil {
		s.factory = s.defaultAdapter
	}
	return s
}

func (s *Service) rateFor(seed domain.Seed) int {
	if seed.RateLimit > 0 {
		return seed.RateLimit
	}
	return s.rpm
}

func (s *Service) defaultAdapter(seed domain.Seed) (adapters.Adapter, error) {
	return adapters.ForType(seed.Type, adapters.Deps{
		Fetcher:       s.fetcher,
		Logger:        s.log,
		RatePerMinute: s.rateFor(seed),
		License:       seed.License,
		UserAgent:     s.userAgent,
	})
}

func (s *Service) adapterFor(seed domain.Seed) (adapters.Adapter, error) {
	s.adaptersMu.Lock()
	defer s.adaptersMu.Unlock()

	if a, ok := s.adapters[seed.Name]; ok && a.SourceType() == seed.Type {
		return a, nil
	}
	a, err := s.factory(seed)
	if err != nil {
		return nil, err
	}
	s.adapters[seed.Name] = a
	return a, nil
}

// Seeds returns the configured seeds.
func (s *Service) Seeds() []domain.Seed {
	return append([]domain.Seed(nil), s.seeds...)
}

// FindSeed returns the configured seed called name.
func (s *Service) FindSeed(name string) (domain.Seed, error) {
	return config.FindSeed(s.seeds, name)
}

// ScanSourceByID rescans a persisted source. The configured seed of the same
// name supplies adapter config; without one the source record is used.
func (s *Service) ScanSourceByID(ctx context.Context, id string, opts domain.ScanOptions) (*domain.ScanResult, error) {
	src, err := s.store.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}

	seed, seedErr := s.FindSeed(src.Name)
	if seedErr != nil {
		seed = domain.Seed{
			Name:      src.Name,
			Type:      src.Type,
			BaseURL:   src.BaseURL,
			RateLimit: src.RateLimit,
			License:   src.LicenseName,
		}
	}
	return s.ScanSeed(ctx, seed, opts)
}

// ScanAllSeeds scans every configured seed in order. A failing seed does not
// stop the others; hard errors are joined into the returned error.
func (s *Service) ScanAllSeeds(ctx context.Context, opts domain.ScanOptions) ([]*domain.ScanResult, error) {
	results := make([]*domain.ScanResult, 0, len(s.seeds))
	var errs []error
	for _, seed := range s.seeds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result, err := s.ScanSeed(ctx, seed, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", seed.Name, err))
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}
