package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

// Scanner is the part of Service the scheduler drives.
type Scanner interface {
	ScanAllSeeds(ctx context.Context, opts domain.ScanOptions) ([]*domain.ScanResult, error)
}

// Scheduler periodically rescans every seed, skipping assets that already
// have a successful scan.
type Scheduler struct {
	scanner Scanner
	spec    string
	log     logger.Logger
	cron    *cron.Cron
	parser  cron.Parser

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler for a standard 5-field cron spec.
func NewScheduler(scanner Scanner, spec string, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scanner: scanner,
		spec:    spec,
		log:     log.With(logger.String("component", "scheduler")),
		cron:    cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		parser:  parser,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Next returns the next run time after from.
func (s *Scheduler) Next(from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(s.spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron spec %q: %w", s.spec, err)
	}
	return schedule.Next(from), nil
}

// Start registers the scan job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.RunOnce); err != nil {
		return fmt.Errorf("schedule scan %q: %w", s.spec, err)
	}
	s.cron.Start()

	next, _ := s.Next(time.Now())
	s.log.Info("Scan scheduler started", logger.String("spec", s.spec), logger.String("next_run", next.Format(time.RFC3339)))
	return nil
}

// RunOnce scans all seeds with skipScanned set.
func (s *Scheduler) RunOnce() {
	s.wg.Add(1)
	defer s.wg.Done()

	start := time.Now()
	results, err := s.scanner.ScanAllSeeds(s.ctx, domain.ScanOptions{SkipScanned: true})
	if err != nil {
		s.log.Error("Scheduled scan failed", logger.Error(err))
	}
	s.log.Info("Scheduled scan finished",
		logger.Int("seeds", len(results)),
		logger.Duration("duration", time.Since(start)),
	)
}

// Stop halts the cron loop and waits for a running scan, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Scan scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
