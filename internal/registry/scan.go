package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/source-registry/internal/adapters"
	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/events"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

var errRobotsNotAllowed = errors.New("robots.txt does not allow crawling")

// ScanSeed discovers a seed's assets, validates each, maps its TOC and
// persists the results. A failing asset is recorded in ScanResult.Errors and
// the scan moves on. Only storage failures for the source itself and
// cancellation are returned as errors.
func (s *Service) ScanSeed(ctx context.Context, seed domain.Seed, opts domain.ScanOptions) (*domain.ScanResult, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	start := time.Now()
	log := s.log.With(logger.String("seed", seed.Name), logger.String("type", seed.Type))
	result := &domain.ScanResult{Assets: []*domain.Asset{}, Errors: []string{}}

	src, err := s.beginSourceScan(ctx, seed)
	if err != nil {
		return nil, err
	}
	result.Source = src
	log.Info("Scan started", logger.String("source_id", src.ID), logger.Bool("skip_scanned", opts.SkipScanned))

	adapter, err := s.adapterFor(seed)
	if err != nil {
		return s.finishScan(ctx, seed, result, start, err)
	}

	discoverStart := time.Now()
	candidates, err := adapter.DiscoverAssets(ctx, seed.BaseURL, seed.Config)
	s.appendLog(ctx, &domain.ScanLog{
		SourceID:   &src.ID,
		Action:     ActionDiscover,
		URL:        seed.BaseURL,
		Outcome:    outcome(err),
		DurationMs: time.Since(discoverStart).Milliseconds(),
		Details:    domain.JSONBMap{"candidates": len(candidates), "error": errString(err)},
	})
	if err != nil {
		log.Error("Asset discovery failed", logger.Error(err))
		return s.finishScan(ctx, seed, result, start, fmt.Errorf("discover assets: %w", err))
	}
	log.Info("Assets discovered", logger.Int("candidates", len(candidates)))

	succeeded, blocked := 0, 0
	for _, candidate := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Errors = append(result.Errors, ctxErr.Error())
			break
		}

		if opts.SkipScanned {
			if existing, getErr := s.store.GetAssetBySlug(ctx, src.ID, candidate.Slug); getErr == nil && existing.Scanned() {
				result.AssetsSkipped++
				result.Assets = append(result.Assets, existing)
				s.metrics.ObserveAsset(domain.ScanOutcomeSkipped)
				s.appendLog(ctx, &domain.ScanLog{
					SourceID: &src.ID,
					AssetID:  &existing.ID,
					Action:   ActionSkipAsset,
					URL:      candidate.URL,
					Outcome:  domain.ScanOutcomeSkipped,
				})
				log.Debug("Skipping scanned asset", logger.String("slug", candidate.Slug))
				continue
			}
		}

		result.AssetsScanned++
		asset, nodes, scanErr := s.scanAsset(ctx, adapter, src, seed, candidate)
		if asset != nil {
			result.Assets = append(result.Assets, asset)
		}
		if scanErr != nil {
			s.metrics.ObserveAsset(domain.ScanOutcomeFailure)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", candidate.Slug, scanErr))
			log.Warn("Asset scan failed", logger.String("slug", candidate.Slug), logger.Error(scanErr))
			continue
		}
		if asset.ScanStatus == domain.ScanStatusBlocked {
			s.metrics.ObserveAsset(domain.ScanOutcomeBlocked)
			blocked++
			log.Info("Asset blocked by robots.txt",
				logger.String("slug", candidate.Slug),
				logger.String("robots_status", string(asset.RobotsStatus)),
			)
			continue
		}
		s.metrics.ObserveAsset(domain.ScanOutcomeSuccess)
		succeeded++
		result.NodesMapped += nodes
	}

	var scanErr error
	if len(candidates) > 0 && succeeded == 0 && blocked == 0 && result.AssetsSkipped == 0 {
		scanErr = errors.New("no asset could be scanned")
	}
	return s.finishScan(ctx, seed, result, start, scanErr)
}

func (s *Service) beginSourceScan(ctx context.Context, seed domain.Seed) (*domain.Source, error) {
	src, err := s.store.GetSourceByName(ctx, seed.Name)
	if err != nil {
		src = &domain.Source{Name: seed.Name}
	}
	src.Type = seed.Type
	src.BaseURL = seed.BaseURL
	src.RateLimit = s.rateFor(seed)
	src.LicenseName = seed.License
	src.RobotsStatus = s.fetcher.CheckRobots(ctx, seed.BaseURL).Status
	src.ScanStatus = domain.ScanStatusScanning
	src.ScanError = ""

	if err = s.store.UpsertSource(ctx, src); err != nil {
		return nil, fmt.Errorf("persist source %s: %w", seed.Name, err)
	}
	return src, nil
}

// finishScan records the source status and the summary log. fatal marks the
// whole scan as failed.
func (s *Service) finishScan(ctx context.Context, seed domain.Seed, result *domain.ScanResult, start time.Time, fatal error) (*domain.ScanResult, error) {
	src := result.Source
	now := s.now()

	switch {
	case fatal != nil:
		result.Errors = append(result.Errors, fatal.Error())
		src.ScanStatus = domain.ScanStatusFailed
		src.ScanError = fatal.Error()
	case len(result.Errors) > 0:
		src.ScanStatus = domain.ScanStatusPartial
		src.ScanError = fmt.Sprintf("%d asset(s) failed", len(result.Errors))
	default:
		src.ScanStatus = domain.ScanStatusCompleted
	}
	src.LastScannedAt = &now

	result.Success = fatal == nil
	result.Duration = time.Since(start)
	result.DurationMs = result.Duration.Milliseconds()

	// the source row must reflect the outcome even when the scan ctx is done
	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.UpsertSource(persistCtx, src); err != nil {
		return result, fmt.Errorf("persist source status %s: %w", seed.Name, err)
	}

	s.appendLog(persistCtx, &domain.ScanLog{
		SourceID:   &src.ID,
		Action:     ActionScanSeed,
		URL:        seed.BaseURL,
		Outcome:    outcome(fatal),
		DurationMs: result.DurationMs,
		Details: domain.JSONBMap{
			"assets_scanned": result.AssetsScanned,
			"assets_skipped": result.AssetsSkipped,
			"nodes_mapped":   result.NodesMapped,
			"errors":         len(result.Errors),
		},
	})
	s.metrics.ObserveScan(seed.Name, src.ScanStatus, result.NodesMapped)
	s.publisher.PublishAsync(events.RegistryEvent{
		EventType: events.ScanCompleted,
		SubjectID: src.ID,
		Payload: events.ScanCompletedPayload{
			SeedName:      seed.Name,
			Success:       result.Success,
			DurationMs:    result.DurationMs,
			AssetsScanned: result.AssetsScanned,
			AssetsSkipped: result.AssetsSkipped,
			NodesMapped:   result.NodesMapped,
			Errors:        result.Errors,
		},
	})

	s.log.Info("Scan finished",
		logger.String("seed", seed.Name),
		logger.String("status", src.ScanStatus),
		logger.Int("assets_scanned", result.AssetsScanned),
		logger.Int("assets_skipped", result.AssetsSkipped),
		logger.Int("nodes_mapped", result.NodesMapped),
		logger.Int("errors", len(result.Errors)),
		logger.Duration("duration", result.Duration),
	)
	return result, nil
}

// scanAsset validates a candidate, maps its TOC and persists both. The asset
// is persisted even when mapping fails so its status is visible. An asset
// that robots.txt does not allow comes back with ScanStatusBlocked and a nil
// error; its stale TOC is dropped and it is deactivated.
func (s *Service) scanAsset(
	ctx context.Context,
	adapter adapters.Adapter,
	src *domain.Source,
	seed domain.Seed,
	candidate domain.AssetCandidate,
) (*domain.Asset, int, error) {
	start := time.Now()

	asset, err := s.store.GetAssetBySlug(ctx, src.ID, candidate.Slug)
	if err != nil {
		asset = &domain.Asset{SourceID: src.ID, Slug: candidate.Slug}
	}
	asset.Title = candidate.Title
	asset.URL = candidate.URL
	asset.Description = candidate.Description
	asset.Subjects = domain.StringList(firstNonEmpty(candidate.Subjects, seed.Subjects))
	asset.Categories = domain.StringList(candidate.Categories)
	asset.SelectorHints = domain.StringList(candidate.SelectorHints)

	var nodes []domain.TocNode
	scanErr := s.validateAndMap(ctx, adapter, seed, candidate, asset, &nodes)

	now := s.now()
	asset.LastScannedAt = &now
	blocked := errors.Is(scanErr, errRobotsNotAllowed)
	switch {
	case blocked:
		asset.ScanStatus = domain.ScanStatusBlocked
		asset.ScanError = scanErr.Error()
		asset.TocNodeCount = 0
		asset.TocMaxDepth = 0
	case scanErr != nil:
		asset.ScanStatus = domain.ScanStatusFailed
		asset.ScanError = scanErr.Error()
	default:
		asset.ScanStatus = domain.ScanStatusCompleted
		asset.ScanError = ""
	}

	if err = s.store.UpsertAsset(ctx, asset); err != nil {
		return nil, 0, fmt.Errorf("persist asset: %w", err)
	}
	switch {
	case blocked:
		scanErr = s.blockAsset(ctx, asset)
	case scanErr == nil:
		if err = s.store.ReplaceTocNodes(ctx, asset.ID, nodes); err != nil {
			scanErr = fmt.Errorf("persist toc: %w", err)
			asset.TocExtracted = false
		}
	}
	if scanErr != nil && asset.ScanStatus != domain.ScanStatusFailed {
		asset.ScanStatus = domain.ScanStatusFailed
		asset.ScanError = scanErr.Error()
		if markErr := s.store.UpsertAsset(ctx, asset); markErr != nil {
			s.log.Warn("Failed to mark asset failed", logger.String("asset_id", asset.ID), logger.Error(markErr))
		}
	}

	logOutcome := outcome(scanErr)
	if blocked && scanErr == nil {
		logOutcome = domain.ScanOutcomeBlocked
	}
	s.appendLog(ctx, &domain.ScanLog{
		SourceID:   &src.ID,
		AssetID:    &asset.ID,
		Action:     ActionScanAsset,
		URL:        candidate.URL,
		Outcome:    logOutcome,
		DurationMs: time.Since(start).Milliseconds(),
		Details: domain.JSONBMap{
			"slug":               candidate.Slug,
			"robots_status":      string(asset.RobotsStatus),
			"license_name":       asset.LicenseName,
			"license_confidence": asset.LicenseConfidence,
			"toc_node_count":     asset.TocNodeCount,
			"error":              errString(scanErr),
			"scan_status":        asset.ScanStatus,
		},
	})

	if scanErr != nil {
		return asset, 0, scanErr
	}
	return asset, len(nodes), nil
}

// blockAsset clears the TOC of an asset robots.txt no longer allows and
// takes it out of grounding.
func (s *Service) blockAsset(ctx context.Context, asset *domain.Asset) error {
	if err := s.store.ReplaceTocNodes(ctx, asset.ID, nil); err != nil {
		return fmt.Errorf("clear toc: %w", err)
	}
	if asset.Active {
		if err := s.store.SetAssetActive(ctx, asset.ID, false); err != nil {
			return fmt.Errorf("deactivate blocked asset: %w", err)
		}
		asset.Active = false
	}
	return nil
}

// validateAndMap always validates before mapping. Mapping is skipped when
// robots.txt does not allow the asset.
func (s *Service) validateAndMap(
	ctx context.Context,
	adapter adapters.Adapter,
	seed domain.Seed,
	candidate domain.AssetCandidate,
	asset *domain.Asset,
	nodes *[]domain.TocNode,
) error {
	validation, err := adapter.Validate(ctx, candidate, seed.BaseURL)
	if err != nil {
		asset.RobotsStatus = domain.RobotsUnknown
		return fmt.Errorf("validate: %w", err)
	}
	asset.RobotsStatus = validation.RobotsStatus
	asset.LicenseName = validation.LicenseName
	asset.LicenseURL = validation.LicenseURL
	asset.LicenseConfidence = validation.LicenseConfidence

	if validation.RobotsStatus != domain.RobotsAllowed {
		asset.TocExtracted = false
		return fmt.Errorf("%w (%s)", errRobotsNotAllowed, validation.RobotsStatus)
	}

	mapped, err := adapter.MapToc(ctx, candidate, seed.BaseURL)
	if err == nil && len(mapped) == 0 {
		err = adapters.ErrNoToc
	}
	if err == nil {
		err = toc.Validate(mapped)
	}
	if err != nil {
		asset.TocExtracted = false
		asset.TocNodeCount = 0
		asset.TocMaxDepth = 0
		return fmt.Errorf("map toc: %w", err)
	}

	asset.TocExtracted = true
	asset.TocNodeCount = len(mapped)
	asset.TocMaxDepth = toc.MaxDepth(mapped)
	*nodes = mapped
	return nil
}

func (s *Service) appendLog(ctx context.Context, entry *domain.ScanLog) {
	if err := s.store.AppendScanLog(ctx, entry); err != nil {
		s.log.Warn("Failed to append scan log", logger.String("action", entry.Action), logger.Error(err))
	}
}

func outcome(err error) string {
	if err != nil {
		return domain.ScanOutcomeFailure
	}
	return domain.ScanOutcomeSuccess
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func firstNonEmpty(a, b []string) []string {
	if len(a) > 0 {
		return a
	}
	return b
}
