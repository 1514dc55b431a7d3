package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/events"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

func (s *Service) GetSources(ctx context.Context) ([]domain.Source, error) {
	return s.store.ListSources(ctx)
}

func (s *Service) GetSource(ctx context.Context, id string) (*domain.Source, error) {
	return s.store.GetSource(ctx, id)
}

// GetAssets lists all assets, or one source's assets when sourceID is set.
func (s *Service) GetAssets(ctx context.Context, sourceID string) ([]domain.Asset, error) {
	return s.store.ListAssets(ctx, sourceID)
}

func (s *Service) GetAssetByID(ctx context.Context, id string) (*domain.Asset, error) {
	return s.store.GetAsset(ctx, id)
}

func (s *Service) GetTocNodes(ctx context.Context, assetID string) ([]domain.TocNode, error) {
	return s.store.GetTocNodes(ctx, assetID)
}

func (s *Service) GetScanLogs(ctx context.Context, filter domain.ScanLogFilter) ([]domain.ScanLog, error) {
	return s.store.ListScanLogs(ctx, filter)
}

// ActivationBlockers lists why an asset may not be activated.
func ActivationBlockers(asset *domain.Asset) []string {
	var reasons []string
	if asset.RobotsStatus != domain.RobotsAllowed {
		reasons = append(reasons, "robots status is "+string(asset.RobotsStatus))
	}
	if !asset.LicenseKnown() {
		reasons = append(reasons, "license is unknown")
	}
	return reasons
}

// ActivateAsset makes an asset available to grounding. Assets whose robots
// status is not allowed or whose license is unknown are refused with
// ErrActivationBlocked.
func (s *Service) ActivateAsset(ctx context.Context, id string) (*domain.Asset, error) {
	asset, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if reasons := ActivationBlockers(asset); len(reasons) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrActivationBlocked, strings.Join(reasons, "; "))
	}
	return s.setActive(ctx, asset, true)
}

// DeactivateAsset withdraws an asset from grounding.
func (s *Service) DeactivateAsset(ctx context.Context, id string) (*domain.Asset, error) {
	asset, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.setActive(ctx, asset, false)
}

func (s *Service) setActive(ctx context.Context, asset *domain.Asset, active bool) (*domain.Asset, error) {
	if err := s.store.SetAssetActive(ctx, asset.ID, active); err != nil {
		return nil, err
	}
	asset.Active = active

	action, eventType := ActionActivate, events.AssetActivated
	if !active {
		action, eventType = ActionDeactivate, events.AssetDeactivated
	}
	s.appendLog(ctx, &domain.ScanLog{
		SourceID: &asset.SourceID,
		AssetID:  &asset.ID,
		Action:   action,
		URL:      asset.URL,
		Outcome:  domain.ScanOutcomeSuccess,
	})
	s.publisher.PublishAsync(events.RegistryEvent{
		EventType: eventType,
		SubjectID: asset.ID,
		Payload:   events.AssetTogglePayload{SourceID: asset.SourceID, Slug: asset.Slug, Title: asset.Title},
	})
	s.log.Info("Asset activation changed", logger.String("asset_id", asset.ID), logger.Bool("active", active))
	return asset, nil
}
