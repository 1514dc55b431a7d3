// Package storage persists sources, assets, TOC nodes, scan logs and module
// resolutions.
package storage

import (
	"context"
	"errors"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence port used by the registry and grounding services.
type Store interface {
	// UpsertSource inserts or updates a source by name and sets its ID and
	// CreatedAt to the persisted values.
	UpsertSource(ctx context.Context, src *domain.Source) error
	GetSource(ctx context.Context, id string) (*domain.Source, error)
	GetSourceByName(ctx context.Context, name string) (*domain.Source, error)
	ListSources(ctx context.Context) ([]domain.Source, error)

	// UpsertAsset inserts or updates an asset by (source_id, slug). The
	// persisted active flag is never overwritten and is copied back to asset.
	UpsertAsset(ctx context.Context, asset *domain.Asset) error
	GetAsset(ctx context.Context, id string) (*domain.Asset, error)
	GetAssetBySlug(ctx context.Context, sourceID, slug string) (*domain.Asset, error)
	// ListAssets returns all assets, or those of one source when sourceID is set.
	ListAssets(ctx context.Context, sourceID string) ([]domain.Asset, error)
	SetAssetActive(ctx context.Context, id string, active bool) error

	// ReplaceTocNodes deletes an asset's nodes and inserts nodes in one
	// transaction.
	ReplaceTocNodes(ctx context.Context, assetID string, nodes []domain.TocNode) error
	GetTocNodes(ctx context.Context, assetID string) ([]domain.TocNode, error)

	AppendScanLog(ctx context.Context, entry *domain.ScanLog) error
	ListScanLogs(ctx context.Context, filter domain.ScanLogFilter) ([]domain.ScanLog, error)

	GetModule(ctx context.Context, id string) (*domain.Module, error)
	// SaveModule inserts or replaces a module by id.
	SaveModule(ctx context.Context, m *domain.Module) error

	Ping(ctx context.Context) error
}

// DefaultLogLimit caps ListScanLogs when the filter sets no limit.
const DefaultLogLimit = 100
