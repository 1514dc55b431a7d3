// Package testhelpers provides shared test doubles for the source registry.
package testhelpers

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/storage"
)

// MemoryStore implements storage.Store in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	sources map[string]domain.Source
	assets  map[string]domain.Asset
	nodes   map[string][]domain.TocNode
	logs    []domain.ScanLog
	modules map[string]domain.Module

	// FailReplaceToc makes ReplaceTocNodes fail for the listed asset slugs.
	FailReplaceToc map[string]error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sources:        make(map[string]domain.Source),
		assets:         make(map[string]domain.Asset),
		nodes:          make(map[string][]domain.TocNode),
		modules:        make(map[string]domain.Module),
		FailReplaceToc: make(map[string]error),
	}
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, storage.ErrNotFound)
}

func (m *MemoryStore) UpsertSource(_ context.Context, src *domain.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for id := range m.sources {
		if m.sources[id].Name == src.Name {
			src.ID, src.CreatedAt = id, m.sources[id].CreatedAt
			break
		}
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now
	m.sources[src.ID] = *src
	return nil
}

func (m *MemoryStore) GetSource(_ context.Context, id string) (*domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[id]
	if !ok {
		return nil, notFound("source", id)
	}
	return &src, nil
}

func (m *MemoryStore) GetSourceByName(_ context.Context, name string) (*domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, src := range m.sources {
		if src.Name == name {
			return &src, nil
		}
	}
	return nil, notFound("source", name)
}

func (m *MemoryStore) ListSources(context.Context) ([]domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Source, 0, len(m.sources))
	for _, src := range m.sources {
		out = append(out, src)
	}
	slices.SortFunc(out, func(a, b domain.Source) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *MemoryStore) UpsertAsset(_ context.Context, asset *domain.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for id, existing := range m.assets {
		if existing.SourceID == asset.SourceID && existing.Slug == asset.Slug {
			asset.ID, asset.CreatedAt, asset.Active = id, existing.CreatedAt, existing.Active
			break
		}
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = now
	m.assets[asset.ID] = *asset
	return nil
}

func (m *MemoryStore) GetAsset(_ context.Context, id string) (*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	asset, ok := m.assets[id]
	if !ok {
		return nil, notFound("asset", id)
	}
	return &asset, nil
}

func (m *MemoryStore) GetAssetBySlug(_ context.Context, sourceID, slug string) (*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, asset := range m.assets {
		if asset.SourceID == sourceID && asset.Slug == slug {
			return &asset, nil
		}
	}
	return nil, notFound("asset", slug)
}

func (m *MemoryStore) ListAssets(_ context.Context, sourceID string) ([]domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Asset{}
	for _, asset := range m.assets {
		if sourceID == "" || asset.SourceID == sourceID {
			out = append(out, asset)
		}
	}
	slices.SortFunc(out, func(a, b domain.Asset) int { return cmp.Compare(a.Title, b.Title) })
	return out, nil
}

func (m *MemoryStore) SetAssetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[id]
	if !ok {
		return notFound("asset", id)
	}
	asset.Active = active
	asset.UpdatedAt = time.Now().UTC()
	m.assets[id] = asset
	return nil
}

func (m *MemoryStore) ReplaceTocNodes(_ context.Context, assetID string, nodes []domain.TocNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailReplaceToc[m.assets[assetID].Slug]; err != nil {
		return err
	}

	now := time.Now().UTC()
	stored := make([]domain.TocNode, len(nodes))
	for i := range nodes {
		if nodes[i].ID == "" {
			nodes[i].ID = uuid.NewString()
		}
		nodes[i].AssetID = assetID
		nodes[i].CreatedAt = now
		stored[i] = nodes[i]
	}
	m.nodes[assetID] = stored
	return nil
}

func (m *MemoryStore) GetTocNodes(_ context.Context, assetID string) ([]domain.TocNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.nodes[assetID])
	if out == nil {
		out = []domain.TocNode{}
	}
	slices.SortStableFunc(out, func(a, b domain.TocNode) int { return cmp.Compare(a.SortOrder, b.SortOrder) })
	return out, nil
}

func (m *MemoryStore) AppendScanLog(_ context.Context, entry *domain.ScanLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.logs = append(m.logs, *entry)
	return nil
}

// ListScanLogs returns matching logs newest first.
func (m *MemoryStore) ListScanLogs(_ context.Context, filter domain.ScanLogFilter) ([]domain.ScanLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultLogLimit
	}
	out := []domain.ScanLog{}
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := m.logs[i]
		if filter.SourceID != "" && (entry.SourceID == nil || *entry.SourceID != filter.SourceID) {
			continue
		}
		if filter.AssetID != "" && (entry.AssetID == nil || *entry.AssetID != filter.AssetID) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (m *MemoryStore) GetModule(_ context.Context, id string) (*domain.Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.modules[id]
	if !ok {
		return nil, notFound("module", id)
	}
	return &mod, nil
}

func (m *MemoryStore) SaveModule(_ context.Context, mod *domain.Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if mod.ID == "" {
		mod.ID = uuid.NewString()
	}
	if mod.CreatedAt.IsZero() {
		mod.CreatedAt = now
	}
	mod.UpdatedAt = now
	m.modules[mod.ID] = *mod
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// ScanLogs returns every appended log in insertion order.
func (m *MemoryStore) ScanLogs() []domain.ScanLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.logs)
}

var _ storage.Store = (*MemoryStore)(nil)
