package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
)

const sourceColumns = `id, name, type, base_url, license_name, license_url, robots_status,
	rate_limit, scan_status, scan_error, last_scanned_at, created_at, updated_at`

const assetColumns = `id, source_id, slug, title, url, description, license_name, license_url,
	license_confidence, robots_status, active, toc_extracted, toc_node_count, toc_max_depth,
	selector_hints, subjects, categories, scan_status, scan_error, last_scanned_at, created_at, updated_at`

const tocNodeColumns = `id, asset_id, parent_id, title, url, node_type, depth, sort_order, created_at`

const scanLogColumns = `id, source_id, asset_id, action, url, outcome, duration_ms, details, created_at`

const moduleColumns = `id, title, description, path_context, difficulty, asset_id, source_node_ids,
	content_unavailable, resolution_reasoning, resolved_at, citations, created_at, updated_at`

// SQLStore is a Store backed by postgres or sqlite through sqlx. Queries are
// written with ? placeholders and rebound for the driver.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore creates a store on db.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s %s: %w", what, id, err)
}

func (s *SQLStore) UpsertSource(ctx context.Context, src *domain.Source) error {
	now := s.now()
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	src.UpdatedAt = now

	query := s.q(`
		INSERT INTO sources (` + sourceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			type = excluded.type,
			base_url = excluded.base_url,
			license_name = excluded.license_name,
			license_url = excluded.license_url,
			robots_status = excluded.robots_status,
			rate_limit = excluded.rate_limit,
			scan_status = excluded.scan_status,
			scan_error = excluded.scan_error,
			last_scanned_at = excluded.last_scanned_at,
			updated_at = excluded.updated_at
		RETURNING id, created_at`)

	var row struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, query,
		src.ID, src.Name, src.Type, src.BaseURL, src.LicenseName, src.LicenseURL, src.RobotsStatus,
		src.RateLimit, src.ScanStatus, src.ScanError, src.LastScannedAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert source %s: %w", src.Name, err)
	}

	src.ID, src.CreatedAt = row.ID, row.CreatedAt
	return nil
}

func (s *SQLStore) GetSource(ctx context.Context, id string) (*domain.Source, error) {
	var src domain.Source
	if err := s.db.GetContext(ctx, &src, s.q(`SELECT `+sourceColumns+` FROM sources WHERE id = ?`), id); err != nil {
		return nil, notFound(err, "source", id)
	}
	return &src, nil
}

func (s *SQLStore) GetSourceByName(ctx context.Context, name string) (*domain.Source, error) {
	var src domain.Source
	if err := s.db.GetContext(ctx, &src, s.q(`SELECT `+sourceColumns+` FROM sources WHERE name = ?`), name); err != nil {
		return nil, notFound(err, "source", name)
	}
	return &src, nil
}

func (s *SQLStore) ListSources(ctx context.Context) ([]domain.Source, error) {
	sources := []domain.Source{}
	if err := s.db.SelectContext(ctx, &sources, `SELECT `+sourceColumns+` FROM sources ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

func (s *SQLStore) UpsertAsset(ctx context.Context, asset *domain.Asset) error {
	now := s.now()
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	asset.UpdatedAt = now

	query := s.q(`
		INSERT INTO assets (` + assetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, slug) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			description = excluded.description,
			license_name = excluded.license_name,
			license_url = excluded.license_url,
			license_confidence = excluded.license_confidence,
			robots_status = excluded.robots_status,
			toc_extracted = excluded.toc_extracted,
			toc_node_count = excluded.toc_node_count,
			toc_max_depth = excluded.toc_max_depth,
			selector_hints = excluded.selector_hints,
			subjects = excluded.subjects,
			categories = excluded.categories,
			scan_status = excluded.scan_status,
			scan_error = excluded.scan_error,
			last_scanned_at = excluded.last_scanned_at,
			updated_at = excluded.updated_at
		RETURNING id, active, created_at`)

	var row struct {
		ID        string    `db:"id"`
		Active    bool      `db:"active"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, query,
		asset.ID, asset.SourceID, asset.Slug, asset.Title, asset.URL, asset.Description,
		asset.LicenseName, asset.LicenseURL, asset.LicenseConfidence, asset.RobotsStatus,
		asset.Active, asset.TocExtracted, asset.TocNodeCount, asset.TocMaxDepth,
		asset.SelectorHints, asset.Subjects, asset.Categories,
		asset.ScanStatus, asset.ScanError, asset.LastScannedAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset %s: %w", asset.Slug, err)
	}

	asset.ID, asset.Active, asset.CreatedAt = row.ID, row.Active, row.CreatedAt
	return nil
}

func (s *SQLStore) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	var asset domain.Asset
	if err := s.db.GetContext(ctx, &asset, s.q(`SELECT `+assetColumns+` FROM assets WHERE id = ?`), id); err != nil {
		return nil, notFound(err, "asset", id)
	}
	return &asset, nil
}

func (s *SQLStore) GetAssetBySlug(ctx context.Context, sourceID, slug string) (*domain.Asset, error) {
	var asset domain.Asset
	query := s.q(`SELECT ` + assetColumns + ` FROM assets WHERE source_id = ? AND slug = ?`)
	if err := s.db.GetContext(ctx, &asset, query, sourceID, slug); err != nil {
		return nil, notFound(err, "asset", slug)
	}
	return &asset, nil
}

func (s *SQLStore) ListAssets(ctx context.Context, sourceID string) ([]domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets`
	var args []any
	if sourceID != "" {
		query += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	query += ` ORDER BY title`

	assets := []domain.Asset{}
	if err := s.db.SelectContext(ctx, &assets, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assets, nil
}

func (s *SQLStore) SetAssetActive(ctx context.Context, id string, active bool) error {
	query := s.q(`UPDATE assets SET active = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, active, s.now(), id)
	return execRequireRows(result, err, fmt.Errorf("asset %s: %w", id, ErrNotFound))
}

func (s *SQLStore) ReplaceTocNodes(ctx context.Context, assetID string, nodes []domain.TocNode) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin toc transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, s.q(`DELETE FROM toc_nodes WHERE asset_id = ?`), assetID); err != nil {
		return fmt.Errorf("failed to delete toc nodes for %s: %w", assetID, err)
	}

	insert := s.q(`INSERT INTO toc_nodes (` + tocNodeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	now := s.now()
	for i := range nodes {
		n := &nodes[i]
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		n.AssetID = assetID
		n.CreatedAt = now
		if _, err = tx.ExecContext(ctx, insert,
			n.ID, n.AssetID, n.ParentID, n.Title, n.URL, n.NodeType, n.Depth, n.SortOrder, n.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert toc node %q: %w", n.Title, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit toc nodes for %s: %w", assetID, err)
	}
	return nil
}

func (s *SQLStore) GetTocNodes(ctx context.Context, assetID string) ([]domain.TocNode, error) {
	nodes := []domain.TocNode{}
	query := s.q(`SELECT ` + tocNodeColumns + ` FROM toc_nodes WHERE asset_id = ? ORDER BY sort_order`)
	if err := s.db.SelectContext(ctx, &nodes, query, assetID); err != nil {
		return nil, fmt.Errorf("failed to get toc nodes for %s: %w", assetID, err)
	}
	return nodes, nil
}

func (s *SQLStore) AppendScanLog(ctx context.Context, entry *domain.ScanLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	query := s.q(`INSERT INTO scan_logs (` + scanLogColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.SourceID, entry.AssetID, entry.Action, entry.URL, entry.Outcome,
		entry.DurationMs, entry.Details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append scan log: %w", err)
	}
	return nil
}

func (s *SQLStore) ListScanLogs(ctx context.Context, filter domain.ScanLogFilter) ([]domain.ScanLog, error) {
	var (
		where []string
		args  []any
	)
	if filter.SourceID != "" {
		where = append(where, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if filter.AssetID != "" {
		where = append(where, "asset_id = ?")
		args = append(args, filter.AssetID)
	}

	query := `SELECT ` + scanLogColumns + ` FROM scan_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	logs := []domain.ScanLog{}
	if err := s.db.SelectContext(ctx, &logs, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list scan logs: %w", err)
	}
	return logs, nil
}

func (s *SQLStore) GetModule(ctx context.Context, id string) (*domain.Module, error) {
	var m domain.Module
	if err := s.db.GetContext(ctx, &m, s.q(`SELECT `+moduleColumns+` FROM modules WHERE id = ?`), id); err != nil {
		return nil, notFound(err, "module", id)
	}
	return &m, nil
}

func (s *SQLStore) SaveModule(ctx context.Context, m *domain.Module) error {
	now := s.now()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := s.q(`
		INSERT INTO modules (` + moduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			path_context = excluded.path_context,
			difficulty = excluded.difficulty,
			asset_id = excluded.asset_id,
			source_node_ids = excluded.source_node_ids,
			content_unavailable = excluded.content_unavailable,
			resolution_reasoning = excluded.resolution_reasoning,
			resolved_at = excluded.resolved_at,
			citations = excluded.citations,
			updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.Title, m.Description, m.PathContext, m.Difficulty, m.AssetID, m.SourceNodeIDs,
		m.ContentUnavailable, m.ResolutionReasoning, m.ResolvedAt, m.Citations, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save module %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var _ Store = (*SQLStore)(nil)
