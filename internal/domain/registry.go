// Package domain holds the registry and grounding data model.
package domain

import "time"

// RobotsStatus is the outcome of a robots.txt check.
// Unknown is never treated as allowed.
type RobotsStatus string

const (
	RobotsAllowed    RobotsStatus = "allowed"
	RobotsDisallowed RobotsStatus = "disallowed"
	RobotsUnknown    RobotsStatus = "unknown"
)

// Source types with a registered adapter.
const (
	SourceTypeOpenStax = "openstax"
	SourceTypeSphinx   = "sphinx"
	SourceTypeGeneric  = "generic_html"
	SourceTypeMITOCW   = "mit_ocw"
)

// Scan status values for sources and assets.
const (
	ScanStatusPending   = "pending"
	ScanStatusScanning  = "scanning"
	ScanStatusCompleted = "completed"
	ScanStatusPartial   = "partial"
	ScanStatusFailed    = "failed"
	// ScanStatusBlocked marks an asset whose robots.txt status forbids
	// mapping. It is a recorded policy outcome, not a failure.
	ScanStatusBlocked = "blocked"
)

// NodeType classifies a TOC entry.
type NodeType string

const (
	NodeTypeRoot       NodeType = "root"
	NodeTypePart       NodeType = "part"
	NodeTypeChapter    NodeType = "chapter"
	NodeTypeSection    NodeType = "section"
	NodeTypeSubsection NodeType = "subsection"
	NodeTypePage       NodeType = "page"
	NodeTypeOther      NodeType = "other"
)

// Seed is a named source definition used to bootstrap discovery.
type Seed struct {
	Name      string         `json:"name"                yaml:"name"`
	Type      string         `json:"type"                yaml:"type"`
	BaseURL   string         `json:"base_url"            yaml:"base_url"`
	RateLimit int            `json:"rate_limit"          yaml:"rate_limit"`
	License   string         `json:"license,omitempty"   yaml:"license"`
	Config    map[string]any `json:"config,omitempty"    yaml:"config"`
	Subjects  []string       `json:"subjects,omitempty"  yaml:"subjects"`
}

// Source is a cataloged origin of learnable assets.
type Source struct {
	ID            string       `db:"id"              json:"id"`
	Name          string       `db:"name"            json:"name"`
	Type          string       `db:"type"            json:"type"`
	BaseURL       string       `db:"base_url"        json:"base_url"`
	LicenseName   string       `db:"license_name"    json:"license_name,omitempty"`
	LicenseURL    string       `db:"license_url"     json:"license_url,omitempty"`
	RobotsStatus  RobotsStatus `db:"robots_status"   json:"robots_status"`
	RateLimit     int          `db:"rate_limit"      json:"rate_limit"`
	ScanStatus    string       `db:"scan_status"     json:"scan_status"`
	ScanError     string       `db:"scan_error"      json:"scan_error,omitempty"`
	LastScannedAt *time.Time   `db:"last_scanned_at" json:"last_scanned_at,omitempty"`
	CreatedAt     time.Time    `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"      json:"updated_at"`
}

// Asset is one learnable unit within a Source.
type Asset struct {
	ID                string       `db:"id"                 json:"id"`
	SourceID          string       `db:"source_id"          json:"source_id"`
	Slug              string       `db:"slug"               json:"slug"`
	Title             string       `db:"title"              json:"title"`
	URL               string       `db:"url"                json:"url"`
	Description       string       `db:"description"        json:"description,omitempty"`
	LicenseName       string       `db:"license_name"       json:"license_name,omitempty"`
	LicenseURL        string       `db:"license_url"        json:"license_url,omitempty"`
	LicenseConfidence float64      `db:"license_confidence" json:"license_confidence"`
	RobotsStatus      RobotsStatus `db:"robots_status"      json:"robots_status"`
	Active            bool         `db:"active"             json:"active"`
	TocExtracted      bool         `db:"toc_extracted"      json:"toc_extracted"`
	TocNodeCount      int          `db:"toc_node_count"     json:"toc_node_count"`
	TocMaxDepth       int          `db:"toc_max_depth"      json:"toc_max_depth"`
	SelectorHints     StringList   `db:"selector_hints"     json:"selector_hints,omitempty"`
	Subjects          StringList   `db:"subjects"           json:"subjects,omitempty"`
	Categories        StringList   `db:"categories"         json:"categories,omitempty"`
	ScanStatus        string       `db:"scan_status"        json:"scan_status"`
	ScanError         string       `db:"scan_error"         json:"scan_error,omitempty"`
	LastScannedAt     *time.Time   `db:"last_scanned_at"    json:"last_scanned_at,omitempty"`
	CreatedAt         time.Time    `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"         json:"updated_at"`
}

// Scanned reports whether the asset has a prior successful scan. A scan that
// ended in a policy block counts: rescanning would only repeat the verdict.
func (a *Asset) Scanned() bool {
	if a.LastScannedAt == nil {
		return false
	}
	return a.ScanStatus == ScanStatusCompleted || a.ScanStatus == ScanStatusBlocked
}

// LicenseKnown reports whether a license was detected for the asset.
func (a *Asset) LicenseKnown() bool {
	return a.LicenseName != ""
}

// TocNode is one entry of an asset's table of contents.
// A nil ParentID marks a root; a non-nil ParentID references a node of the same asset.
type TocNode struct {
	ID        string    `db:"id"         json:"id"`
	AssetID   string    `db:"asset_id"   json:"asset_id"`
	ParentID  *string   `db:"parent_id"  json:"parent_id,omitempty"`
	Title     string    `db:"title"      json:"title"`
	URL       string    `db:"url"        json:"url"`
	NodeType  NodeType  `db:"node_type"  json:"node_type"`
	Depth     int       `db:"depth"      json:"depth"`
	SortOrder int       `db:"sort_order" json:"sort_order"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Scan log outcomes.
const (
	ScanOutcomeSuccess = "success"
	ScanOutcomeFailure = "failure"
	ScanOutcomeSkipped = "skipped"
	ScanOutcomeBlocked = "blocked"
)

// ScanLog is an immutable record of one scan action.
type ScanLog struct {
	ID         string    `db:"id"          json:"id"`
	SourceID   *string   `db:"source_id"   json:"source_id,omitempty"`
	AssetID    *string   `db:"asset_id"    json:"asset_id,omitempty"`
	Action     string    `db:"action"      json:"action"`
	URL        string    `db:"url"         json:"url"`
	Outcome    string    `db:"outcome"     json:"outcome"`
	DurationMs int64     `db:"duration_ms" json:"duration_ms"`
	Details    JSONBMap  `db:"details"     json:"details,omitempty"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}

// ScanLogFilter narrows a scan log query. Zero values are ignored.
type ScanLogFilter struct {
	SourceID string
	AssetID  string
	Limit    int
}

// AssetCandidate is an asset discovered by an adapter, before persistence.
type AssetCandidate struct {
	Slug          string
	Title         string
	URL           string
	Description   string
	Subjects      []string
	Categories    []string
	SelectorHints []string
	Metadata      map[string]any
}

// ValidationResult is the license and robots outcome for a candidate.
type ValidationResult struct {
	LicenseName       string       `json:"license_name,omitempty"`
	LicenseURL        string       `json:"license_url,omitempty"`
	LicenseConfidence float64      `json:"license_confidence"`
	RobotsStatus      RobotsStatus `json:"robots_status"`
}

// ScanOptions control a registry scan.
type ScanOptions struct {
	SkipScanned bool
}

// ScanResult summarizes one seed scan.
type ScanResult struct {
	Success       bool          `json:"success"`
	Duration      time.Duration `json:"-"`
	DurationMs    int64         `json:"duration"`
	Source        *Source       `json:"source"`
	Assets        []*Asset      `json:"-"`
	AssetsScanned int           `json:"assets_scanned"`
	AssetsSkipped int           `json:"assets_skipped"`
	NodesMapped   int           `json:"nodes_mapped"`
	Errors        []string      `json:"errors"`
}
