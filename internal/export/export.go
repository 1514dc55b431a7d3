// Package export writes the registry library as a versioned JSON document.
package export

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

// Version is the export document format version.
const Version = "1.0"

const filePerm = 0o644

// Reader is the subset of storage.Store the export needs.
type Reader interface {
	ListSources(ctx context.Context) ([]domain.Source, error)
	ListAssets(ctx context.Context, sourceID string) ([]domain.Asset, error)
	GetTocNodes(ctx context.Context, assetID string) ([]domain.TocNode, error)
}

// Options narrow the export.
type Options struct {
	// ActiveOnly leaves inactive assets out of the library.
	ActiveOnly bool
}

// Document is the exported library.
type Document struct {
	Version     string         `json:"version"`
	GeneratedAt time.Time      `json:"generatedAt"`
	SourceCount int            `json:"sourceCount"`
	AssetCount  int            `json:"assetCount"`
	NodeCount   int            `json:"nodeCount"`
	Sources     []SourceEntry  `json:"sources"`
	Library     []LibraryEntry `json:"library"`
}

// SourceEntry summarizes one source.
type SourceEntry struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Type          string              `json:"type"`
	BaseURL       string              `json:"baseUrl"`
	License       string              `json:"license,omitempty"`
	RobotsStatus  domain.RobotsStatus `json:"robotsStatus"`
	ScanStatus    string              `json:"scanStatus"`
	LastScannedAt *time.Time          `json:"lastScannedAt,omitempty"`
	AssetCount    int                 `json:"assetCount"`
}

// License is an asset's detected license.
type License struct {
	Name       string  `json:"name,omitempty"`
	URL        string  `json:"url,omitempty"`
	Confidence float64 `json:"confidence"`
}

// LibraryEntry is one asset with its nested table of contents.
type LibraryEntry struct {
	ID         string     `json:"id"`
	SourceID   string     `json:"sourceId"`
	Source     string     `json:"source"`
	Title      string     `json:"title"`
	Slug       string     `json:"slug"`
	URL        string     `json:"url"`
	License    License    `json:"license"`
	Subjects   []string   `json:"subjects"`
	Categories []string   `json:"categories"`
	Active     bool       `json:"active"`
	NodeCount  int        `json:"nodeCount"`
	MaxDepth   int        `json:"maxDepth"`
	Toc        []TocEntry `json:"toc"`
}

// TocEntry is a table of contents node with its children.
type TocEntry struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	URL      string          `json:"url,omitempty"`
	Type     domain.NodeType `json:"type"`
	Depth    int             `json:"depth"`
	Children []TocEntry      `json:"children,omitempty"`
}

// Build reads every source, asset and TOC and assembles the document.
// Sources are ordered by name, the library by source name then title.
func Build(ctx context.Context, r Reader, opts Options) (*Document, error) {
	sources, err := r.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	slices.SortFunc(sources, func(a, b domain.Source) int { return cmp.Compare(a.Name, b.Name) })

	doc := &Document{
		Version:     Version,
		GeneratedAt: time.Now().UTC(),
		Sources:     make([]SourceEntry, 0, len(sources)),
		Library:     []LibraryEntry{},
	}

	for i := range sources {
		src := &sources[i]
		assets, listErr := r.ListAssets(ctx, src.ID)
		if listErr != nil {
			return nil, fmt.Errorf("list assets for %s: %w", src.Name, listErr)
		}

		count := 0
		for j := range assets {
			asset := &assets[j]
			if opts.ActiveOnly && !asset.Active {
				continue
			}
			nodes, nodesErr := r.GetTocNodes(ctx, asset.ID)
			if nodesErr != nil {
				return nil, fmt.Errorf("get toc for %s: %w", asset.ID, nodesErr)
			}
			doc.Library = append(doc.Library, libraryEntry(src, asset, nodes))
			doc.NodeCount += len(nodes)
			count++
		}

		doc.Sources = append(doc.Sources, SourceEntry{
			ID:            src.ID,
			Name:          src.Name,
			Type:          src.Type,
			BaseURL:       src.BaseURL,
			License:       src.LicenseName,
			RobotsStatus:  src.RobotsStatus,
			ScanStatus:    src.ScanStatus,
			LastScannedAt: src.LastScannedAt,
			AssetCount:    count,
		})
	}

	slices.SortStableFunc(doc.Library, func(a, b LibraryEntry) int {
		return cmp.Or(cmp.Compare(a.Source, b.Source), cmp.Compare(a.Title, b.Title))
	})
	doc.SourceCount = len(doc.Sources)
	doc.AssetCount = len(doc.Library)

	return doc, nil
}

func libraryEntry(src *domain.Source, asset *domain.Asset, nodes []domain.TocNode) LibraryEntry {
	return LibraryEntry{
		ID:       asset.ID,
		SourceID: src.ID,
		Source:   src.Name,
		Title:    asset.Title,
		Slug:     asset.Slug,
		URL:      asset.URL,
		License: License{
			Name:       asset.LicenseName,
			URL:        asset.LicenseURL,
			Confidence: asset.LicenseConfidence,
		},
		Subjects:   nonNil(asset.Subjects),
		Categories: nonNil(asset.Categories),
		Active:     asset.Active,
		NodeCount:  len(nodes),
		MaxDepth:   toc.MaxDepth(nodes),
		Toc:        Nest(nodes),
	}
}

// Nest converts flat parent-pointer nodes into nested entries. Nodes whose
// parent is missing become roots.
func Nest(nodes []domain.TocNode) []TocEntry {
	return entries(toc.Build(nodes))
}

func entries(trees []*toc.Tree) []TocEntry {
	out := make([]TocEntry, 0, len(trees))
	for _, t := range trees {
		out = append(out, TocEntry{
			ID:       t.Node.ID,
			Title:    t.Node.Title,
			URL:      t.Node.URL,
			Type:     t.Node.NodeType,
			Depth:    t.Node.Depth,
			Children: childEntries(t.Children),
		})
	}
	return out
}

func childEntries(trees []*toc.Tree) []TocEntry {
	if len(trees) == 0 {
		return nil
	}
	return entries(trees)
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// WriteFile writes doc to path, creating the parent directory.
func WriteFile(path string, doc *Document) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if err = os.WriteFile(path, append(data, '\n'), filePerm); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
