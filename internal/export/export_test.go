package export_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/export"
	"github.com/jonesrussell/north-cloud/source-registry/internal/testhelpers"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

func seedLibrary(t *testing.T) *testhelpers.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := testhelpers.NewMemoryStore()

	sphinx := &domain.Source{Name: "python-docs", Type: domain.SourceTypeSphinx, ScanStatus: domain.ScanStatusCompleted}
	openstax := &domain.Source{Name: "openstax", Type: domain.SourceTypeOpenStax, ScanStatus: domain.ScanStatusCompleted}
	require.NoError(t, store.UpsertSource(ctx, sphinx))
	require.NoError(t, store.UpsertSource(ctx, openstax))

	assets := []*domain.Asset{
		{SourceID: sphinx.ID, Slug: "tutorial", Title: "The Python Tutorial", LicenseName: "PSF-2.0", Active: true},
		{SourceID: openstax.ID, Slug: "precalculus", Title: "Precalculus", LicenseName: "CC BY 4.0", Subjects: domain.StringList{"Math"}},
		{SourceID: openstax.ID, Slug: "calculus-volume-1", Title: "Calculus Volume 1", LicenseName: "CC BY-NC-SA 4.0", Active: true},
	}
	for _, a := range assets {
		require.NoError(t, store.UpsertAsset(ctx, a))
	}

	b := toc.NewBuilder()
	ch := b.Add("", "1 Functions and Graphs", "https://x/1", domain.NodeTypeChapter)
	b.Add(ch, "1.1 Review of Functions", "https://x/1-1", domain.NodeTypeSection)
	b.Add(ch, "1.2 Basic Classes of Functions", "https://x/1-2", domain.NodeTypeSection)
	b.Add("", "2 Limits", "https://x/2", domain.NodeTypeChapter)
	require.NoError(t, store.ReplaceTocNodes(ctx, assets[2].ID, b.Nodes()))

	return store
}

func TestBuild(t *testing.T) {
	t.Parallel()

	doc, err := export.Build(context.Background(), seedLibrary(t), export.Options{})
	require.NoError(t, err)

	assert.Equal(t, "1.0", doc.Version)
	assert.False(t, doc.GeneratedAt.IsZero())
	assert.Equal(t, 2, doc.SourceCount)
	assert.Equal(t, 3, doc.AssetCount)
	assert.Equal(t, 4, doc.NodeCount)

	require.Len(t, doc.Sources, 2)
	assert.Equal(t, "openstax", doc.Sources[0].Name)
	assert.Equal(t, 2, doc.Sources[0].AssetCount)

	var titles []string
	for _, e := range doc.Library {
		titles = append(titles, e.Title)
	}
	assert.Equal(t, []string{"Calculus Volume 1", "Precalculus", "The Python Tutorial"}, titles)

	calc := doc.Library[0]
	assert.Equal(t, "openstax", calc.Source)
	assert.Equal(t, "CC BY-NC-SA 4.0", calc.License.Name)
	assert.Equal(t, 4, calc.NodeCount)
	assert.Equal(t, 1, calc.MaxDepth)
	require.Len(t, calc.Toc, 2)
	assert.Equal(t, "1 Functions and Graphs", calc.Toc[0].Title)
	require.Len(t, calc.Toc[0].Children, 2)
	assert.Equal(t, "1.2 Basic Classes of Functions", calc.Toc[0].Children[1].Title)
	assert.Empty(t, calc.Toc[1].Children)

	assert.NotNil(t, doc.Library[2].Subjects)
	assert.NotNil(t, doc.Library[2].Toc)
}

func TestBuild_ActiveOnly(t *testing.T) {
	t.Parallel()

	doc, err := export.Build(context.Background(), seedLibrary(t), export.Options{ActiveOnly: true})
	require.NoError(t, err)

	assert.Equal(t, 2, doc.AssetCount)
	assert.Equal(t, 1, doc.Sources[0].AssetCount)
	for _, e := range doc.Library {
		assert.True(t, e.Active, e.Title)
	}
}

func TestNest_OrphanPromoted(t *testing.T) {
	t.Parallel()

	ghost := "ghost"
	root := "root"
	nodes := []domain.TocNode{
		{ID: "child", ParentID: &root, Title: "Child", SortOrder: 1, Depth: 1},
		{ID: "root", Title: "Root", SortOrder: 0},
		{ID: "orphan", ParentID: &ghost, Title: "Orphan", SortOrder: 2, Depth: 1},
	}

	tree := export.Nest(nodes)

	require.Len(t, tree, 2)
	assert.Equal(t, "Root", tree[0].Title)
	assert.Equal(t, "Child", tree[0].Children[0].Title)
	assert.Equal(t, "Orphan", tree[1].Title)
}

type brokenReader struct{ *testhelpers.MemoryStore }

func (brokenReader) GetTocNodes(context.Context, string) ([]domain.TocNode, error) {
	return nil, errors.New("disk on fire")
}

func TestBuild_ReaderError(t *testing.T) {
	t.Parallel()

	_, err := export.Build(context.Background(), brokenReader{seedLibrary(t)}, export.Options{})
	require.ErrorContains(t, err, "disk on fire")
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	doc, err := export.Build(context.Background(), seedLibrary(t), export.Options{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "registry.json")
	require.NoError(t, export.WriteFile(path, doc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "1.0", raw["version"])
	assert.Contains(t, raw, "generatedAt")
	assert.InDelta(t, 3, raw["assetCount"], 0)

	library := raw["library"].([]any)
	first := library[0].(map[string]any)
	for _, key := range []string{"id", "title", "slug", "url", "license", "subjects", "categories", "toc"} {
		assert.Contains(t, first, key)
	}

	var buf bytes.Buffer
	require.NoError(t, export.Encode(&buf, doc))
	assert.JSONEq(t, string(data), buf.String())
}
