package toc_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

func sampleNodes(t *testing.T) []domain.TocNode {
	t.Helper()

	b := toc.NewBuilder()
	ch1 := b.Add("", "1 Functions", "https://x/1", domain.NodeTypeChapter)
	b.Add(ch1, "1.1 Function Notation", "https://x/1-1", domain.NodeTypeSection)
	s12 := b.Add(ch1, "1.2 Domain and Range", "https://x/1-2", domain.NodeTypeSection)
	b.Add(s12, "Interval notation", "https://x/1-2#interval", domain.NodeTypeSubsection)
	b.Add("", "Index", "https://x/index", domain.NodeTypePage)

	nodes := b.Nodes()
	for i := range nodes {
		nodes[i].AssetID = "asset-1"
	}
	return nodes
}

func TestBuilder_DepthFollowsParentChain(t *testing.T) {
	nodes := sampleNodes(t)

	require.NoError(t, toc.Validate(nodes))
	assert.Equal(t, []int{0, 1, 1, 2, 0}, depths(nodes))
	assert.Equal(t, 2, toc.MaxDepth(nodes))
	for i, n := range nodes {
		assert.Equal(t, i, n.SortOrder)
	}
}

func TestBuild_ReconstructsNestedTree(t *testing.T) {
	nodes := sampleNodes(t)

	// order of the flat input must not matter
	reversed := make([]domain.TocNode, len(nodes))
	for i := range nodes {
		reversed[len(nodes)-1-i] = nodes[i]
	}

	roots := toc.Build(reversed)
	require.Len(t, roots, 2)
	assert.Equal(t, "1 Functions", roots[0].Node.Title)
	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, "1.2 Domain and Range", roots[0].Children[1].Node.Title)
	require.Len(t, roots[0].Children[1].Children, 1)
	assert.Equal(t, "Index", roots[1].Node.Title)
}

func TestBuild_OrphanPromotedToRoot(t *testing.T) {
	missing := "gone"
	nodes := []domain.TocNode{
		{ID: "a", Title: "A", SortOrder: 0},
		{ID: "b", Title: "B", SortOrder: 1, ParentID: &missing, Depth: 1},
	}

	roots := toc.Build(nodes)
	assert.Len(t, roots, 2)
}

func TestValidate_RejectsBrokenTrees(t *testing.T) {
	t.Run("parent in another asset", func(t *testing.T) {
		nodes := sampleNodes(t)
		nodes[0].AssetID = "asset-2"
		require.ErrorIs(t, toc.Validate(nodes), toc.ErrInvalidTree)
	})

	t.Run("depth skips a level", func(t *testing.T) {
		nodes := sampleNodes(t)
		nodes[3].Depth = 3
		require.ErrorIs(t, toc.Validate(nodes), toc.ErrInvalidTree)
	})

	t.Run("unknown parent", func(t *testing.T) {
		nodes := sampleNodes(t)
		other := "nope"
		nodes[1].ParentID = &other
		require.ErrorIs(t, toc.Validate(nodes), toc.ErrInvalidTree)
	})
}

func TestSectionPath(t *testing.T) {
	nodes := sampleNodes(t)

	path := toc.SectionPath(nodes, nodes[3].ID)
	assert.Equal(t, []string{"1 Functions", "1.2 Domain and Range", "Interval notation"}, path)
	assert.Empty(t, toc.SectionPath(nodes, "missing"))
}

func TestOutline_IndentsByDepth(t *testing.T) {
	nodes := sampleNodes(t)

	lines := strings.Split(strings.TrimRight(toc.Outline(nodes), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "- ["+nodes[0].ID+"] 1 Functions"))
	assert.True(t, strings.HasPrefix(lines[3], "    - ["+nodes[3].ID+"] Interval notation"))
}

func depths(nodes []domain.TocNode) []int {
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = n.Depth
	}
	return out
}
