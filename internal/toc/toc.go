// Package toc builds and checks table-of-contents trees from flat
// parent-pointer node records.
package toc

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
)

// ErrInvalidTree is returned by Validate.
var ErrInvalidTree = errors.New("invalid toc tree")

// Tree is a node with its children attached, ordered by sort_order.
type Tree struct {
	Node     domain.TocNode
	Children []*Tree
}

// Sort orders nodes by sort_order in place.
func Sort(nodes []domain.TocNode) {
	slices.SortStableFunc(nodes, func(a, b domain.TocNode) int {
		return a.SortOrder - b.SortOrder
	})
}

// Build reconstructs the forest from flat nodes. Nodes whose parent is not
// in the set are promoted to roots.
func Build(nodes []domain.TocNode) []*Tree {
	sorted := slices.Clone(nodes)
	Sort(sorted)

	arena := make(map[string]*Tree, len(sorted))
	for i := range sorted {
		arena[sorted[i].ID] = &Tree{Node: sorted[i]}
	}

	roots := make([]*Tree, 0)
	for i := range sorted {
		t := arena[sorted[i].ID]
		if pid := sorted[i].ParentID; pid != nil {
			if parent, ok := arena[*pid]; ok && *pid != sorted[i].ID {
				parent.Children = append(parent.Children, t)
				continue
			}
		}
		roots = append(roots, t)
	}
	return roots
}

// Validate checks that every parent belongs to the same asset, that depth
// equals the path length from a root, and that ids are unique.
func Validate(nodes []domain.TocNode) error {
	byID := make(map[string]*domain.TocNode, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if _, dup := byID[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %s", ErrInvalidTree, n.ID)
		}
		byID[n.ID] = n
	}

	for i := range nodes {
		n := &nodes[i]
		if n.ParentID == nil {
			if n.Depth != 0 {
				return fmt.Errorf("%w: root %s has depth %d", ErrInvalidTree, n.ID, n.Depth)
			}
			continue
		}
		parent, ok := byID[*n.ParentID]
		if !ok {
			return fmt.Errorf("%w: node %s references unknown parent %s", ErrInvalidTree, n.ID, *n.ParentID)
		}
		if parent.AssetID != n.AssetID {
			return fmt.Errorf("%w: node %s parent belongs to another asset", ErrInvalidTree, n.ID)
		}
		if n.Depth != parent.Depth+1 {
			return fmt.Errorf("%w: node %s depth %d under parent depth %d",
				ErrInvalidTree, n.ID, n.Depth, parent.Depth)
		}
		if n.SortOrder <= parent.SortOrder {
			return fmt.Errorf("%w: node %s sorts before its parent", ErrInvalidTree, n.ID)
		}
	}
	return nil
}

// SectionPath returns the titles from the root down to the node with id.
func SectionPath(nodes []domain.TocNode, id string) []string {
	byID := make(map[string]*domain.TocNode, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	var path []string
	seen := make(map[string]bool)
	for cur, ok := byID[id]; ok && !seen[cur.ID]; {
		seen[cur.ID] = true
		path = append(path, cur.Title)
		if cur.ParentID == nil {
			break
		}
		cur, ok = byID[*cur.ParentID]
	}
	slices.Reverse(path)
	return path
}

// Outline renders nodes as an indented list, two spaces per depth level,
// each line carrying the node id.
func Outline(nodes []domain.TocNode) string {
	var b strings.Builder
	var walk func(ts []*Tree, depth int)
	walk = func(ts []*Tree, depth int) {
		for _, t := range ts {
			b.WriteString(strings.Repeat("  ", depth))
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", t.Node.ID, t.Node.Title, t.Node.NodeType)
			walk(t.Children, depth+1)
		}
	}
	walk(Build(nodes), 0)
	return b.String()
}

// MaxDepth returns the deepest node depth, or 0 for an empty set.
func MaxDepth(nodes []domain.TocNode) int {
	deepest := 0
	for i := range nodes {
		deepest = max(deepest, nodes[i].Depth)
	}
	return deepest
}

// Builder assigns ids, depths and sort orders while a TOC is parsed in
// document order.
type Builder struct {
	nodes []domain.TocNode
	index map[string]int
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// Add appends a node under parentID ("" for a root) and returns its id.
// An unknown parentID makes the node a root.
func (b *Builder) Add(parentID, title, url string, nodeType domain.NodeType) string {
	node := domain.TocNode{
		ID:        uuid.NewString(),
		Title:     strings.Join(strings.Fields(title), " "),
		URL:       url,
		NodeType:  nodeType,
		SortOrder: len(b.nodes),
	}
	if idx, ok := b.index[parentID]; ok && parentID != "" {
		pid := parentID
		node.ParentID = &pid
		node.Depth = b.nodes[idx].Depth + 1
	}

	b.index[node.ID] = len(b.nodes)
	b.nodes = append(b.nodes, node)
	return node.ID
}

// SetType changes the type of an already added node.
func (b *Builder) SetType(id string, nodeType domain.NodeType) {
	if idx, ok := b.index[id]; ok {
		b.nodes[idx].NodeType = nodeType
	}
}

// Len returns the number of nodes added.
func (b *Builder) Len() int {
	return len(b.nodes)
}

// Nodes returns the nodes in sort order.
func (b *Builder) Nodes() []domain.TocNode {
	return slices.Clone(b.nodes)
}
