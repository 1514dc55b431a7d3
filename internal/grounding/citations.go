package grounding

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
)

const maxListedSections = 3

var sectionNumberRe = regexp.MustCompile(`^(?:§\s*|(?i:section)\s+)?(\d+(?:\.\d+)*)\b`)

// BuildCitations projects extracted content into citations, one per node.
func BuildCitations(contents []domain.ExtractedContent) []domain.Citation {
	citations := make([]domain.Citation, 0, len(contents))
	seen := make(map[string]bool, len(contents))
	for i := range contents {
		c := &contents[i]
		if seen[c.NodeID] {
			continue
		}
		seen[c.NodeID] = true
		citations = append(citations, domain.Citation{
			SourceTitle:  c.SourceTitle,
			SectionTitle: c.Title,
			SectionPath:  slices.Clone(c.SectionPath),
			URL:          c.URL,
			NodeID:       c.NodeID,
		})
	}
	return citations
}

// FormatCitationsDisplay renders a one-line provenance string:
//
//	Based on Calculus, 2.1 Limits
//	Based on Calculus, Sections 2.1–2.3
//	Based on Calculus: A, B and C
//	Based on Calculus: A, B and 2 more sections
func FormatCitationsDisplay(citations []domain.Citation) string {
	if len(citations) == 0 {
		return ""
	}
	source := citations[0].SourceTitle
	if source == "" {
		source = "the source"
	}

	sections := make([]string, 0, len(citations))
	for _, c := range citations {
		sections = append(sections, sectionLabel(c))
	}

	if len(sections) == 1 {
		return fmt.Sprintf("Based on %s, %s", source, sections[0])
	}
	if first, last, ok := sequentialRange(sections); ok {
		return fmt.Sprintf("Based on %s, Sections %s–%s", source, first, last)
	}
	if len(sections) <= maxListedSections {
		return fmt.Sprintf("Based on %s: %s and %s", source, strings.Join(sections[:len(sections)-1], ", "), sections[len(sections)-1])
	}
	return fmt.Sprintf("Based on %s: %s, %s and %d more sections", source, sections[0], sections[1], len(sections)-2)
}

func sectionLabel(c domain.Citation) string {
	if c.SectionTitle != "" {
		return c.SectionTitle
	}
	if n := len(c.SectionPath); n > 0 {
		return c.SectionPath[n-1]
	}
	return c.URL
}

// sequentialRange reports whether every label starts with a section number,
// all numbers share a parent, and their last components are consecutive.
func sequentialRange(labels []string) (first, last string, ok bool) {
	type numbered struct {
		raw    string
		parent string
		leaf   int
	}
	nums := make([]numbered, 0, len(labels))
	for _, label := range labels {
		m := sectionNumberRe.FindStringSubmatch(strings.TrimSpace(label))
		if m == nil {
			return "", "", false
		}
		parent, leafStr := "", m[1]
		if i := strings.LastIndexByte(m[1], '.'); i >= 0 {
			parent, leafStr = m[1][:i], m[1][i+1:]
		}
		leaf, err := strconv.Atoi(leafStr)
		if err != nil {
			return "", "", false
		}
		nums = append(nums, numbered{raw: m[1], parent: parent, leaf: leaf})
	}

	slices.SortFunc(nums, func(a, b numbered) int { return a.leaf - b.leaf })
	for i := 1; i < len(nums); i++ {
		if nums[i].parent != nums[0].parent || nums[i].leaf != nums[i-1].leaf+1 {
			return "", "", false
		}
	}
	return nums[0].raw, nums[len(nums)-1].raw, true
}
