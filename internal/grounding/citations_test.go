package grounding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/grounding"
)

func citationsFor(source string, sections ...string) []domain.Citation {
	out := make([]domain.Citation, 0, len(sections))
	for _, s := range sections {
		out = append(out, domain.Citation{SourceTitle: source, SectionTitle: s, NodeID: "n-" + s})
	}
	return out
}

func TestFormatCitationsDisplay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		citations []domain.Citation
		want      string
	}{
		{name: "none", citations: nil, want: ""},
		{name: "single", citations: citationsFor("X", "Y"), want: "Based on X, Y"},
		{name: "sequential", citations: citationsFor("X", "2.1", "2.2", "2.3"), want: "Based on X, Sections 2.1–2.3"},
		{name: "sequential out of order", citations: citationsFor("X", "2.3", "2.1", "2.2"), want: "Based on X, Sections 2.1–2.3"},
		{
			name:      "sequential with titles",
			citations: citationsFor("Calculus", "3.4 Derivatives as Rates", "3.5 Derivatives of Trig Functions"),
			want:      "Based on Calculus, Sections 3.4–3.5",
		},
		{name: "gap is not a range", citations: citationsFor("X", "2.1", "2.3"), want: "Based on X: 2.1 and 2.3"},
		{name: "two", citations: citationsFor("X", "A", "B"), want: "Based on X: A and B"},
		{name: "three", citations: citationsFor("X", "A", "B", "C"), want: "Based on X: A, B and C"},
		{name: "four unordered", citations: citationsFor("X", "A", "B", "C", "D"), want: "Based on X: A, B and 2 more sections"},
		{name: "mixed parents", citations: citationsFor("X", "1.9", "2.1"), want: "Based on X: 1.9 and 2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, grounding.FormatCitationsDisplay(tt.citations))
		})
	}
}

func TestFormatCitationsDisplay_FallsBackToPath(t *testing.T) {
	t.Parallel()

	got := grounding.FormatCitationsDisplay([]domain.Citation{{
		SourceTitle: "Python Docs",
		SectionPath: []string{"Tutorial", "Classes"},
	}})
	assert.Equal(t, "Based on Python Docs, Classes", got)
}

func TestBuildCitations(t *testing.T) {
	t.Parallel()

	contents := []domain.ExtractedContent{
		{NodeID: "a", Title: "2.1 Intro", URL: "https://x.example/a", SourceTitle: "Calc", SectionPath: []string{"Ch 2", "2.1 Intro"}},
		{NodeID: "b", Title: "2.2 Next", URL: "https://x.example/b", SourceTitle: "Calc", SectionPath: []string{"Ch 2", "2.2 Next"}},
		{NodeID: "a", Title: "2.1 Intro", URL: "https://x.example/a", SourceTitle: "Calc"},
	}

	citations := grounding.BuildCitations(contents)
	require.Len(t, citations, 2)
	assert.Equal(t, domain.Citation{
		SourceTitle:  "Calc",
		SectionTitle: "2.1 Intro",
		SectionPath:  []string{"Ch 2", "2.1 Intro"},
		URL:          "https://x.example/a",
		NodeID:       "a",
	}, citations[0])
	assert.Equal(t, "b", citations[1].NodeID)
}
