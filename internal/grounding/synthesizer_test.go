package grounding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/grounding"
	"github.com/jonesrussell/north-cloud/source-registry/internal/testhelpers"
)

const synthesisReply = `{
  "insufficient_source": false,
  "overview": "A limit describes the value a function approaches.",
  "objectives": ["Describe a limit"],
  "sections": [{"title": "Intuition", "content": "We write lim x→a f(x) = L.", "node_ids": ["node-2"]}],
  "key_concepts": [{"term": "limit", "definition": "The value f(x) approaches."}],
  "exercises": [{"prompt": "Estimate lim x→2 of x^2."}],
  "assessment": [{"question": "What is a limit?", "answer": "The value approached."}],
  "visual_specs": [{"type": "graph", "description": "f approaching 2"}],
  "figure_indices": [1, 7, 1]
}`

func limitContents() []domain.ExtractedContent {
	return []domain.ExtractedContent{{
		NodeID:      "node-2",
		Title:       "2.2 The Limit of a Function",
		URL:         "https://books.example.org/calc/pages/2-2",
		ContentText: "We write lim x→a f(x) = L when f(x) approaches L as x approaches a.",
		Headings:    []string{"Intuitive Definition"},
		Figures: []domain.Figure{
			{URL: "https://books.example.org/img/a.png", Caption: "Figure 2.11"},
			{URL: "https://books.example.org/img/b.png", Caption: "Figure 2.12"},
		},
		SourceTitle: "Calculus Volume 1",
		SectionPath: []string{"Chapter 2 Limits", "2.2 The Limit of a Function"},
	}}
}

func synthesisRequest() grounding.SynthesisRequest {
	return grounding.SynthesisRequest{
		Title:      "Understanding limits",
		Difficulty: "expert",
		Contents:   limitContents(),
	}
}

func TestSynthesize_EmptyInputSkipsModel(t *testing.T) {
	t.Parallel()

	model := testhelpers.NewScriptedLLM()
	s := grounding.NewSynthesizer(model, nil, nil)

	content := s.SynthesizeModuleContent(context.Background(), grounding.SynthesisRequest{Title: "Limits"})

	assert.True(t, content.ContentUnavailable)
	assert.Equal(t, domain.UnavailableNoContent, content.UnavailableKind)
	assert.Contains(t, content.UnavailableReason, "no content was retrieved")
	assert.Equal(t, 0, model.Calls())
	assert.NotNil(t, content.Citations)
}

func TestSynthesize_Success(t *testing.T) {
	t.Parallel()

	model := testhelpers.NewScriptedLLM(testhelpers.Reply{Text: synthesisReply})
	s := grounding.NewSynthesizer(model, nil, nil)

	content := s.SynthesizeModuleContent(context.Background(), synthesisRequest())

	require.False(t, content.ContentUnavailable, content.UnavailableReason)
	assert.Equal(t, "A limit describes the value a function approaches.", content.Overview)
	require.Len(t, content.Sections, 1)
	assert.Equal(t, "We write lim x→a f(x) = L.", content.Sections[0].Content)
	require.Len(t, content.Citations, 1)
	assert.Equal(t, "node-2", content.Citations[0].NodeID)
	assert.Equal(t, "Based on Calculus Volume 1, 2.2 The Limit of a Function", content.CitationDisplay)
	require.Len(t, content.Figures, 1, "out of range and repeated indices are dropped")
	assert.Equal(t, "Figure 2.12", content.Figures[0].Caption)
	assert.Len(t, content.KeyConcepts, 1)

	req := model.Requests()[0]
	assert.Contains(t, req.System, "ONLY facts present in the SOURCE CONTEXT")
	assert.Contains(t, req.System, "is not covered")
	assert.Contains(t, req.Prompt, "Node id: node-2")
	assert.Contains(t, req.Prompt, "Chapter 2 Limits > 2.2 The Limit of a Function")
	assert.Contains(t, req.Prompt, "Figure [1]: Figure 2.12")
	assert.Contains(t, req.Prompt, "Difficulty: intermediate")
}

func TestSynthesize_MistypedFieldsAreDropped(t *testing.T) {
	t.Parallel()

	reply := `{
  "overview": "A limit describes the value a function approaches.",
  "objectives": "Describe a limit",
  "sections": [{"title": "Intuition", "content": "We write lim x→a f(x) = L.", "node_ids": ["node-2"]}, "stray"],
  "key_concepts": {"term": "limit"},
  "exercises": [{"prompt": "Estimate lim x→2 of x^2."}],
  "figure_indices": ["1", 1]
}`
	s := grounding.NewSynthesizer(testhelpers.NewScriptedLLM(testhelpers.Reply{Text: reply}), nil, nil)

	content := s.SynthesizeModuleContent(context.Background(), synthesisRequest())

	require.False(t, content.ContentUnavailable, content.UnavailableReason)
	assert.Equal(t, "A limit describes the value a function approaches.", content.Overview)
	assert.Empty(t, content.Objectives)
	assert.NotNil(t, content.Objectives)
	require.Len(t, content.Sections, 1)
	assert.Equal(t, "Intuition", content.Sections[0].Title)
	assert.Empty(t, content.KeyConcepts)
	assert.Len(t, content.Exercises, 1)
	require.Len(t, content.Figures, 1)
	assert.Equal(t, "Figure 2.12", content.Figures[0].Caption)
}

func TestSynthesize_VisualsAreSubordinate(t *testing.T) {
	t.Parallel()

	model := testhelpers.NewScriptedLLM(testhelpers.Reply{Text: synthesisReply})
	s := grounding.NewSynthesizer(model, nil, nil)
	req := synthesisRequest()
	req.Visuals = []domain.VisualAid{{Concept: "limit", Title: "Limit diagram", UsageLabel: domain.UsageIllustrative}}

	content := s.SynthesizeModuleContent(context.Background(), req)

	require.False(t, content.ContentUnavailable)
	assert.Equal(t, req.Visuals, content.VisualAids)
	assert.Contains(t, model.Requests()[0].Prompt, "never a source of facts")
	assert.Contains(t, model.Requests()[0].Prompt, "- limit: Limit diagram")
}

func TestSynthesize_DistinctFailureKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		reply      testhelpers.Reply
		wantKind   domain.UnavailableKind
		wantReason string
	}{
		{
			name:       "model unreachable",
			reply:      testhelpers.Reply{Err: errors.New("dial tcp: timeout")},
			wantKind:   domain.UnavailableModelUnreachable,
			wantReason: "model unreachable: dial tcp: timeout",
		},
		{
			name:       "parse error",
			reply:      testhelpers.Reply{Text: `{"overview": `},
			wantKind:   domain.UnavailableParseError,
			wantReason: "could not parse model response",
		},
		{
			name:       "empty object",
			reply:      testhelpers.Reply{Text: `{}`},
			wantKind:   domain.UnavailableParseError,
			wantReason: "neither overview nor sections",
		},
		{
			name:       "insufficient source",
			reply:      testhelpers.Reply{Text: `{"insufficient_source": true, "insufficient_reason": "Only a preview paragraph."}`},
			wantKind:   domain.UnavailableInsufficientSource,
			wantReason: "insufficient source: Only a preview paragraph.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := grounding.NewSynthesizer(testhelpers.NewScriptedLLM(tt.reply), nil, nil)
			content := s.SynthesizeModuleContent(context.Background(), synthesisRequest())

			assert.True(t, content.ContentUnavailable)
			assert.Equal(t, tt.wantKind, content.UnavailableKind)
			assert.Contains(t, content.UnavailableReason, tt.wantReason)
			assert.Empty(t, content.Sections)
		})
	}
}

func TestNormalizeDifficulty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, domain.DifficultyBeginner, grounding.NormalizeDifficulty(" Beginner "))
	assert.Equal(t, domain.DifficultyAdvanced, grounding.NormalizeDifficulty("advanced"))
	assert.Equal(t, domain.DifficultyIntermediate, grounding.NormalizeDifficulty(""))
}
