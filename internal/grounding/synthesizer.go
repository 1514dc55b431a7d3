package grounding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/llm"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
)

const (
	synthesizerMaxTokens = 8192
	synthesizerOperation = "synthesize_module"
	synthesizerStage     = "synthesize"
	// maxSourceChars bounds each source's text in the prompt.
	maxSourceChars = 12000
)

// SynthesisRequest is the input to SynthesizeModuleContent.
type SynthesisRequest struct {
	Title       string
	Description string
	Difficulty  string
	Contents    []domain.ExtractedContent
	// Visuals are illustrative only and never a source of facts.
	Visuals []domain.VisualAid
}

type synthesisResponse struct {
	InsufficientSource bool                     `json:"insufficient_source"`
	InsufficientReason string                   `json:"insufficient_reason"`
	Overview           string                   `json:"overview"`
	Objectives         []string                 `json:"objectives"`
	Sections           []domain.RenderedSection `json:"sections"`
	KeyConcepts        []domain.KeyConcept      `json:"key_concepts"`
	Exercises          []domain.Exercise        `json:"exercises"`
	Assessment         []domain.AssessmentItem  `json:"assessment"`
	VisualSpecs        []domain.VisualSpec      `json:"visual_specs"`
	FigureIndices      []int                    `json:"figure_indices"`
}

type promptFigure struct {
	Index int
	Label string
}

type promptSource struct {
	Title    string
	Path     string
	NodeID   string
	URL      string
	Headings string
	Figures  []promptFigure
	Text     string
}

// Synthesizer turns extracted content into module content under a strict
// grounding contract.
type Synthesizer struct {
	llm     llm.Client
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(client llm.Client, log logger.Logger, m *metrics.Metrics) *Synthesizer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Synthesizer{llm: client, log: log.With(logger.String("component", "synthesizer")), metrics: m}
}

// NormalizeDifficulty maps unknown values to intermediate.
func NormalizeDifficulty(d string) string {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case domain.DifficultyBeginner, domain.DifficultyIntermediate, domain.DifficultyAdvanced:
		return d
	default:
		return domain.DifficultyIntermediate
	}
}

// SynthesizeModuleContent renders module content from req.Contents.
// Empty input, an unreachable model, an unparseable answer and a model
// reporting insufficient source each produce a distinct unavailable kind.
func (s *Synthesizer) SynthesizeModuleContent(ctx context.Context, req SynthesisRequest) domain.RenderedModuleContent {
	if len(req.Contents) == 0 {
		return s.unavailable(req, domain.UnavailableNoContent, "no content was retrieved from the selected source sections")
	}
	if s.llm == nil {
		return s.unavailable(req, domain.UnavailableModelUnreachable, "model unreachable: no model client configured")
	}

	prompt, figures, err := buildSynthesisPrompt(req)
	if err != nil {
		return s.unavailable(req, domain.UnavailableParseError, err.Error())
	}

	text, err := s.llm.Complete(ctx, llm.Request{
		Operation: synthesizerOperation,
		System:    synthesizerSystemPrompt,
		Prompt:    prompt,
		MaxTokens: synthesizerMaxTokens,
	})
	if err != nil {
		return s.unavailable(req, domain.UnavailableModelUnreachable, "model unreachable: "+err.Error())
	}

	resp, err := parseSynthesis(text)
	if err != nil {
		return s.unavailable(req, domain.UnavailableParseError, "could not parse model response: "+err.Error())
	}
	if resp.InsufficientSource {
		reason := strings.TrimSpace(resp.InsufficientReason)
		if reason == "" {
			reason = "the retrieved sections do not cover this module"
		}
		return s.unavailable(req, domain.UnavailableInsufficientSource, "insufficient source: "+reason)
	}

	citations := BuildCitations(req.Contents)
	content := domain.RenderedModuleContent{
		Overview:        strings.TrimSpace(resp.Overview),
		Objectives:      nonNil(resp.Objectives),
		Sections:        nonNil(resp.Sections),
		KeyConcepts:     nonNil(resp.KeyConcepts),
		Exercises:       nonNil(resp.Exercises),
		Assessment:      nonNil(resp.Assessment),
		VisualSpecs:     nonNil(resp.VisualSpecs),
		Figures:         referencedFigures(figures, resp.FigureIndices),
		Citations:       citations,
		CitationDisplay: FormatCitationsDisplay(citations),
		VisualAids:      req.Visuals,
		GeneratedAt:     time.Now().UTC(),
	}

	s.metrics.ObserveGrounding(synthesizerStage, "ok")
	s.log.Info("Module content synthesized",
		logger.String("module", req.Title),
		logger.Int("sources", len(req.Contents)),
		logger.Int("sections", len(content.Sections)),
		logger.Int("citations", len(citations)),
	)
	return content
}

func (s *Synthesizer) unavailable(req SynthesisRequest, kind domain.UnavailableKind, reason string) domain.RenderedModuleContent {
	s.metrics.ObserveGrounding(synthesizerStage, string(kind))
	s.log.Warn("Module content unavailable",
		logger.String("module", req.Title),
		logger.String("kind", string(kind)),
		logger.String("reason", reason),
	)
	return domain.UnavailableContent(kind, reason)
}

// buildSynthesisPrompt numbers every figure across all sources so the model
// can reference them by index.
func buildSynthesisPrompt(req SynthesisRequest) (string, []domain.Figure, error) {
	var figures []domain.Figure
	sources := make([]promptSource, 0, len(req.Contents))
	for _, c := range req.Contents {
		src := promptSource{
			Title:    c.Title,
			Path:     strings.Join(c.SectionPath, " > "),
			NodeID:   c.NodeID,
			URL:      c.URL,
			Headings: strings.Join(c.Headings, "; "),
			Text:     truncate(c.ContentText, maxSourceChars),
		}
		for _, f := range c.Figures {
			label := f.Caption
			if label == "" {
				label = f.Alt
			}
			if label == "" {
				label = f.URL
			}
			src.Figures = append(src.Figures, promptFigure{Index: len(figures), Label: label})
			figures = append(figures, f)
		}
		sources = append(sources, src)
	}

	visuals := make([]string, 0, len(req.Visuals))
	for _, v := range req.Visuals {
		visuals = append(visuals, fmt.Sprintf("%s: %s", v.Concept, v.Title))
	}

	prompt, err := render(synthesizerPromptTmpl, map[string]any{
		"Title":       req.Title,
		"Description": req.Description,
		"Difficulty":  NormalizeDifficulty(req.Difficulty),
		"Sources":     sources,
		"Visuals":     visuals,
	})
	return prompt, figures, err
}

func parseSynthesis(text string) (synthesisResponse, error) {
	var resp synthesisResponse
	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return resp, err
	}
	// Fields are decoded one by one so a mistyped field, or a malformed list
	// item, is dropped without losing the rest of the response.
	var fields map[string]json.RawMessage
	if err = json.Unmarshal([]byte(raw), &fields); err != nil {
		return resp, err
	}
	decodeField(fields["insufficient_source"], &resp.InsufficientSource)
	decodeField(fields["insufficient_reason"], &resp.InsufficientReason)
	decodeField(fields["overview"], &resp.Overview)
	resp.Objectives = decodeList[string](fields["objectives"])
	resp.Sections = decodeList[domain.RenderedSection](fields["sections"])
	resp.KeyConcepts = decodeList[domain.KeyConcept](fields["key_concepts"])
	resp.Exercises = decodeList[domain.Exercise](fields["exercises"])
	resp.Assessment = decodeList[domain.AssessmentItem](fields["assessment"])
	resp.VisualSpecs = decodeList[domain.VisualSpec](fields["visual_specs"])
	resp.FigureIndices = decodeList[int](fields["figure_indices"])
	if !resp.InsufficientSource && strings.TrimSpace(resp.Overview) == "" && len(resp.Sections) == 0 {
		return resp, errors.New("response has neither overview nor sections")
	}
	return resp, nil
}

func decodeField[T any](raw json.RawMessage, dst *T) {
	if len(raw) == 0 {
		return
	}
	var v T
	if json.Unmarshal(raw, &v) == nil {
		*dst = v
	}
}

func decodeList[T any](raw json.RawMessage) []T {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if json.Unmarshal(item, &v) == nil {
			out = append(out, v)
		}
	}
	return out
}

func referencedFigures(figures []domain.Figure, indices []int) []domain.Figure {
	out := []domain.Figure{}
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(figures) || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, figures[i])
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
