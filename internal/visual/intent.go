// Package visual finds illustrative, non-authoritative images for rendered
// module content.
package visual

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"regexp"
	"slices"
	"strings"
	"text/template"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/llm"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
)

const (
	// MaxIntents caps intents per module.
	MaxIntents      = 5
	minPriority     = 1
	maxPriority     = 10
	defaultPriority = 5
	maxQueryWords   = 4
	maxContentChars = 6000
	intentMaxTokens = 1024
	intentOperation = "visual_intent"
)

const intentSystemPrompt = `You plan illustrative diagrams for educational content. You only ever answer with JSON.`

var intentPromptTmpl = template.Must(template.New("visual_intent").Parse(`Propose up to {{.Max}} visuals that would help a learner understand this module.
Only propose a visual when a diagram, graph, plot or flow chart genuinely clarifies a concept in the text.
Return an empty list when none would help.

Module title: {{.Title}}

Module content:
{{.Content}}

Respond with a JSON object only:
{"intents": [{
  "concept": "<concept from the text>",
  "type": "diagram|graph|plot|flow",
  "key_elements": ["<element that must appear>"],
  "constraints": ["<what the image must not show>"],
  "search_query": "<2-4 word image search query>",
  "priority": 1
}]}
`))

// diagramTerms mark a query or title as asking for a drawing, not a photo.
var diagramTerms = []string{
	"diagram", "graph", "plot", "chart", "flowchart", "schematic", "illustration", "figure",
}

var nonQueryChars = regexp.MustCompile(`[^a-z0-9\s-]+`)

// IntentGenerator asks the model for visual intents.
type IntentGenerator struct {
	llm     llm.Client
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewIntentGenerator creates an IntentGenerator.
func NewIntentGenerator(client llm.Client, log logger.Logger, m *metrics.Metrics) *IntentGenerator {
	if log == nil {
		log = logger.NewNop()
	}
	return &IntentGenerator{llm: client, log: log.With(logger.String("component", "visual_intent")), metrics: m}
}

// GenerateVisualIntent returns up to MaxIntents normalized intents ordered by
// priority. Any failure yields an empty slice.
func (g *IntentGenerator) GenerateVisualIntent(ctx context.Context, title, content string) []domain.VisualIntent {
	intents, err := g.generate(ctx, title, content)
	if err != nil {
		g.metrics.ObserveLLM(intentOperation, "degraded")
		g.log.Warn("Visual intent generation failed", logger.String("module", title), logger.Error(err))
		return []domain.VisualIntent{}
	}
	g.log.Debug("Visual intents generated", logger.String("module", title), logger.Int("count", len(intents)))
	return intents
}

func (g *IntentGenerator) generate(ctx context.Context, title, content string) ([]domain.VisualIntent, error) {
	if g.llm == nil || strings.TrimSpace(content) == "" {
		return []domain.VisualIntent{}, nil
	}

	var buf bytes.Buffer
	if err := intentPromptTmpl.Execute(&buf, map[string]any{
		"Max":     MaxIntents,
		"Title":   title,
		"Content": truncateRunes(content, maxContentChars),
	}); err != nil {
		return nil, err
	}

	text, err := g.llm.Complete(ctx, llm.Request{
		Operation: intentOperation,
		System:    intentSystemPrompt,
		Prompt:    buf.String(),
		MaxTokens: intentMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Intents []domain.VisualIntent `json:"intents"`
	}
	if err = json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	return NormalizeIntents(resp.Intents), nil
}

// NormalizeIntents drops intents without a concept, clamps priority to
// [1,10], sanitizes queries and keeps the top MaxIntents by priority.
func NormalizeIntents(raw []domain.VisualIntent) []domain.VisualIntent {
	out := make([]domain.VisualIntent, 0, len(raw))
	for _, in := range raw {
		in.Concept = strings.TrimSpace(in.Concept)
		if in.Concept == "" {
			continue
		}
		in.Type = normalizeType(in.Type)
		in.Priority = clampPriority(in.Priority)
		in.KeyElements = trimAll(in.KeyElements)
		in.Constraints = trimAll(in.Constraints)
		in.SearchQuery = SanitizeQuery(in.SearchQuery, in.Concept, in.Type)
		out = append(out, in)
	}

	slices.SortStableFunc(out, func(a, b domain.VisualIntent) int { return cmp.Compare(b.Priority, a.Priority) })
	if len(out) > MaxIntents {
		out = out[:MaxIntents]
	}
	return out
}

func normalizeType(t domain.VisualType) domain.VisualType {
	switch v := domain.VisualType(strings.ToLower(strings.TrimSpace(string(t)))); v {
	case domain.VisualDiagram, domain.VisualGraph, domain.VisualPlot, domain.VisualFlow:
		return v
	default:
		return domain.VisualDiagram
	}
}

func clampPriority(p int) int {
	if p == 0 {
		return defaultPriority
	}
	return min(max(p, minPriority), maxPriority)
}

// SanitizeQuery lowercases and strips a query to at most four words, one of
// which indicates a diagram. An empty query falls back to the concept.
func SanitizeQuery(query, concept string, t domain.VisualType) string {
	words := queryWords(query)
	if len(words) == 0 {
		words = queryWords(concept)
	}

	idx := slices.IndexFunc(words, isDiagramTerm)
	switch {
	case idx < 0:
		words = append(words[:min(len(words), maxQueryWords-1)], termFor(t))
	case idx >= maxQueryWords:
		words = append(words[:maxQueryWords-1], words[idx])
	default:
		words = words[:min(len(words), maxQueryWords)]
	}
	return strings.Join(words, " ")
}

func queryWords(s string) []string {
	s = nonQueryChars.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Fields(s)
}

func isDiagramTerm(w string) bool {
	return slices.Contains(diagramTerms, w)
}

func termFor(t domain.VisualType) string {
	switch t {
	case domain.VisualGraph:
		return "graph"
	case domain.VisualPlot:
		return "plot"
	case domain.VisualFlow:
		return "flowchart"
	default:
		return "diagram"
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
