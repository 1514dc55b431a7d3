package grounding

import (
	"bytes"
	"fmt"
	"text/template"
)

const resolverSystemPrompt = `You select sections of a registered educational source for a learning module.
You only ever answer with JSON.`

var resolverPromptTmpl = template.Must(template.New("resolver").Parse(`A learning module needs source material from the table of contents below.

Module title: {{.Title}}
{{- if .Description}}
Module description: {{.Description}}
{{- end}}
{{- if .PathContext}}
Learning path context: {{.PathContext}}
{{- end}}

Table of contents (indentation is nesting depth, ids in brackets):
{{.Outline}}
Select up to {{.MaxNodes}} node ids whose content best covers this module.
Prefer the most specific sections over whole chapters.
If nothing in the table of contents fits, return an empty list. Do not force a match.

Respond with a JSON object only:
{"node_ids": ["<id>", ...], "reasoning": "<one or two sentences>"}
`))

const synthesizerSystemPrompt = `You write learning module content under a strict grounding contract.

Rules:
1. Explain ONLY facts present in the SOURCE CONTEXT. Never add facts from general knowledge.
2. When the module calls for a concept the context does not contain, say "This concept is not covered in the source material." Do not fill the gap.
3. Preserve notation, formulas, symbols and terminology exactly as written in the context.
4. You may reference a supplied figure by its index. A figure never adds facts beyond the text.
5. Illustrative visuals supplied with the context are subordinate to the text and are never a source of facts.
6. If the context is not enough to write a meaningful module, set "insufficient_source" to true and explain why in "insufficient_reason".

You only ever answer with a single JSON object.`

var synthesizerPromptTmpl = template.Must(template.New("synthesizer").Parse(`Module title: {{.Title}}
{{- if .Description}}
Module description: {{.Description}}
{{- end}}
Difficulty: {{.Difficulty}}

SOURCE CONTEXT
{{range $i, $src := .Sources}}
=== Source {{$i}} ===
Title: {{$src.Title}}
Section path: {{$src.Path}}
Node id: {{$src.NodeID}}
URL: {{$src.URL}}
{{- if $src.Headings}}
Headings: {{$src.Headings}}
{{- end}}
{{- range $src.Figures}}
Figure [{{.Index}}]: {{.Label}}
{{- end}}

{{$src.Text}}
{{end}}
{{- if .Visuals}}
ILLUSTRATIVE VISUALS (subordinate to the text, never a source of facts)
{{- range .Visuals}}
- {{.}}
{{- end}}
{{end}}
Respond with a JSON object in exactly this shape:
{
  "insufficient_source": false,
  "insufficient_reason": "",
  "overview": "...",
  "objectives": ["..."],
  "sections": [{"title": "...", "content": "...", "node_ids": ["..."]}],
  "key_concepts": [{"term": "...", "definition": "..."}],
  "exercises": [{"prompt": "...", "hint": "..."}],
  "assessment": [{"question": "...", "options": ["..."], "answer": "..."}],
  "visual_specs": [{"type": "diagram", "description": "..."}],
  "figure_indices": [0]
}
`))

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
