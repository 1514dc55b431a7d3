package domain

import "time"

// UnavailableKind classifies why grounded content could not be produced.
type UnavailableKind string

const (
	UnavailableNone               UnavailableKind = ""
	UnavailableAssetMissing       UnavailableKind = "asset_missing"
	UnavailableAssetInactive      UnavailableKind = "asset_inactive"
	UnavailableNoToc              UnavailableKind = "no_toc"
	UnavailableNoNodesSelected    UnavailableKind = "no_nodes_selected"
	UnavailableResolverError      UnavailableKind = "resolver_error"
	UnavailableNodesNotFound      UnavailableKind = "nodes_not_found"
	UnavailableNoContent          UnavailableKind = "no_content_retrieved"
	UnavailableParseError         UnavailableKind = "parse_error"
	UnavailableModelUnreachable   UnavailableKind = "model_unreachable"
	UnavailableInsufficientSource UnavailableKind = "insufficient_source"
)

// Difficulty levels accepted by the synthesizer.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Module is the learning module record that grounding results are written to.
type Module struct {
	ID                  string       `db:"id"                   json:"id"`
	Title               string       `db:"title"                json:"title"`
	Description         string       `db:"description"          json:"description"`
	PathContext         string       `db:"path_context"         json:"path_context,omitempty"`
	Difficulty          string       `db:"difficulty"           json:"difficulty"`
	AssetID             *string      `db:"asset_id"             json:"asset_id,omitempty"`
	SourceNodeIDs       StringList   `db:"source_node_ids"      json:"source_node_ids"`
	ContentUnavailable  bool         `db:"content_unavailable"  json:"content_unavailable"`
	ResolutionReasoning string       `db:"resolution_reasoning" json:"resolution_reasoning,omitempty"`
	ResolvedAt          *time.Time   `db:"resolved_at"          json:"resolved_at,omitempty"`
	Citations           CitationList `db:"citations"            json:"citations,omitempty"`
	CreatedAt           time.Time    `db:"created_at"           json:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at"           json:"updated_at"`
}

// ResolveNodesRequest describes the module a resolver selects nodes for.
type ResolveNodesRequest struct {
	ModuleID    string `json:"module_id,omitempty"`
	AssetID     string `json:"asset_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PathContext string `json:"path_context,omitempty"`
}

// ResolveNodesResult is the outcome of node resolution for one module.
// ContentUnavailable is true whenever SourceNodeIDs is empty.
type ResolveNodesResult struct {
	AssetID            string          `json:"asset_id"`
	SourceNodeIDs      []string        `json:"source_node_ids"`
	ContentUnavailable bool            `json:"content_unavailable"`
	UnavailableKind    UnavailableKind `json:"unavailable_kind,omitempty"`
	Reasoning          string          `json:"reasoning"`
	ResolvedAt         time.Time       `json:"resolved_at"`
}

// UnavailableResolution builds an empty resolution with the given reason.
func UnavailableResolution(assetID string, kind UnavailableKind, reasoning string) ResolveNodesResult {
	return ResolveNodesResult{
		AssetID:            assetID,
		SourceNodeIDs:      []string{},
		ContentUnavailable: true,
		UnavailableKind:    kind,
		Reasoning:          reasoning,
		ResolvedAt:         time.Now().UTC(),
	}
}

// Figure is an image with its caption extracted from a source page.
type Figure struct {
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// ExtractedContent is the clean content of one TOC node page.
type ExtractedContent struct {
	NodeID      string   `json:"node_id"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	ContentText string   `json:"content_text"`
	Headings    []string `json:"headings"`
	Figures     []Figure `json:"figures"`
	SourceTitle string   `json:"source_title"`
	SectionPath []string `json:"section_path"`
}

// Citation is a display-only provenance record.
type Citation struct {
	SourceTitle  string   `json:"source_title"`
	SectionTitle string   `json:"section_title"`
	SectionPath  []string `json:"section_path"`
	URL          string   `json:"url"`
	NodeID       string   `json:"node_id"`
}

// RenderedSection is one chapter or section of synthesized content.
type RenderedSection struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	NodeIDs []string `json:"node_ids,omitempty"`
}

// KeyConcept is a term defined from the source material.
type KeyConcept struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// Exercise is a practice prompt.
type Exercise struct {
	Prompt string `json:"prompt"`
	Hint   string `json:"hint,omitempty"`
}

// AssessmentItem is a check-for-understanding question.
type AssessmentItem struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
	Answer   string   `json:"answer"`
}

// VisualSpec is a model-proposed visual described in text.
type VisualSpec struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// RenderedModuleContent is synthesized, source-grounded module content.
type RenderedModuleContent struct {
	Overview           string            `json:"overview"`
	Objectives         []string          `json:"objectives"`
	Sections           []RenderedSection `json:"sections"`
	KeyConcepts        []KeyConcept      `json:"key_concepts"`
	Exercises          []Exercise        `json:"exercises"`
	Assessment         []AssessmentItem  `json:"assessment"`
	VisualSpecs        []VisualSpec      `json:"visual_specs"`
	Figures            []Figure          `json:"figures"`
	Citations          []Citation        `json:"citations"`
	CitationDisplay    string            `json:"citation_display,omitempty"`
	VisualAids         []VisualAid       `json:"visual_aids,omitempty"`
	ContentUnavailable bool              `json:"content_unavailable"`
	UnavailableKind    UnavailableKind   `json:"unavailable_kind,omitempty"`
	UnavailableReason  string            `json:"unavailable_reason,omitempty"`
	GeneratedAt        time.Time         `json:"generated_at"`
}

// UnavailableContent builds an empty rendering with the given reason.
func UnavailableContent(kind UnavailableKind, reason string) RenderedModuleContent {
	return RenderedModuleContent{
		Objectives:         []string{},
		Sections:           []RenderedSection{},
		KeyConcepts:        []KeyConcept{},
		Exercises:          []Exercise{},
		Assessment:         []AssessmentItem{},
		VisualSpecs:        []VisualSpec{},
		Figures:            []Figure{},
		Citations:          []Citation{},
		ContentUnavailable: true,
		UnavailableKind:    kind,
		UnavailableReason:  reason,
		GeneratedAt:        time.Now().UTC(),
	}
}
