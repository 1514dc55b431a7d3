package domain

// VisualType is the kind of illustration an intent asks for.
type VisualType string

const (
	VisualDiagram VisualType = "diagram"
	VisualGraph   VisualType = "graph"
	VisualPlot    VisualType = "plot"
	VisualFlow    VisualType = "flow"
)

// UsageIllustrative is the only usage label a VisualAid may carry.
const UsageIllustrative = "illustrative"

// VisualIntent specifies an illustrative image to search for.
type VisualIntent struct {
	Concept     string     `json:"concept"`
	Type        VisualType `json:"type"`
	KeyElements []string   `json:"key_elements"`
	Constraints []string   `json:"constraints"`
	SearchQuery string     `json:"search_query"`
	Priority    int        `json:"priority"`
}

// VisualAid is a non-authoritative image found for an intent.
type VisualAid struct {
	Concept      string  `json:"concept"`
	Title        string  `json:"title"`
	ImageURL     string  `json:"image_url"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	PageURL      string  `json:"page_url,omitempty"`
	License      string  `json:"license,omitempty"`
	Attribution  string  `json:"attribution,omitempty"`
	Provider     string  `json:"provider"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Score        float64 `json:"score"`
	UsageLabel   string  `json:"usage_label"`
}
