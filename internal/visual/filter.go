package visual

import (
	"regexp"
	"slices"
	"strings"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
)

// FilterConfig holds the size and score thresholds.
type FilterConfig struct {
	MinWidth  int
	MinHeight int
	MinScore  int
}

const (
	labeledBonus      = 2
	formulaBonus      = 1
	diagramBonus      = 1
	fileTypePenalty   = 1
	coveragePenalty   = 2
	minCoverageTerms  = 3
	minCoverageRatio  = 0.25
	minRelevantLength = 3
)

var (
	photoTerms = []string{
		"photo", "photograph", "photography", "portrait", "selfie", "headshot",
		"scenery", "landscape", "camera", "img_",
	}
	decorativeTerms = []string{
		"logo", "icon", "map", "flag", "coat of arms", "emblem", "seal", "banner",
		"pattern", "wallpaper", "texture", "ornament", "clipart", "tile", "mosaic",
	}
	shapeTerms = []string{
		"circle", "rectangle", "triangle", "square", "ellipse", "hexagon", "pentagon", "polygon",
	}
	// mathDomains are sub-fields an image can be specialized to.
	mathDomains = []string{
		"calculus", "algebra", "geometry", "trigonometry", "statistics", "probability",
		"topology", "number theory", "combinatorics", "differential equations",
	}
	specializedTerms = []string{
		"manifold", "fractal", "knot", "tesseract", "stereographic", "quaternion", "lie group",
	}
	fileTypeWords = []string{"svg", "png", "jpg", "jpeg", "gif", "file", "image", "img", "version"}

	stopwords = map[string]bool{
		"the": true, "and": true, "for": true, "with": true, "from": true, "that": true,
		"this": true, "into": true, "how": true, "what": true, "are": true, "its": true,
		"show": true, "shows": true, "showing": true, "must": true, "not": true,
	}

	wordRe = regexp.MustCompile(`[a-z0-9]+`)
)

// RelevantTerms are the lowercase words of an intent used for matching.
func RelevantTerms(intent domain.VisualIntent) []string {
	parts := append([]string{intent.Concept, intent.SearchQuery}, intent.KeyElements...)
	var terms []string
	for _, w := range wordRe.FindAllString(strings.ToLower(strings.Join(parts, " ")), -1) {
		if len(w) < minRelevantLength || stopwords[w] || isDiagramTerm(w) || slices.Contains(terms, w) {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// Reject returns a non-empty reason when the candidate must not be used.
func Reject(intent domain.VisualIntent, c Candidate, cfg FilterConfig) string {
	if c.ImageURL == "" {
		return "no image url"
	}
	if c.Width < cfg.MinWidth || c.Height < cfg.MinHeight {
		return "below minimum size"
	}

	text := c.Text()
	terms := RelevantTerms(intent)
	intentText := strings.ToLower(intent.Concept + " " + strings.Join(intent.KeyElements, " ") + " " + intent.SearchQuery)

	if strings.EqualFold(c.Category, "photograph") {
		return "photograph"
	}
	if t := firstContained(text, photoTerms); t != "" {
		return "photograph: " + t
	}
	if (strings.Contains(c.MIME, "jpeg") || strings.Contains(c.MIME, "jpg")) && firstContained(text, diagramTerms) == "" {
		return "photograph: jpeg without diagram terms"
	}
	if t := firstContained(text, decorativeTerms); t != "" && !strings.Contains(intentText, t) {
		return "decorative: " + t
	}
	if reason := mismatch(text, intentText, terms, shapeTerms, "shape"); reason != "" {
		return reason
	}
	if reason := mismatch(text, intentText, terms, mathDomains, "domain"); reason != "" {
		return reason
	}
	if t := firstContained(text, specializedTerms); t != "" && !strings.Contains(intentText, t) {
		return "specialized: " + t
	}
	return ""
}

// mismatch rejects a candidate naming a group member (a shape, a math
// sub-field) when the intent names a different member and not that one.
func mismatch(text, intentText string, terms, group []string, kind string) string {
	var wanted []string
	for _, g := range group {
		if slices.Contains(terms, g) || containsWord(intentText, g) {
			wanted = append(wanted, g)
		}
	}
	if len(wanted) == 0 {
		return ""
	}
	for _, g := range group {
		if slices.Contains(wanted, g) {
			continue
		}
		if containsWord(text, g) {
			return kind + " mismatch: " + g
		}
	}
	return ""
}

// Score rates a candidate that passed Reject.
func Score(intent domain.VisualIntent, c Candidate) int {
	text := c.Text()
	terms := RelevantTerms(intent)

	overlap := 0
	for _, t := range terms {
		if containsWord(text, t) {
			overlap++
		}
	}
	score := overlap

	if containsWord(text, "labeled") || containsWord(text, "labelled") {
		score += labeledBonus
	}
	if containsWord(text, "formula") {
		score += formulaBonus
	}
	if firstContained(text, diagramTerms) != "" {
		score += diagramBonus
	}
	for _, w := range fileTypeWords {
		if containsWord(strings.ToLower(c.Title), w) {
			score -= fileTypePenalty
		}
	}
	if len(terms) >= minCoverageTerms && float64(overlap)/float64(len(terms)) < minCoverageRatio {
		score -= coveragePenalty
	}
	return score
}

func firstContained(text string, terms []string) string {
	for _, t := range terms {
		if containsWord(text, t) || (strings.HasSuffix(t, "_") && strings.Contains(text, t)) {
			return t
		}
	}
	return ""
}

// containsWord matches term at word boundaries; plural "s" is allowed.
func containsWord(text, term string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], term)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(term)
		if end < len(text) && text[end] == 's' {
			end++
		}
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
