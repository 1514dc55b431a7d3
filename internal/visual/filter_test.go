package visual_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/visual"
)

var testFilter = visual.FilterConfig{MinWidth: 300, MinHeight: 200, MinScore: 3}

func circleIntent() domain.VisualIntent {
	return domain.VisualIntent{
		Concept:     "Area of a circle",
		Type:        domain.VisualDiagram,
		KeyElements: []string{"radius", "pi"},
		SearchQuery: "circle area diagram",
		Priority:    8,
	}
}

func candidate(title string) visual.Candidate {
	return visual.Candidate{
		Title:    title,
		ImageURL: "https://img.example.org/" + title,
		MIME:     "image/svg+xml",
		Width:    800,
		Height:   600,
	}
}

func TestReject(t *testing.T) {
	t.Parallel()

	rectangleIntent := domain.VisualIntent{Concept: "Area of a rectangle", SearchQuery: "rectangle area diagram"}

	tests := []struct {
		name   string
		intent domain.VisualIntent
		c      visual.Candidate
		reject bool
	}{
		{name: "good diagram", intent: circleIntent(), c: candidate("Circle area labeled diagram.svg")},
		{name: "rectangle for circle", intent: circleIntent(), c: candidate("Rectangle area diagram"), reject: true},
		{name: "circle for rectangle", intent: rectangleIntent, c: candidate("Circle area diagram"), reject: true},
		{name: "photo", intent: circleIntent(), c: candidate("Photo of a circular pond"), reject: true},
		{name: "logo", intent: circleIntent(), c: candidate("Circle logo"), reject: true},
		{name: "map", intent: circleIntent(), c: candidate("Circle line map"), reject: true},
		{name: "wrong math domain", intent: domain.VisualIntent{Concept: "calculus limit"}, c: candidate("statistics limit diagram"), reject: true},
		{name: "specialized", intent: circleIntent(), c: candidate("Circle fractal diagram"), reject: true},
		{
			name:   "openverse photograph category",
			intent: circleIntent(),
			c: func() visual.Candidate {
				c := candidate("Circle area")
				c.Category = "photograph"
				return c
			}(),
			reject: true,
		},
		{
			name:   "jpeg without diagram terms",
			intent: circleIntent(),
			c: func() visual.Candidate {
				c := candidate("Circle area")
				c.MIME = "image/jpeg"
				return c
			}(),
			reject: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reason := visual.Reject(tt.intent, tt.c, testFilter)
			if tt.reject {
				assert.NotEmpty(t, reason)
			} else {
				assert.Empty(t, reason)
			}
		})
	}
}

func TestReject_MinimumSizeRegardlessOfMatch(t *testing.T) {
	t.Parallel()

	c := candidate("Circle area radius pi labeled diagram")
	c.Width = 299
	assert.Equal(t, "below minimum size", visual.Reject(circleIntent(), c, testFilter))

	c.Width, c.Height = 800, 150
	assert.Equal(t, "below minimum size", visual.Reject(circleIntent(), c, testFilter))

	c.Width, c.Height = 0, 0
	assert.NotEmpty(t, visual.Reject(circleIntent(), c, testFilter), "unknown size is rejected")
}

func TestRelevantTerms(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"area", "circle", "radius"}, visual.RelevantTerms(circleIntent()))
}

func TestScore(t *testing.T) {
	t.Parallel()

	intent := circleIntent()

	labeled := visual.Score(intent, candidate("Circle area radius labeled diagram"))
	plain := visual.Score(intent, candidate("Circle area"))
	fileish := visual.Score(intent, candidate("Circle area file svg"))
	offTopic := visual.Score(intent, visual.Candidate{Title: "Geometric shapes"})

	assert.Equal(t, 3+2+1, labeled)
	assert.Equal(t, 2, plain)
	assert.Equal(t, 0, fileish)
	assert.Equal(t, -2, offTopic, "low coverage is penalized")
	assert.Greater(t, labeled, plain)
}
