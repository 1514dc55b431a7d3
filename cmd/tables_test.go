package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestRenderSeeds(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderSeeds(&buf, []domain.Seed{
		{Name: "python-docs", Type: "sphinx", BaseURL: "https://docs.python.org/3/", Subjects: []string{"python", "programming"}},
		{Name: "openstax", Type: "openstax", BaseURL: "https://openstax.org", RateLimit: 10},
	})

	out := buf.String()
	assert.Contains(t, out, "python-docs")
	assert.Contains(t, out, "python, programming")
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "10")
}

func TestRenderAssets_CountsActive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderAssets(&buf, []domain.Asset{
		{ID: "a1", Title: "Algebra", LicenseName: "CC BY 4.0", RobotsStatus: domain.RobotsAllowed, Active: true, TocNodeCount: 12},
		{ID: "a2", Title: "Biology", RobotsStatus: domain.RobotsAllowed},
	})

	out := buf.String()
	assert.Contains(t, out, "CC BY 4.0")
	assert.Contains(t, out, "unknown")
	assert.Contains(t, out, "1/2")
}

func TestRenderScanResults(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var buf bytes.Buffer
	renderScanResults(&buf, []*domain.ScanResult{
		{
			Success:       true,
			DurationMs:    1250,
			Source:        &domain.Source{Name: "python-docs", LastScannedAt: &now},
			AssetsScanned: 1,
			NodesMapped:   40,
			Errors:        []string{"tutorial: toc extraction failed"},
		},
		{Success: false},
	})

	out := buf.String()
	assert.Contains(t, out, "python-docs")
	assert.Contains(t, out, "1250ms")
	assert.True(t, strings.Contains(out, "! tutorial: toc extraction failed"))
}
