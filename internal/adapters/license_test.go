package adapters

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLicense(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		html       string
		wantName   string
		wantConf   float64
		wantURLSet bool
	}{
		{
			name:       "rel license link",
			html:       `<a rel="license" href="http://creativecommons.org/licenses/by/4.0/">CC</a>`,
			wantName:   "CC BY 4.0",
			wantConf:   relLicenseConfidence,
			wantURLSet: true,
		},
		{
			name:       "plain creative commons link",
			html:       `<p>Shared under <a href="https://creativecommons.org/licenses/by-sa/3.0/">this</a>.</p>`,
			wantName:   "CC BY-SA 3.0",
			wantConf:   ccLinkConfidence,
			wantURLSet: true,
		},
		{
			name:     "long footer text",
			html:     `<footer>Licensed under Creative Commons Attribution-NonCommercial-ShareAlike 4.0 International.</footer>`,
			wantName: "CC BY-NC-SA 4.0",
			wantConf: footerTextConfidence,
		},
		{
			name:     "short footer text",
			html:     `<div class="footer">Content is CC BY-NC 4.0 unless noted.</div>`,
			wantName: "CC BY-NC 4.0",
			wantConf: footerTextConfidence,
		},
		{
			name:     "psf license",
			html:     `<div class="footer">Python Software Foundation License Version 2</div>`,
			wantName: "Python Software Foundation License",
			wantConf: footerTextConfidence,
		},
		{
			name: "nothing",
			html: `<p>All rights reserved.</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body>" + tt.html + "</body></html>"))
			require.NoError(t, err)

			got := detectLicense(doc, "https://example.org/book/")
			assert.Equal(t, tt.wantName, got.Name)
			assert.InDelta(t, tt.wantConf, got.Confidence, 0.001)
			assert.Equal(t, tt.wantURLSet, got.URL != "")
		})
	}
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "calculus-volume-1", slugify("Calculus: Volume 1"))
	assert.Equal(t, "numpy-2-1", slugify("  NumPy (2.1) "))
	assert.Empty(t, slugify("---"))
	assert.Equal(t, "index", slugFromURL("https://docs.example.org/en/index.html"))
	assert.Equal(t, "prealgebra-2e", slugFromURL("https://openstax.org/details/books/prealgebra-2e/"))
	assert.Equal(t, "example-org", slugFromURL("https://example.org/"))
}
