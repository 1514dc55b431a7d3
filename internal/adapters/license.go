package adapters

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
)

// Confidence levels for each detection signal.
const (
	relLicenseConfidence  = 0.95
	ccLinkConfidence      = 0.85
	footerTextConfidence  = 0.7
	seedLicenseConfidence = 0.5
)

type license struct {
	Name       string
	URL        string
	Confidence float64
}

var (
	ccPathPattern = regexp.MustCompile(`/licenses/([a-z-]+)/(\d\.\d)`)
	ccTextPattern = regexp.MustCompile(`(?i)\bCC[ -]BY(?:[ -](?:NC|SA|ND)){0,2}(?:\s+\d\.\d)?\b`)
	ccLongPattern = regexp.MustCompile(`(?i)Creative Commons Attribution(?:[- ](?:NonCommercial|ShareAlike|NoDerivatives|NoDerivs)){0,2}(?:\s+\d\.\d)?(?:\s+International)?`)
	mitLicenseRe  = regexp.MustCompile(`(?i)\bMIT License\b`)
	psfLicenseRe  = regexp.MustCompile(`(?i)Python Software Foundation License`)

	licenseVersionRe = regexp.MustCompile(`\d\.\d`)
)

// detectLicense looks for license markup on a page: rel=license links first,
// then Creative Commons links, then license text in the footer.
func detectLicense(doc *goquery.Document, pageURL string) license {
	if href, ok := doc.Find(`a[rel~="license"], link[rel~="license"]`).First().Attr("href"); ok {
		abs := fetcher.ResolveURL(pageURL, href)
		return license{Name: licenseNameFromURL(abs), URL: abs, Confidence: relLicenseConfidence}
	}

	if href, ok := doc.Find(`a[href*="creativecommons.org/licenses"]`).First().Attr("href"); ok {
		abs := fetcher.ResolveURL(pageURL, href)
		return license{Name: licenseNameFromURL(abs), URL: abs, Confidence: ccLinkConfidence}
	}

	footer := doc.Find("footer, .footer, #footer, div.copyright, .license").Text()
	footer = strings.Join(strings.Fields(footer), " ")
	for _, re := range []*regexp.Regexp{ccLongPattern, ccTextPattern, psfLicenseRe, mitLicenseRe} {
		if m := re.FindString(footer); m != "" {
			return license{Name: normalizeLicenseText(m), Confidence: footerTextConfidence}
		}
	}

	return license{}
}

// licenseNameFromURL turns a creativecommons.org license URL into a short
// name such as "CC BY-NC-SA 4.0". Other URLs return their host and path.
func licenseNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.Contains(u.Host, "creativecommons.org") {
		if m := ccPathPattern.FindStringSubmatch(u.Path); m != nil {
			return "CC " + strings.ToUpper(m[1]) + " " + m[2]
		}
		if strings.Contains(u.Path, "publicdomain") {
			return "CC0 1.0"
		}
	}
	return strings.TrimSuffix(u.Host+u.Path, "/")
}

var longToShort = strings.NewReplacer(
	"Creative Commons Attribution", "CC BY",
	"-NonCommercial", "-NC", " NonCommercial", "-NC",
	"-ShareAlike", "-SA", " ShareAlike", "-SA",
	"-NoDerivatives", "-ND", " NoDerivatives", "-ND",
	"-NoDerivs", "-ND", " NoDerivs", "-ND",
	" International", "",
)

func normalizeLicenseText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if strings.HasPrefix(strings.ToLower(s), "creative commons") {
		return longToShort.Replace(s)
	}
	if strings.HasPrefix(strings.ToUpper(s), "CC") {
		rest := strings.TrimLeft(strings.ToUpper(s[2:]), "- ")
		version := ""
		if v := licenseVersionRe.FindString(rest); v != "" {
			version = " " + v
			rest = strings.TrimSpace(strings.Replace(rest, v, "", 1))
		}
		return "CC " + strings.ReplaceAll(rest, " ", "-") + version
	}
	return s
}
