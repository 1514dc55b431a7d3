package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

const sphinxDefaultIndex = "index.html"

var sphinxSelectorHints = []string{`div[role="main"]`, "article.bd-article", "div.body", "div.document"}

var sphinxSidebarSelectors = []string{
	"nav.bd-docs-nav ul",
	"div.wy-menu-vertical ul",
	"div.sphinxsidebarwrapper ul",
}

var sphinxVersionRe = regexp.MustCompile(`\d+(?:\.\d+)*`)

// SphinxConfig is the seed config for Sphinx-generated documentation.
type SphinxConfig struct {
	Title       string   `mapstructure:"title"`
	IndexPath   string   `mapstructure:"index_path"`
	SwitcherURL string   `mapstructure:"switcher_url"`
	Versions    []string `mapstructure:"versions"`
	MaxVersions int      `mapstructure:"max_versions"`
}

// Sphinx discovers documentation versions and parses toctree markup.
type Sphinx struct {
	base
}

func (a *Sphinx) SourceType() string { return domain.SourceTypeSphinx }

type sphinxVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

// DiscoverAssets returns one asset per documentation version. Versions come
// from the config, a pydata-style switcher JSON, a version <select> or the
// readthedocs flyout, in that order; with none found the seed URL itself is
// the only asset.
func (a *Sphinx) DiscoverAssets(ctx context.Context, seedURL string, raw map[string]any) ([]domain.AssetCandidate, error) {
	var cfg SphinxConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = sphinxDefaultIndex
	}
	if cfg.MaxVersions <= 0 {
		cfg.MaxVersions = 1
	}

	doc, err := a.fetchDoc(ctx, seedURL)
	if err != nil {
		return nil, fmt.Errorf("sphinx discovery: %w", err)
	}
	if cfg.Title == "" {
		cfg.Title = sphinxProjectTitle(doc)
	}

	versions := a.discoverVersions(ctx, seedURL, doc, cfg)
	if len(versions) == 0 {
		versions = []sphinxVersion{{Version: sphinxCurrentVersion(doc), URL: seedURL}}
	}
	if len(versions) > cfg.MaxVersions {
		versions = versions[:cfg.MaxVersions]
	}

	candidates := make([]domain.AssetCandidate, 0, len(versions))
	for _, v := range versions {
		title := cfg.Title
		slug := slugify(cfg.Title)
		if v.Version != "" {
			title = fmt.Sprintf("%s (%s)", cfg.Title, v.Version)
			slug = slugify(cfg.Title + " " + v.Version)
		}
		versionURL := ensureTrailingSlash(v.URL)
		candidates = append(candidates, domain.AssetCandidate{
			Slug:          slug,
			Title:         title,
			URL:           versionURL,
			Description:   metaDescription(doc),
			SelectorHints: sphinxSelectorHints,
			Metadata: map[string]any{
				"version": v.Version,
				"toc_url": fetcher.ResolveURL(versionURL, cfg.IndexPath),
			},
		})
	}
	return candidates, nil
}

func (a *Sphinx) discoverVersions(ctx context.Context, seedURL string, doc *goquery.Document, cfg SphinxConfig) []sphinxVersion {
	if len(cfg.Versions) > 0 {
		out := make([]sphinxVersion, 0, len(cfg.Versions))
		for _, v := range cfg.Versions {
			out = append(out, sphinxVersion{Version: v, URL: fetcher.ResolveURL(seedURL, "../"+v+"/")})
		}
		return out
	}

	if cfg.SwitcherURL != "" {
		var switcher []sphinxVersion
		if err := a.fetchJSON(ctx, cfg.SwitcherURL, &switcher); err != nil {
			a.log.Debug("version switcher unavailable", logger.String("url", cfg.SwitcherURL), logger.Error(err))
		} else if len(switcher) > 0 {
			for i := range switcher {
				if switcher[i].Version == "" {
					switcher[i].Version = sphinxVersionRe.FindString(switcher[i].Name)
				}
				switcher[i].URL = fetcher.ResolveURL(seedURL, switcher[i].URL)
			}
			return switcher
		}
	}

	var found []sphinxVersion
	seen := make(map[string]bool)
	add := func(label, href string) {
		version := sphinxVersionRe.FindString(label)
		if version == "" || href == "" || seen[version] {
			return
		}
		seen[version] = true
		found = append(found, sphinxVersion{Name: label, Version: version, URL: fetcher.ResolveURL(seedURL, href)})
	}

	doc.Find("select#version_select option, select.version-switcher option, .version_switcher_placeholder option").
		Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("value")
			add(s.Text(), href)
		})
	if len(found) > 0 {
		return found
	}

	doc.Find("div.rst-versions dl dd a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(s.Text(), href)
	})
	return found
}

func (a *Sphinx) Validate(ctx context.Context, candidate domain.AssetCandidate, _ string) (domain.ValidationResult, error) {
	return a.validate(ctx, candidate)
}

// MapToc parses every toctree-wrapper on the index page. Toctree captions
// become part nodes with their entries nested beneath. Without a toctree the
// theme sidebar is used.
func (a *Sphinx) MapToc(ctx context.Context, candidate domain.AssetCandidate, _ string) ([]domain.TocNode, error) {
	tocURL := metadataString(candidate, "toc_url")
	if tocURL == "" {
		tocURL = fetcher.ResolveURL(ensureTrailingSlash(candidate.URL), sphinxDefaultIndex)
	}

	doc, err := a.fetchDoc(ctx, tocURL)
	if err != nil {
		return nil, err
	}

	b := toc.NewBuilder()
	doc.Find("div.toctree-wrapper").Each(func(_ int, wrapper *goquery.Selection) {
		parentID, depth := "", 0
		if caption := strings.Join(strings.Fields(wrapper.Find("p.caption").First().Text()), " "); caption != "" {
			parentID = b.Add("", caption, "", domain.NodeTypePart)
			depth = 1
		}
		wrapper.ChildrenFiltered("ul").Each(func(_ int, list *goquery.Selection) {
			walkList(list, tocURL, parentID, depth, b, sphinxClassifier(depth))
		})
	})

	if b.Len() == 0 {
		if list := firstMatch(doc, sphinxSidebarSelectors...); list != nil {
			walkList(list, tocURL, "", 0, b, depthClassifier)
		}
	}
	if b.Len() == 0 {
		return nil, fmt.Errorf("%w at %s", ErrNoToc, tocURL)
	}
	return b.Nodes(), nil
}

// sphinxClassifier shifts depth so that toctree level 1 is always a chapter,
// whether or not it sits under a caption part.
func sphinxClassifier(offset int) classifyFunc {
	return func(title string, depth int, hasChildren bool) domain.NodeType {
		return depthClassifier(title, depth-offset, hasChildren)
	}
}

func sphinxProjectTitle(doc *goquery.Document) string {
	if t, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok && t != "" {
		return strings.TrimSpace(t)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	for _, sep := range []string{" — ", " - ", " | "} {
		if i := strings.LastIndex(title, sep); i >= 0 {
			return strings.TrimSpace(title[i+len(sep):])
		}
	}
	if title == "" {
		return "Documentation"
	}
	return title
}

func sphinxCurrentVersion(doc *goquery.Document) string {
	for _, sel := range []string{"div.version", "span.version", ".version-switcher__button", "div.rst-current-version"} {
		if v := sphinxVersionRe.FindString(doc.Find(sel).First().Text()); v != "" {
			return v
		}
	}
	return sphinxVersionRe.FindString(doc.Find("title").First().Text())
}

func metaDescription(doc *goquery.Document) string {
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		return strings.TrimSpace(desc)
	}
	if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		return strings.TrimSpace(desc)
	}
	return ""
}

func ensureTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") || strings.HasSuffix(u, ".html") {
		return u
	}
	return u + "/"
}
