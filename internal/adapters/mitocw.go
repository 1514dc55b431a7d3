package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

const (
	ocwDefaultCatalogPath = "/search/?t=Mathematics"
	ocwDefaultCacheTTL    = 6 * time.Hour
	ocwCoursePrefix       = "/courses/"
)

var ocwNavSelectors = []string{
	"nav.course-nav > ul",
	"#course-nav ul",
	"ul.course-nav-list",
	"nav#desktop-course-drawer ul",
}

var defaultNow = time.Now

// MITOCWConfig is the seed config for MIT OpenCourseWare listings.
type MITOCWConfig struct {
	CatalogPath  string        `mapstructure:"catalog_path"`
	MaxCourses   int           `mapstructure:"max_courses"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	ForceRefresh bool          `mapstructure:"force_refresh"`
}

// catalogCache holds the last fetched course list.
type catalogCache struct {
	value     []domain.AssetCandidate
	fetchedAt time.Time
}

// isStale reports whether the cache is empty or older than ttl at now.
func (c catalogCache) isStale(now time.Time, ttl time.Duration) bool {
	return c.fetchedAt.IsZero() || now.Sub(c.fetchedAt) >= ttl
}

// MITOCW discovers courses from an OCW listing page and maps each course's
// navigation. The course list is cached until its TTL expires or a refresh
// is forced.
type MITOCW struct {
	base

	mu    sync.Mutex
	cache catalogCache
	now   func() time.Time
}

func (a *MITOCW) SourceType() string { return domain.SourceTypeMITOCW }

func (a *MITOCW) DiscoverAssets(ctx context.Context, seedURL string, raw map[string]any) ([]domain.AssetCandidate, error) {
	var cfg MITOCWConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = ocwDefaultCatalogPath
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = ocwDefaultCacheTTL
	}

	a.mu.Lock()
	cached := a.cache
	a.mu.Unlock()

	if !cfg.ForceRefresh && !cached.isStale(a.now(), cfg.CacheTTL) {
		a.log.Debug("using cached ocw catalog", logger.Int("courses", len(cached.value)))
		return cached.value, nil
	}

	courses, err := a.fetchCatalog(ctx, fetcher.ResolveURL(seedURL, cfg.CatalogPath), cfg.MaxCourses)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache = catalogCache{value: courses, fetchedAt: a.now()}
	a.mu.Unlock()

	return courses, nil
}

func (a *MITOCW) fetchCatalog(ctx context.Context, catalogURL string, maxCourses int) ([]domain.AssetCandidate, error) {
	doc, err := a.fetchDoc(ctx, catalogURL)
	if err != nil {
		return nil, fmt.Errorf("ocw catalog: %w", err)
	}

	seen := make(map[string]bool)
	var courses []domain.AssetCandidate
	doc.Find(`a[href*="/courses/"]`).Each(func(_ int, s *goquery.Selection) {
		if maxCourses > 0 && len(courses) >= maxCourses {
			return
		}
		href, _ := s.Attr("href")
		courseURL, slug := ocwCourseRoot(fetcher.ResolveURL(catalogURL, href))
		if slug == "" || seen[slug] {
			return
		}

		title := strings.Join(strings.Fields(s.Find(".course-title").Text()), " ")
		if title == "" {
			title = strings.Join(strings.Fields(s.Text()), " ")
		}
		if title == "" {
			return
		}
		seen[slug] = true

		courses = append(courses, domain.AssetCandidate{
			Slug:          slug,
			Title:         title,
			URL:           courseURL,
			SelectorHints: []string{"#course-content-section", "main#main-content", "article"},
		})
	})
	return courses, nil
}

// ocwCourseRoot reduces any course URL to https://host/courses/<slug>/.
func ocwCourseRoot(raw string) (courseURL, slug string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	rest, ok := strings.CutPrefix(u.Path, ocwCoursePrefix)
	if !ok {
		return "", ""
	}
	slug, _, _ = strings.Cut(rest, "/")
	if slug == "" {
		return "", ""
	}
	return u.Scheme + "://" + u.Host + ocwCoursePrefix + slug + "/", slug
}

func (a *MITOCW) Validate(ctx context.Context, candidate domain.AssetCandidate, _ string) (domain.ValidationResult, error) {
	return a.validate(ctx, candidate)
}

// MapToc parses the course navigation. When no navigation is present the
// course's /pages/ links become a flat list.
func (a *MITOCW) MapToc(ctx context.Context, candidate domain.AssetCandidate, _ string) ([]domain.TocNode, error) {
	doc, err := a.fetchDoc(ctx, candidate.URL)
	if err != nil {
		return nil, err
	}

	b := toc.NewBuilder()
	if list := firstMatch(doc, ocwNavSelectors...); list != nil {
		walkList(list, candidate.URL, "", 0, b, classifyOCW)
	}

	if b.Len() == 0 {
		_, slug := ocwCourseRoot(candidate.URL)
		seen := make(map[string]bool)
		doc.Find(`a[href*="/pages/"]`).Each(func(_ int, s *goquery.Selection) {
			abs := fetcher.ResolveURL(candidate.URL, s.AttrOr("href", ""))
			if !strings.Contains(abs, ocwCoursePrefix+slug+"/") || seen[abs] {
				return
			}
			seen[abs] = true
			b.Add("", s.Text(), abs, domain.NodeTypePage)
		})
	}

	if b.Len() == 0 {
		return nil, fmt.Errorf("%w at %s", ErrNoToc, candidate.URL)
	}
	return b.Nodes(), nil
}

func classifyOCW(_ string, depth int, hasChildren bool) domain.NodeType {
	switch {
	case hasChildren && depth == 0:
		return domain.NodeTypeChapter
	case hasChildren:
		return domain.NodeTypeSection
	case depth == 0:
		return domain.NodeTypePage
	default:
		return domain.NodeTypeSubsection
	}
}
