package adapters

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

const openStaxDefaultAPIPath = "/apps/cms/api/v2/pages/?type=books.Book" +
	"&fields=title,slug,book_state,description,webview_rex_link,book_subjects,book_categories&limit=250"

var openStaxTocSelectors = []string{
	`nav[data-testid="toc"] > ol`,
	`nav[aria-label*="Table of Contents"] > ol`,
	`nav[aria-label*="table of contents"] > ol`,
	`ol.os-toc`,
	`nav ol`,
}

var (
	openStaxUnitRe    = regexp.MustCompile(`(?i)^unit\s+\d+`)
	openStaxSectionRe = regexp.MustCompile(`^\d+\.\d+\b`)
	openStaxChapterRe = regexp.MustCompile(`^\d+\s`)
)

// OpenStaxConfig is the seed config for OpenStax catalogs.
type OpenStaxConfig struct {
	APIURL   string   `mapstructure:"api_url"`
	Subjects []string `mapstructure:"subjects"`
	MaxBooks int      `mapstructure:"max_books"`
	// States are the accepted book_state values.
	States []string `mapstructure:"states"`
}

// OpenStax reads the OpenStax CMS book catalog and the REX reader TOC.
type OpenStax struct {
	base
}

func (a *OpenStax) SourceType() string { return domain.SourceTypeOpenStax }

type openStaxCatalog struct {
	Items []openStaxBook `json:"items"`
}

type openStaxBook struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Meta  struct {
		Slug string `json:"slug"`
	} `json:"meta"`
	BookState      string `json:"book_state"`
	Description    string `json:"description"`
	WebviewRexLink string `json:"webview_rex_link"`
	BookSubjects   []struct {
		SubjectName string `json:"subject_name"`
	} `json:"book_subjects"`
	BookCategories []struct {
		SubjectCategory string `json:"subject_category"`
	} `json:"book_categories"`
}

// DiscoverAssets lists live books from the CMS API, falling back to the
// subjects page when the API is unavailable.
func (a *OpenStax) DiscoverAssets(ctx context.Context, seedURL string, raw map[string]any) ([]domain.AssetCandidate, error) {
	var cfg OpenStaxConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.APIURL == "" {
		cfg.APIURL = strings.TrimSuffix(seedURL, "/") + openStaxDefaultAPIPath
	}
	if len(cfg.States) == 0 {
		cfg.States = []string{"live", "new_edition_available"}
	}

	var catalog openStaxCatalog
	if err := a.fetchJSON(ctx, cfg.APIURL, &catalog); err != nil {
		a.log.Warn("openstax catalog api unavailable, scraping subjects page", logger.Error(err))
		return a.discoverFromSubjects(ctx, seedURL, cfg)
	}

	candidates := make([]domain.AssetCandidate, 0, len(catalog.Items))
	for i := range catalog.Items {
		book := &catalog.Items[i]
		if !containsFold(cfg.States, book.BookState) || book.Meta.Slug == "" {
			continue
		}

		subjects := make([]string, 0, len(book.BookSubjects))
		for _, s := range book.BookSubjects {
			subjects = append(subjects, s.SubjectName)
		}
		if len(cfg.Subjects) > 0 && !anyFold(cfg.Subjects, subjects) {
			continue
		}
		categories := make([]string, 0, len(book.BookCategories))
		for _, c := range book.BookCategories {
			categories = append(categories, c.SubjectCategory)
		}

		candidates = append(candidates, domain.AssetCandidate{
			Slug:          book.Meta.Slug,
			Title:         book.Title,
			URL:           strings.TrimSuffix(seedURL, "/") + "/details/books/" + book.Meta.Slug,
			Description:   stripTags(book.Description),
			Subjects:      subjects,
			Categories:    categories,
			SelectorHints: []string{`div[data-type="page"]`, "#main-content"},
			Metadata: map[string]any{
				"toc_url":     book.WebviewRexLink,
				"openstax_id": book.ID,
			},
		})
		if cfg.MaxBooks > 0 && len(candidates) >= cfg.MaxBooks {
			break
		}
	}

	return candidates, nil
}

func (a *OpenStax) discoverFromSubjects(ctx context.Context, seedURL string, cfg OpenStaxConfig) ([]domain.AssetCandidate, error) {
	pageURL := strings.TrimSuffix(seedURL, "/") + "/subjects"
	doc, err := a.fetchDoc(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("openstax discovery: %w", err)
	}

	seen := make(map[string]bool)
	var candidates []domain.AssetCandidate
	doc.Find(`a[href*="/details/books/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := fetcher.ResolveURL(pageURL, href)
		slug := slugFromURL(abs)
		if slug == "" || seen[slug] {
			return
		}
		if cfg.MaxBooks > 0 && len(candidates) >= cfg.MaxBooks {
			return
		}
		seen[slug] = true

		title := strings.Join(strings.Fields(s.Text()), " ")
		if title == "" {
			title = slug
		}
		candidates = append(candidates, domain.AssetCandidate{
			Slug:          slug,
			Title:         title,
			URL:           abs,
			SelectorHints: []string{`div[data-type="page"]`, "#main-content"},
		})
	})
	return candidates, nil
}

func (a *OpenStax) Validate(ctx context.Context, candidate domain.AssetCandidate, _ string) (domain.ValidationResult, error) {
	return a.validate(ctx, candidate)
}

// MapToc parses the REX reader navigation. Units become parts, numbered
// top-level entries chapters, "N.M" entries sections, the rest pages.
func (a *OpenStax) MapToc(ctx context.Context, candidate domain.AssetCandidate, baseURL string) ([]domain.TocNode, error) {
	tocURL := metadataString(candidate, "toc_url")
	if tocURL == "" {
		tocURL = strings.TrimSuffix(baseURL, "/") + "/books/" + url.PathEscape(candidate.Slug) + "/pages/preface"
	}

	doc, err := a.fetchDoc(ctx, tocURL)
	if err != nil {
		return nil, err
	}

	list := firstMatch(doc, openStaxTocSelectors...)
	if list == nil {
		return nil, fmt.Errorf("%w at %s", ErrNoToc, tocURL)
	}

	b := toc.NewBuilder()
	walkList(list, tocURL, "", 0, b, classifyOpenStax)
	return b.Nodes(), nil
}

func classifyOpenStax(title string, depth int, hasChildren bool) domain.NodeType {
	switch {
	case openStaxUnitRe.MatchString(title):
		return domain.NodeTypePart
	case openStaxSectionRe.MatchString(title):
		if depth > 1 && !hasChildren {
			return domain.NodeTypeSubsection
		}
		return domain.NodeTypeSection
	case openStaxChapterRe.MatchString(title) || (hasChildren && depth <= 1):
		return domain.NodeTypeChapter
	default:
		return domain.NodeTypePage
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func anyFold(want, have []string) bool {
	for _, h := range have {
		if containsFold(want, h) {
			return true
		}
	}
	return false
}

func stripTags(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
