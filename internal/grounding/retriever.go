package grounding

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

const (
	// DefaultMaxConcurrent is the number of nodes fetched per batch.
	DefaultMaxConcurrent = 2
	// DefaultBatchDelay separates batches.
	DefaultBatchDelay = 500 * time.Millisecond
	// minParagraphLength drops paragraphs shorter than this as noise.
	minParagraphLength = 20
)

// excludeSelectors are removed from every page before extraction.
var excludeSelectors = []string{
	"script", "style", "noscript", "iframe", "form", "button", "svg title",
	"nav", "body > header", "footer", "aside",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]",
	".sidebar", ".nav", ".navbar", ".navigation", ".breadcrumb", ".breadcrumbs",
	".toc", "#toc", ".table-of-contents", ".skip-link", ".cookie-banner",
	".advertisement", ".ads", ".share", ".social",
	// sphinx
	".sphinxsidebar", ".related", ".headerlink", ".rst-versions", ".wy-nav-side",
	// openstax
	".os-toc", ".os-teacher", "[data-type=abstract-footer]",
	// mit ocw
	"#course-banner", ".course-nav", "#mobile-course-nav",
}

// defaultContentSelectors locate the main content region, most specific first.
var defaultContentSelectors = []string{
	"main[role=main]", "main", "article", "[role=main]",
	"#main-content", ".main-content", "div.document div.body", "div.body",
	"#content", ".content", ".page-content",
}

// PageContent is the clean content of one page.
type PageContent struct {
	Title       string
	ContentText string
	Headings    []string
	Figures     []domain.Figure
}

// PageFetcher fetches pages through the polite fetcher.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetcher.Options) fetcher.Result
}

// RetrieverConfig tunes batching.
type RetrieverConfig struct {
	MaxConcurrent int
	BatchDelay    time.Duration
	// RatePerMinute overrides the fetcher's host rate limit.
	RatePerMinute int
}

// ContentRetriever fetches and extracts the pages behind TOC nodes.
type ContentRetriever struct {
	fetcher PageFetcher
	cfg     RetrieverConfig
	log     logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewContentRetriever creates a ContentRetriever.
func NewContentRetriever(f PageFetcher, cfg RetrieverConfig, log logger.Logger) *ContentRetriever {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ContentRetriever{
		fetcher: f,
		cfg:     cfg,
		log:     log.With(logger.String("component", "content_retriever")),
		sleep:   sleepCtx,
	}
}

// ExtractContentFromURL fetches pageURL and extracts its main content.
// It returns nil when the page cannot be fetched or has no content region.
func (r *ContentRetriever) ExtractContentFromURL(ctx context.Context, pageURL string, selectorHints []string) *PageContent {
	res := r.fetcher.Fetch(ctx, pageURL, fetcher.Options{RatePerMinute: r.cfg.RatePerMinute})
	if !res.OK {
		r.log.Warn("Content fetch failed", logger.String("url", pageURL), logger.Int("status", res.Status), logger.Error(res.Err))
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		r.log.Warn("Content parse failed", logger.String("url", pageURL), logger.Error(err))
		return nil
	}

	base := pageURL
	if res.FinalURL != "" {
		base = res.FinalURL
	}
	content := extractContent(doc, base, selectorHints)
	if content == nil {
		r.log.Warn("No content region found", logger.String("url", pageURL), logger.Strings("selector_hints", selectorHints))
		return nil
	}
	r.log.Debug("Content extracted",
		logger.String("url", pageURL),
		logger.Int("chars", len(content.ContentText)),
		logger.Int("headings", len(content.Headings)),
		logger.Int("figures", len(content.Figures)),
	)
	return content
}

func extractContent(doc *goquery.Document, pageURL string, selectorHints []string) *PageContent {
	pageTitle := cleanText(doc.Find("title").First().Text())
	doc.Find(strings.Join(excludeSelectors, ", ")).Remove()

	region := findRegion(doc, selectorHints)
	if region == nil {
		return nil
	}

	content := &PageContent{
		Headings: []string{},
		Figures:  []domain.Figure{},
	}
	region.Find("h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		if h := cleanText(s.Text()); h != "" {
			content.Headings = append(content.Headings, h)
		}
	})

	var paragraphs []string
	region.Find("p, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		// a blockquote's paragraphs are picked up on their own
		if goquery.NodeName(s) == "blockquote" && s.Find("p").Length() > 0 {
			return
		}
		text := cleanText(s.Text())
		if goquery.NodeName(s) == "pre" {
			text = strings.TrimSpace(s.Text())
		}
		if len([]rune(text)) < minParagraphLength {
			return
		}
		paragraphs = append(paragraphs, text)
	})
	content.ContentText = strings.Join(paragraphs, "\n\n")
	content.Figures = extractFigures(region, pageURL)

	switch {
	case len(content.Headings) > 0:
		content.Title = content.Headings[0]
	default:
		content.Title = pageTitle
	}

	if content.ContentText == "" && len(content.Figures) == 0 {
		return nil
	}
	return content
}

func findRegion(doc *goquery.Document, selectorHints []string) *goquery.Selection {
	selectors := make([]string, 0, len(selectorHints)+len(defaultContentSelectors))
	for _, hint := range selectorHints {
		if hint = strings.TrimSpace(hint); hint != "" {
			selectors = append(selectors, hint)
		}
	}
	selectors = append(selectors, defaultContentSelectors...)

	for _, sel := range selectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

// extractFigures pairs figure images with captions, then adds standalone
// images not already captured.
func extractFigures(region *goquery.Selection, pageURL string) []domain.Figure {
	figures := []domain.Figure{}
	seen := make(map[string]bool)

	add := func(img *goquery.Selection, caption string) {
		src, ok := img.Attr("src")
		if !ok || strings.HasPrefix(strings.TrimSpace(src), "data:") {
			return
		}
		abs := fetcher.ResolveURL(pageURL, src)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		alt, _ := img.Attr("alt")
		figures = append(figures, domain.Figure{URL: abs, Alt: cleanText(alt), Caption: caption})
	}

	region.Find("figure").Each(func(_ int, fig *goquery.Selection) {
		caption := cleanText(fig.Find("figcaption, .os-caption, .caption").First().Text())
		fig.Find("img").Each(func(_ int, img *goquery.Selection) {
			add(img, caption)
		})
	})
	region.Find("img").Each(func(_ int, img *goquery.Selection) {
		add(img, "")
	})
	return figures
}

// RetrieveNodesContent extracts the pages of selected in batches of
// MaxConcurrent. tocNodes supplies ancestors for section paths. Nodes that
// fail are logged and left out. Order within a batch is not preserved.
func (r *ContentRetriever) RetrieveNodesContent(
	ctx context.Context,
	selected []domain.TocNode,
	tocNodes []domain.TocNode,
	asset *domain.Asset,
) []domain.ExtractedContent {
	var (
		mu      sync.Mutex
		results = make([]domain.ExtractedContent, 0, len(selected))
	)

	for start := 0; start < len(selected); start += r.cfg.MaxConcurrent {
		if start > 0 {
			if err := r.sleep(ctx, r.cfg.BatchDelay); err != nil {
				r.log.Warn("Content retrieval cancelled", logger.Error(err))
				break
			}
		}

		batch := selected[start:min(start+r.cfg.MaxConcurrent, len(selected))]
		g, gctx := errgroup.WithContext(ctx)
		for _, node := range batch {
			g.Go(func() error {
				extracted, ok := r.retrieveNode(gctx, node, tocNodes, asset)
				if !ok {
					return nil
				}
				mu.Lock()
				results = append(results, extracted)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	r.log.Info("Node content retrieved",
		logger.String("asset_id", asset.ID),
		logger.Int("requested", len(selected)),
		logger.Int("retrieved", len(results)),
	)
	return results
}

func (r *ContentRetriever) retrieveNode(
	ctx context.Context,
	node domain.TocNode,
	tocNodes []domain.TocNode,
	asset *domain.Asset,
) (domain.ExtractedContent, bool) {
	if node.URL == "" {
		r.log.Warn("Node has no url", logger.String("node_id", node.ID))
		return domain.ExtractedContent{}, false
	}

	page := r.ExtractContentFromURL(ctx, node.URL, asset.SelectorHints)
	if page == nil {
		return domain.ExtractedContent{}, false
	}

	title := node.Title
	if title == "" {
		title = page.Title
	}
	path := toc.SectionPath(tocNodes, node.ID)
	if len(path) == 0 {
		path = []string{title}
	}
	return domain.ExtractedContent{
		NodeID:      node.ID,
		Title:       title,
		URL:         node.URL,
		ContentText: page.ContentText,
		Headings:    page.Headings,
		Figures:     page.Figures,
		SourceTitle: asset.Title,
		SectionPath: path,
	}, true
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
