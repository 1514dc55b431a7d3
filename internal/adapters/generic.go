package adapters

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	colly "github.com/gocolly/colly/v2"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

const (
	genericDefaultMaxDepth = 1
	genericWarnMaxDepth    = 3
	genericDefaultMaxPages = 200
	genericLinkSelector    = "a[href]"
)

// GenericConfig is the seed config for arbitrary HTML sites.
type GenericConfig struct {
	Title string `mapstructure:"title"`
	// AssetSelector, when set, turns every matching link on the seed page
	// into its own asset. Otherwise the seed page is the single asset.
	AssetSelector string `mapstructure:"asset_selector"`
	// TocSelector locates a nested list to parse instead of crawling.
	TocSelector     string   `mapstructure:"toc_selector"`
	LinkSelector    string   `mapstructure:"link_selector"`
	ContentSelector string   `mapstructure:"content_selector"`
	MaxDepth        int      `mapstructure:"max_depth"`
	MaxPages        int      `mapstructure:"max_pages"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
}

// GenericHTML maps a site either from an explicit nested-list TOC or by
// crawling links to a bounded depth.
type GenericHTML struct {
	base

	mu  sync.Mutex
	cfg GenericConfig
}

func (a *GenericHTML) SourceType() string { return domain.SourceTypeGeneric }

func (a *GenericHTML) DiscoverAssets(ctx context.Context, seedURL string, raw map[string]any) ([]domain.AssetCandidate, error) {
	var cfg GenericConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = genericDefaultMaxDepth
	}
	if cfg.MaxDepth > genericWarnMaxDepth {
		a.log.Warn("generic crawl depth exceeds recommended limit",
			logger.Int("max_depth", cfg.MaxDepth),
			logger.Int("recommended_max", genericWarnMaxDepth),
		)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = genericDefaultMaxPages
	}
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = genericLinkSelector
	}
	if _, err := compilePatterns(cfg.ExcludePatterns); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()

	doc, err := a.fetchDoc(ctx, seedURL)
	if err != nil {
		return nil, fmt.Errorf("generic discovery: %w", err)
	}

	var hints []string
	if cfg.ContentSelector != "" {
		hints = []string{cfg.ContentSelector}
	}

	if cfg.AssetSelector == "" {
		title := cfg.Title
		if title == "" {
			title = pageTitle(doc)
		}
		return []domain.AssetCandidate{{
			Slug:          slugify(title),
			Title:         title,
			URL:           seedURL,
			Description:   metaDescription(doc),
			SelectorHints: hints,
		}}, nil
	}

	seen := make(map[string]bool)
	var candidates []domain.AssetCandidate
	doc.Find(cfg.AssetSelector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := fetcher.ResolveURL(seedURL, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		title := strings.Join(strings.Fields(s.Text()), " ")
		candidates = append(candidates, domain.AssetCandidate{
			Slug:          slugFromURL(abs),
			Title:         title,
			URL:           abs,
			SelectorHints: hints,
		})
	})
	return candidates, nil
}

func (a *GenericHTML) Validate(ctx context.Context, candidate domain.AssetCandidate, _ string) (domain.ValidationResult, error) {
	return a.validate(ctx, candidate)
}

func (a *GenericHTML) MapToc(ctx context.Context, candidate domain.AssetCandidate, _ string) ([]domain.TocNode, error) {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	if cfg.TocSelector != "" {
		doc, err := a.fetchDoc(ctx, candidate.URL)
		if err != nil {
			return nil, err
		}
		if list := firstMatch(doc, cfg.TocSelector+" > ul", cfg.TocSelector+" > ol", cfg.TocSelector+" ul"); list != nil {
			b := toc.NewBuilder()
			walkList(list, candidate.URL, "", 0, b, depthClassifier)
			if b.Len() > 0 {
				return b.Nodes(), nil
			}
		}
		a.log.Debug("toc selector matched nothing, crawling instead",
			logger.String("selector", cfg.TocSelector),
			logger.String("url", candidate.URL),
		)
	}

	return a.crawl(ctx, candidate, cfg)
}

type crawledPage struct {
	url       string
	parentURL string
	title     string
	order     int
	scraped   bool
}

// crawl visits the asset page and follows links up to cfg.MaxDepth levels on
// the same host. Every scraped page becomes a node under the page that first
// linked to it; the asset page itself is the root.
func (a *GenericHTML) crawl(ctx context.Context, candidate domain.AssetCandidate, cfg GenericConfig) ([]domain.TocNode, error) {
	start, err := url.Parse(candidate.URL)
	if err != nil {
		return nil, fmt.Errorf("parse asset url: %w", err)
	}
	exclude, err := compilePatterns(cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = genericDefaultMaxDepth
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = genericDefaultMaxPages
	}
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = genericLinkSelector
	}

	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.MaxDepth(cfg.MaxDepth + 1),
		colly.AllowedDomains(start.Hostname()),
	}
	if a.userAgent != "" {
		opts = append(opts, colly.UserAgent(a.userAgent))
	}
	if len(exclude) > 0 {
		opts = append(opts, colly.DisallowedURLFilters(exclude...))
	}
	c := colly.NewCollector(opts...)
	c.IgnoreRobotsTxt = false

	limit := &colly.LimitRule{DomainGlob: "*", Parallelism: 1}
	if ct, ok := a.fetcher.(crawlTransporter); ok {
		c.WithTransport(ct.CrawlTransport(a.rpm))
		c.SetRequestTimeout(ct.RequestTimeout())
	} else {
		rpm := a.rpm
		if rpm <= 0 {
			rpm = 30
		}
		limit.Delay = time.Minute / time.Duration(rpm)
	}
	if err = c.Limit(limit); err != nil {
		return nil, fmt.Errorf("set crawl limit: %w", err)
	}

	var mu sync.Mutex
	pages := make(map[string]*crawledPage)
	requested := 0

	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		defer mu.Unlock()
		key := normalizePageURL(r.URL)
		if _, ok := pages[key]; !ok && requested >= cfg.MaxPages {
			r.Abort()
			return
		}
		if p, ok := pages[key]; ok {
			p.order = requested
		} else {
			pages[key] = &crawledPage{url: key, order: requested}
		}
		requested++
	})

	c.OnHTML("title", func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := pages[normalizePageURL(e.Request.URL)]; ok && p.title == "" {
			p.title = strings.Join(strings.Fields(e.Text), " ")
		}
	})

	c.OnHTML(cfg.LinkSelector, func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		u, parseErr := url.Parse(link)
		if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		key := normalizePageURL(u)
		parent := normalizePageURL(e.Request.URL)

		mu.Lock()
		if _, ok := pages[key]; !ok {
			pages[key] = &crawledPage{url: key, parentURL: parent, order: -1}
		}
		linkText := strings.Join(strings.Fields(e.Text), " ")
		if p := pages[key]; p.title == "" && linkText != "" && p.parentURL == parent {
			p.title = linkText
		}
		mu.Unlock()

		_ = e.Request.Visit(link)
	})

	c.OnScraped(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := pages[normalizePageURL(r.Request.URL)]; ok {
			p.scraped = true
		}
	})

	c.OnError(func(r *colly.Response, visitErr error) {
		a.log.Debug("generic crawl page failed",
			logger.String("url", r.Request.URL.String()),
			logger.Int("status", r.StatusCode),
			logger.Error(visitErr),
		)
	})

	if err = c.Visit(candidate.URL); err != nil {
		return nil, fmt.Errorf("crawl %s: %w", candidate.URL, err)
	}
	c.Wait()

	return buildCrawlToc(pages, normalizePageURL(start)), nil
}

func buildCrawlToc(pages map[string]*crawledPage, rootKey string) []domain.TocNode {
	scraped := make([]*crawledPage, 0, len(pages))
	for _, p := range pages {
		if p.scraped && p.order >= 0 {
			scraped = append(scraped, p)
		}
	}
	slices.SortFunc(scraped, func(x, y *crawledPage) int { return x.order - y.order })

	b := toc.NewBuilder()
	ids := make(map[string]string, len(scraped))
	for _, p := range scraped {
		title := p.title
		if title == "" {
			title = p.url
		}
		if p.url == rootKey {
			ids[p.url] = b.Add("", title, p.url, domain.NodeTypeRoot)
			continue
		}
		parentID, ok := ids[p.parentURL]
		if !ok {
			continue
		}
		ids[p.url] = b.Add(parentID, title, p.url, domain.NodeTypePage)
	}
	return b.Nodes()
}

func normalizePageURL(u *url.URL) string {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	if n.Path == "" {
		n.Path = "/"
	}
	return n.String()
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func pageTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return strings.Join(strings.Fields(title), " ")
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}
