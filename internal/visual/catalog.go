package visual

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const (
	defaultCatalogTimeout = 10 * time.Second
	defaultUserAgent      = "NorthCloud-SourceRegistry/1.0 (visual aids)"
	wikimediaThumbWidth   = 640

	ProviderWikimedia = "wikimedia_commons"
	ProviderOpenverse = "openverse"
)

// ErrCatalogUnavailable wraps transport failures talking to an image catalog.
var ErrCatalogUnavailable = errors.New("image catalog unavailable")

// Candidate is an image returned by a catalog, before filtering.
type Candidate struct {
	Provider     string
	Title        string
	Description  string
	Tags         []string
	Category     string
	MIME         string
	ImageURL     string
	ThumbnailURL string
	PageURL      string
	License      string
	Attribution  string
	Width        int
	Height       int
}

// Text is the searchable text of the candidate.
func (c Candidate) Text() string {
	return strings.ToLower(c.Title + " " + c.Description + " " + strings.Join(c.Tags, " "))
}

// Catalog searches one image source.
type Catalog interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// CatalogConfig configures an HTTP catalog.
type CatalogConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RequestsPerSecond throttles calls; zero means unlimited.
	RequestsPerSecond float64
}

type httpCatalog struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newHTTPCatalog(cfg CatalogConfig) httpCatalog {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCatalogTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return httpCatalog{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

func (c httpCatalog) getJSON(ctx context.Context, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrCatalogUnavailable, resp.StatusCode)
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// WikimediaCatalog searches the File namespace of Wikimedia Commons.
type WikimediaCatalog struct {
	httpCatalog
}

// NewWikimediaCatalog creates a WikimediaCatalog.
func NewWikimediaCatalog(cfg CatalogConfig) *WikimediaCatalog {
	return &WikimediaCatalog{httpCatalog: newHTTPCatalog(cfg)}
}

func (w *WikimediaCatalog) Name() string { return ProviderWikimedia }

type wikimediaResponse struct {
	Query struct {
		Pages map[string]struct {
			Index     int    `json:"index"`
			Title     string `json:"title"`
			ImageInfo []struct {
				URL            string `json:"url"`
				ThumbURL       string `json:"thumburl"`
				DescriptionURL string `json:"descriptionurl"`
				Width          int    `json:"width"`
				Height         int    `json:"height"`
				MIME           string `json:"mime"`
				ExtMetadata    map[string]struct {
					Value any `json:"value"`
				} `json:"extmetadata"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

// Search runs a generator=search query with imageinfo.
func (w *WikimediaCatalog) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	params := url.Values{
		"action":       {"query"},
		"format":       {"json"},
		"generator":    {"search"},
		"gsrsearch":    {query},
		"gsrnamespace": {"6"},
		"gsrlimit":     {strconv.Itoa(limit)},
		"prop":         {"imageinfo"},
		"iiprop":       {"url|size|mime|extmetadata"},
		"iiurlwidth":   {strconv.Itoa(wikimediaThumbWidth)},
	}

	var resp wikimediaResponse
	if err := w.getJSON(ctx, params, &resp); err != nil {
		return nil, err
	}

	type indexed struct {
		index int
		c     Candidate
	}
	var found []indexed
	for _, page := range resp.Query.Pages {
		if len(page.ImageInfo) == 0 {
			continue
		}
		info := page.ImageInfo[0]
		meta := func(key string) string {
			v, ok := info.ExtMetadata[key]
			if !ok {
				return ""
			}
			return htmlText(fmt.Sprint(v.Value))
		}
		found = append(found, indexed{index: page.Index, c: Candidate{
			Provider:     ProviderWikimedia,
			Title:        strings.TrimPrefix(page.Title, "File:"),
			Description:  meta("ImageDescription"),
			Tags:         strings.Split(meta("Categories"), "|"),
			MIME:         info.MIME,
			ImageURL:     info.URL,
			ThumbnailURL: info.ThumbURL,
			PageURL:      info.DescriptionURL,
			License:      meta("LicenseShortName"),
			Attribution:  meta("Artist"),
			Width:        info.Width,
			Height:       info.Height,
		}})
	}

	// pages is a map; search rank is in index
	slices.SortFunc(found, func(a, b indexed) int { return cmp.Compare(a.index, b.index) })
	out := make([]Candidate, 0, len(found))
	for _, f := range found {
		out = append(out, f.c)
	}
	return out, nil
}

// OpenverseCatalog searches the Openverse image API.
type OpenverseCatalog struct {
	httpCatalog
}

// NewOpenverseCatalog creates an OpenverseCatalog.
func NewOpenverseCatalog(cfg CatalogConfig) *OpenverseCatalog {
	return &OpenverseCatalog{httpCatalog: newHTTPCatalog(cfg)}
}

func (o *OpenverseCatalog) Name() string { return ProviderOpenverse }

type openverseResponse struct {
	Results []struct {
		Title             string `json:"title"`
		URL               string `json:"url"`
		Thumbnail         string `json:"thumbnail"`
		ForeignLandingURL string `json:"foreign_landing_url"`
		License           string `json:"license"`
		LicenseVersion    string `json:"license_version"`
		Creator           string `json:"creator"`
		Category          string `json:"category"`
		FileType          string `json:"filetype"`
		Width             int    `json:"width"`
		Height            int    `json:"height"`
		Tags              []struct {
			Name string `json:"name"`
		} `json:"tags"`
	} `json:"results"`
}

// Search queries /v1/images/.
func (o *OpenverseCatalog) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	params := url.Values{
		"q":         {query},
		"page_size": {strconv.Itoa(limit)},
		"mature":    {"false"},
	}

	var resp openverseResponse
	if err := o.getJSON(ctx, params, &resp); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		tags := make([]string, 0, len(r.Tags))
		for _, t := range r.Tags {
			tags = append(tags, t.Name)
		}
		license := strings.ToUpper(r.License)
		if r.LicenseVersion != "" {
			license += " " + r.LicenseVersion
		}
		mime := ""
		if r.FileType != "" {
			mime = "image/" + strings.ToLower(r.FileType)
		}
		out = append(out, Candidate{
			Provider:     ProviderOpenverse,
			Title:        r.Title,
			Tags:         tags,
			Category:     r.Category,
			MIME:         mime,
			ImageURL:     r.URL,
			ThumbnailURL: r.Thumbnail,
			PageURL:      r.ForeignLandingURL,
			License:      license,
			Attribution:  r.Creator,
			Width:        r.Width,
			Height:       r.Height,
		})
	}
	return out, nil
}

// htmlText flattens the HTML fragments Commons puts in extmetadata.
func htmlText(fragment string) string {
	if !strings.ContainsRune(fragment, '<') {
		return strings.TrimSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
