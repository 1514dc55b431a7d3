// Package adapters enumerates the learnable assets of a source site and maps
// their tables of contents. Each supported site type is one Adapter variant.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mitchellh/mapstructure"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

var (
	// ErrUnknownSourceType is returned by ForType for an unsupported type.
	ErrUnknownSourceType = errors.New("unknown source type")
	// ErrNoToc is returned when no table of contents could be located.
	ErrNoToc = errors.New("no table of contents found")
)

// PageFetcher is the part of the fetcher adapters depend on.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetcher.Options) fetcher.Result
	CheckRobots(ctx context.Context, rawURL string) fetcher.RobotsCheck
}

// crawlTransporter is implemented by fetchers that can pace an HTTP stack of
// their own, so a crawler shares host permits with Fetch.
type crawlTransporter interface {
	CrawlTransport(rpm int) http.RoundTripper
	RequestTimeout() time.Duration
}

// Adapter discovers and maps the assets of one kind of source.
// MapToc returns nodes ordered by sort_order, with each child exactly one
// level deeper than its parent.
type Adapter interface {
	SourceType() string
	DiscoverAssets(ctx context.Context, seedURL string, cfg map[string]any) ([]domain.AssetCandidate, error)
	Validate(ctx context.Context, candidate domain.AssetCandidate, baseURL string) (domain.ValidationResult, error)
	MapToc(ctx context.Context, candidate domain.AssetCandidate, baseURL string) ([]domain.TocNode, error)
}

// Deps are the collaborators shared by every adapter.
type Deps struct {
	Fetcher PageFetcher
	Logger  logger.Logger
	// RatePerMinute is the seed's request ceiling.
	RatePerMinute int
	// License is the seed-declared license used when none is detected.
	License   string
	UserAgent string
}

// ForType returns the adapter registered for sourceType.
func ForType(sourceType string, deps Deps) (Adapter, error) {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	b := base{
		fetcher:     deps.Fetcher,
		log:         deps.Logger.With(logger.String("adapter", sourceType)),
		rpm:         deps.RatePerMinute,
		seedLicense: deps.License,
		userAgent:   deps.UserAgent,
	}

	switch sourceType {
	case domain.SourceTypeOpenStax:
		return &OpenStax{base: b}, nil
	case domain.SourceTypeSphinx:
		return &Sphinx{base: b}, nil
	case domain.SourceTypeGeneric:
		return &GenericHTML{base: b}, nil
	case domain.SourceTypeMITOCW:
		return &MITOCW{base: b, now: defaultNow}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSourceType, sourceType)
	}
}

// SourceTypes lists the types ForType accepts.
func SourceTypes() []string {
	return []string{
		domain.SourceTypeOpenStax,
		domain.SourceTypeSphinx,
		domain.SourceTypeGeneric,
		domain.SourceTypeMITOCW,
	}
}

type base struct {
	fetcher     PageFetcher
	log         logger.Logger
	rpm         int
	seedLicense string
	userAgent   string
}

func (b *base) fetch(ctx context.Context, rawURL string) (fetcher.Result, error) {
	res := b.fetcher.Fetch(ctx, rawURL, fetcher.Options{RatePerMinute: b.rpm})
	if !res.OK {
		return res, fmt.Errorf("fetch %s: %w", rawURL, res.Err)
	}
	return res, nil
}

func (b *base) fetchDoc(ctx context.Context, rawURL string) (*goquery.Document, error) {
	res, err := b.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", rawURL, err)
	}
	return doc, nil
}

func (b *base) fetchJSON(ctx context.Context, rawURL string, out any) error {
	res := b.fetcher.Fetch(ctx, rawURL, fetcher.Options{RatePerMinute: b.rpm, Accept: "application/json"})
	if !res.OK {
		return fmt.Errorf("fetch %s: %w", rawURL, res.Err)
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return fmt.Errorf("decode json %s: %w", rawURL, err)
	}
	return nil
}

// validate checks robots.txt for the candidate and, when allowed, looks for
// license markup on its landing page. Robots status is reported as found;
// unknown stays unknown.
func (b *base) validate(ctx context.Context, candidate domain.AssetCandidate) (domain.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ValidationResult{}, err
	}

	check := b.fetcher.CheckRobots(ctx, candidate.URL)
	result := domain.ValidationResult{RobotsStatus: check.Status}

	if check.Allowed {
		doc, err := b.fetchDoc(ctx, candidate.URL)
		if err != nil {
			b.log.Debug("license page unavailable",
				logger.String("url", candidate.URL),
				logger.Error(err),
			)
		} else {
			lic := detectLicense(doc, candidate.URL)
			result.LicenseName, result.LicenseURL, result.LicenseConfidence = lic.Name, lic.URL, lic.Confidence
		}
	}

	if result.LicenseName == "" && b.seedLicense != "" {
		result.LicenseName = b.seedLicense
		result.LicenseConfidence = seedLicenseConfidence
	}

	return result, nil
}

// decodeConfig decodes a seed's free-form config map into out.
func decodeConfig(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create config decoder: %w", err)
	}
	if err = decoder.Decode(raw); err != nil {
		return fmt.Errorf("decode adapter config: %w", err)
	}
	return nil
}

func metadataString(c domain.AssetCandidate, key string) string {
	if c.Metadata == nil {
		return ""
	}
	s, _ := c.Metadata[key].(string)
	return s
}
