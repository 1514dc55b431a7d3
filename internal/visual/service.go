package visual

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
)

const (
	defaultMaxPerIntent = 3
	searchLimit         = 20
)

// ServiceConfig holds the VisualAidService settings.
type ServiceConfig struct {
	Filter       FilterConfig
	MaxPerIntent int
}

// VisualAidService searches image catalogs for visual intents.
type VisualAidService struct {
	intents  *IntentGenerator
	catalogs []Catalog
	cfg      ServiceConfig
	log      logger.Logger
	metrics  *metrics.Metrics
}

// NewVisualAidService creates a service querying catalogs in priority order.
func NewVisualAidService(
	intents *IntentGenerator,
	catalogs []Catalog,
	cfg ServiceConfig,
	log logger.Logger,
	m *metrics.Metrics,
) *VisualAidService {
	if cfg.MaxPerIntent <= 0 {
		cfg.MaxPerIntent = defaultMaxPerIntent
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &VisualAidService{
		intents:  intents,
		catalogs: catalogs,
		cfg:      cfg,
		log:      log.With(logger.String("component", "visual_aids")),
		metrics:  m,
	}
}

// Enrich generates intents for rendered content and fetches aids for them.
func (s *VisualAidService) Enrich(ctx context.Context, title, content string) []domain.VisualAid {
	if s.intents == nil {
		return []domain.VisualAid{}
	}
	return s.FetchVisualAids(ctx, s.intents.GenerateVisualIntent(ctx, title, content))
}

// FetchVisualAids resolves intents one at a time. Each intent yields at most
// MaxPerIntent aids, best score first. Failures yield fewer aids, never an
// error.
func (s *VisualAidService) FetchVisualAids(ctx context.Context, intents []domain.VisualIntent) []domain.VisualAid {
	aids := []domain.VisualAid{}
	for _, intent := range intents {
		if ctx.Err() != nil {
			break
		}
		aids = append(aids, s.fetchForIntent(ctx, intent)...)
	}
	s.metrics.ObserveVisualAids(len(aids))
	s.log.Info("Visual aids fetched", logger.Int("intents", len(intents)), logger.Int("aids", len(aids)))
	return aids
}

type scored struct {
	c     Candidate
	score int
}

func (s *VisualAidService) fetchForIntent(ctx context.Context, intent domain.VisualIntent) []domain.VisualAid {
	log := s.log.With(logger.String("concept", intent.Concept))
	seen := make(map[string]bool)
	var kept []scored

variants:
	for _, query := range QueryVariants(intent) {
		for _, catalog := range s.catalogs {
			candidates, err := catalog.Search(ctx, query, searchLimit)
			if err != nil {
				log.Debug("Catalog search failed",
					logger.String("catalog", catalog.Name()),
					logger.String("query", query),
					logger.Error(err),
				)
				continue
			}
			log.Debug("Catalog searched",
				logger.String("catalog", catalog.Name()),
				logger.String("query", query),
				logger.Int("candidates", len(candidates)),
			)

			for _, c := range candidates {
				if seen[c.ImageURL] {
					continue
				}
				seen[c.ImageURL] = true

				if reason := Reject(intent, c, s.cfg.Filter); reason != "" {
					log.Debug("Candidate rejected", logger.String("title", c.Title), logger.String("reason", reason))
					continue
				}
				score := Score(intent, c)
				if score < s.cfg.Filter.MinScore {
					log.Debug("Candidate below minimum score", logger.String("title", c.Title), logger.Int("score", score))
					continue
				}
				log.Debug("Candidate kept", logger.String("title", c.Title), logger.Int("score", score))
				kept = append(kept, scored{c: c, score: score})
			}
			if len(kept) >= s.cfg.MaxPerIntent {
				break variants
			}
		}
	}

	slices.SortStableFunc(kept, func(a, b scored) int { return cmp.Compare(b.score, a.score) })
	if len(kept) > s.cfg.MaxPerIntent {
		kept = kept[:s.cfg.MaxPerIntent]
	}

	aids := make([]domain.VisualAid, 0, len(kept))
	for _, k := range kept {
		aids = append(aids, domain.VisualAid{
			Concept:      intent.Concept,
			Title:        k.c.Title,
			ImageURL:     k.c.ImageURL,
			ThumbnailURL: k.c.ThumbnailURL,
			PageURL:      k.c.PageURL,
			License:      k.c.License,
			Attribution:  k.c.Attribution,
			Provider:     k.c.Provider,
			Width:        k.c.Width,
			Height:       k.c.Height,
			Score:        float64(k.score),
			UsageLabel:   domain.UsageIllustrative,
		})
	}
	return aids
}

// QueryVariants lists the searches tried for an intent, most specific first.
func QueryVariants(intent domain.VisualIntent) []string {
	candidates := []string{
		intent.SearchQuery,
		SanitizeQuery(intent.Concept+" diagram", intent.Concept, intent.Type),
	}
	if len(intent.KeyElements) > 0 {
		elems := intent.KeyElements[:min(2, len(intent.KeyElements))]
		candidates = append(candidates, SanitizeQuery(strings.Join(elems, " ")+" "+string(intent.Type), intent.Concept, intent.Type))
	}

	var out []string
	for _, q := range candidates {
		q = strings.TrimSpace(q)
		if q != "" && !slices.Contains(out, q) {
			out = append(out, q)
		}
	}
	return out
}
