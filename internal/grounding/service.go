// Package grounding selects registered source sections for a learning module,
// retrieves their text and synthesizes module content that only uses it.
package grounding

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
	"github.com/jonesrussell/north-cloud/source-registry/internal/storage"
)

// VisualEnricher finds illustrative images for rendered content. It must
// degrade to an empty slice on failure.
type VisualEnricher interface {
	Enrich(ctx context.Context, title, content string) []domain.VisualAid
}

// RenderRequest asks for module content from specific TOC nodes.
type RenderRequest struct {
	Title          string
	Description    string
	Difficulty     string
	AssetID        string
	NodeIDs        []string
	IncludeVisuals bool
}

// ServiceConfig holds the Service collaborators.
type ServiceConfig struct {
	Store       storage.Store
	Resolver    *NodeResolver
	Retriever   *ContentRetriever
	Synthesizer *Synthesizer
	// Visuals is optional.
	Visuals VisualEnricher
	Metrics *metrics.Metrics
	Logger  logger.Logger
}

// Service is the module-facing grounding API.
type Service struct {
	store     storage.Store
	resolver  *NodeResolver
	retriever *ContentRetriever
	synth     *Synthesizer
	visuals   VisualEnricher
	metrics   *metrics.Metrics
	log       logger.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Service{
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		retriever: cfg.Retriever,
		synth:     cfg.Synthesizer,
		visuals:   cfg.Visuals,
		metrics:   cfg.Metrics,
		log:       cfg.Logger.With(logger.String("component", "grounding")),
	}
}

// activeAsset loads an asset and reports the unavailable kind when it cannot
// be used for grounding.
func (s *Service) activeAsset(ctx context.Context, assetID string) (*domain.Asset, domain.UnavailableKind, string) {
	if strings.TrimSpace(assetID) == "" {
		return nil, domain.UnavailableAssetMissing, "module has no source asset"
	}
	asset, err := s.store.GetAsset(ctx, assetID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.UnavailableAssetMissing, "asset " + assetID + " does not exist"
	}
	if err != nil {
		return nil, domain.UnavailableResolverError, "load asset: " + err.Error()
	}
	if !asset.Active {
		return nil, domain.UnavailableAssetInactive, "asset " + asset.Title + " is not active"
	}
	return asset, domain.UnavailableNone, ""
}

// ResolveNodesForModule picks TOC nodes of an active asset for the module.
func (s *Service) ResolveNodesForModule(ctx context.Context, req domain.ResolveNodesRequest) domain.ResolveNodesResult {
	asset, kind, reason := s.activeAsset(ctx, req.AssetID)
	if asset == nil {
		s.metrics.ObserveGrounding(resolverStageMetrics, string(kind))
		return domain.UnavailableResolution(req.AssetID, kind, reason)
	}

	nodes, err := s.store.GetTocNodes(ctx, asset.ID)
	if err != nil {
		s.metrics.ObserveGrounding(resolverStageMetrics, string(domain.UnavailableResolverError))
		return domain.UnavailableResolution(req.AssetID, domain.UnavailableResolverError, "load toc: "+err.Error())
	}
	return s.resolver.ResolveNodesForModule(ctx, req, nodes)
}

// RenderModuleContent retrieves the selected nodes and synthesizes content.
// Each missing precondition yields its own unavailable kind.
func (s *Service) RenderModuleContent(ctx context.Context, req RenderRequest) domain.RenderedModuleContent {
	if len(req.NodeIDs) == 0 {
		return s.renderUnavailable(req, domain.UnavailableNoNodesSelected, "no source nodes were selected for this module")
	}
	asset, kind, reason := s.activeAsset(ctx, req.AssetID)
	if asset == nil {
		return s.renderUnavailable(req, kind, reason)
	}

	tocNodes, err := s.store.GetTocNodes(ctx, asset.ID)
	if err != nil {
		return s.renderUnavailable(req, domain.UnavailableNodesNotFound, "load toc: "+err.Error())
	}
	selected := selectNodes(tocNodes, req.NodeIDs)
	if len(selected) == 0 {
		return s.renderUnavailable(req, domain.UnavailableNodesNotFound, "none of the selected nodes exist in the asset table of contents")
	}
	if len(selected) < len(req.NodeIDs) {
		s.log.Warn("Some selected nodes no longer exist",
			logger.String("asset_id", asset.ID),
			logger.Int("requested", len(req.NodeIDs)),
			logger.Int("found", len(selected)),
		)
	}

	contents := s.retriever.RetrieveNodesContent(ctx, selected, tocNodes, asset)
	content := s.synth.SynthesizeModuleContent(ctx, SynthesisRequest{
		Title:       req.Title,
		Description: req.Description,
		Difficulty:  req.Difficulty,
		Contents:    contents,
	})

	if req.IncludeVisuals && s.visuals != nil && !content.ContentUnavailable {
		content.VisualAids = s.visuals.Enrich(ctx, req.Title, renderedText(content))
	}
	return content
}

func (s *Service) renderUnavailable(req RenderRequest, kind domain.UnavailableKind, reason string) domain.RenderedModuleContent {
	s.metrics.ObserveGrounding(synthesizerStage, string(kind))
	s.log.Warn("Module content unavailable",
		logger.String("module", req.Title),
		logger.String("asset_id", req.AssetID),
		logger.String("kind", string(kind)),
		logger.String("reason", reason),
	)
	return domain.UnavailableContent(kind, reason)
}

// PersistModuleResolution writes resolution metadata onto the module.
func (s *Service) PersistModuleResolution(ctx context.Context, moduleID string, result domain.ResolveNodesResult) (*domain.Module, error) {
	mod, err := s.store.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	resolvedAt := result.ResolvedAt
	mod.SourceNodeIDs = domain.StringList(slices.Clone(result.SourceNodeIDs))
	mod.ContentUnavailable = result.ContentUnavailable || len(result.SourceNodeIDs) == 0
	mod.ResolutionReasoning = result.Reasoning
	mod.ResolvedAt = &resolvedAt
	if result.AssetID != "" {
		assetID := result.AssetID
		mod.AssetID = &assetID
	}

	if err = s.store.SaveModule(ctx, mod); err != nil {
		return nil, err
	}
	s.log.Info("Module resolution persisted",
		logger.String("module_id", mod.ID),
		logger.Int("nodes", len(mod.SourceNodeIDs)),
		logger.Bool("content_unavailable", mod.ContentUnavailable),
	)
	return mod, nil
}

// ResolveModule resolves and persists nodes for a stored module.
func (s *Service) ResolveModule(ctx context.Context, moduleID string) (*domain.Module, domain.ResolveNodesResult, error) {
	mod, err := s.store.GetModule(ctx, moduleID)
	if err != nil {
		return nil, domain.ResolveNodesResult{}, err
	}

	assetID := ""
	if mod.AssetID != nil {
		assetID = *mod.AssetID
	}
	result := s.ResolveNodesForModule(ctx, domain.ResolveNodesRequest{
		ModuleID:    mod.ID,
		AssetID:     assetID,
		Title:       mod.Title,
		Description: mod.Description,
		PathContext: mod.PathContext,
	})
	mod, err = s.PersistModuleResolution(ctx, moduleID, result)
	return mod, result, err
}

// RenderModule renders a stored module from its resolved nodes and keeps the
// citations on the module.
func (s *Service) RenderModule(ctx context.Context, moduleID string, includeVisuals bool) (domain.RenderedModuleContent, error) {
	mod, err := s.store.GetModule(ctx, moduleID)
	if err != nil {
		return domain.RenderedModuleContent{}, err
	}

	assetID := ""
	if mod.AssetID != nil {
		assetID = *mod.AssetID
	}
	content := s.RenderModuleContent(ctx, RenderRequest{
		Title:          mod.Title,
		Description:    mod.Description,
		Difficulty:     mod.Difficulty,
		AssetID:        assetID,
		NodeIDs:        mod.SourceNodeIDs,
		IncludeVisuals: includeVisuals,
	})

	mod.Citations = domain.CitationList(content.Citations)
	mod.ContentUnavailable = content.ContentUnavailable
	if err = s.store.SaveModule(ctx, mod); err != nil {
		return content, err
	}
	return content, nil
}

// GetModuleCitationDisplay formats the citations stored on a module.
func (s *Service) GetModuleCitationDisplay(ctx context.Context, moduleID string) (string, error) {
	mod, err := s.store.GetModule(ctx, moduleID)
	if err != nil {
		return "", err
	}
	return FormatCitationsDisplay(mod.Citations), nil
}

func selectNodes(nodes []domain.TocNode, ids []string) []domain.TocNode {
	byID := make(map[string]domain.TocNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	out := make([]domain.TocNode, 0, len(ids))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

func renderedText(c domain.RenderedModuleContent) string {
	var b strings.Builder
	b.WriteString(c.Overview)
	for _, sec := range c.Sections {
		b.WriteString("\n\n")
		b.WriteString(sec.Title)
		b.WriteString("\n")
		b.WriteString(sec.Content)
	}
	for _, kc := range c.KeyConcepts {
		b.WriteString("\n")
		b.WriteString(kc.Term)
		b.WriteString(": ")
		b.WriteString(kc.Definition)
	}
	return b.String()
}
