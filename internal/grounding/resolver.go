package grounding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/llm"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

const (
	// MaxResolvedNodes caps the node ids kept from a resolution.
	MaxResolvedNodes     = 5
	resolverMaxTokens    = 1024
	resolverOperation    = "resolve_nodes"
	resolverStageMetrics = "resolve"
)

type resolverResponse struct {
	NodeIDs   []string `json:"node_ids"`
	Reasoning string   `json:"reasoning"`
}

// NodeResolver asks the model which TOC nodes cover a module.
type NodeResolver struct {
	llm     llm.Client
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewNodeResolver creates a NodeResolver.
func NewNodeResolver(client llm.Client, log logger.Logger, m *metrics.Metrics) *NodeResolver {
	if log == nil {
		log = logger.NewNop()
	}
	return &NodeResolver{llm: client, log: log.With(logger.String("component", "node_resolver")), metrics: m}
}

// ResolveNodesForModule selects up to MaxResolvedNodes ids from nodes.
// Every failure is reported as an unavailable result, never as an error.
func (r *NodeResolver) ResolveNodesForModule(ctx context.Context, req domain.ResolveNodesRequest, nodes []domain.TocNode) domain.ResolveNodesResult {
	if len(nodes) == 0 {
		r.metrics.ObserveGrounding(resolverStageMetrics, string(domain.UnavailableNoToc))
		return domain.UnavailableResolution(req.AssetID, domain.UnavailableNoToc, "asset has no table of contents")
	}

	result, err := r.resolve(ctx, req, nodes)
	if err != nil {
		r.log.Warn("Node resolution failed",
			logger.String("asset_id", req.AssetID),
			logger.String("module", req.Title),
			logger.Error(err),
		)
		r.metrics.ObserveGrounding(resolverStageMetrics, string(domain.UnavailableResolverError))
		return domain.UnavailableResolution(req.AssetID, domain.UnavailableResolverError, err.Error())
	}
	kind := string(result.UnavailableKind)
	if kind == "" {
		kind = "ok"
	}
	r.metrics.ObserveGrounding(resolverStageMetrics, kind)
	return result
}

func (r *NodeResolver) resolve(ctx context.Context, req domain.ResolveNodesRequest, nodes []domain.TocNode) (domain.ResolveNodesResult, error) {
	if r.llm == nil {
		return domain.ResolveNodesResult{}, errors.New("no model client configured")
	}

	prompt, err := render(resolverPromptTmpl, map[string]any{
		"Title":       req.Title,
		"Description": req.Description,
		"PathContext": req.PathContext,
		"Outline":     toc.Outline(nodes),
		"MaxNodes":    MaxResolvedNodes,
	})
	if err != nil {
		return domain.ResolveNodesResult{}, err
	}

	text, err := r.llm.Complete(ctx, llm.Request{
		Operation: resolverOperation,
		System:    resolverSystemPrompt,
		Prompt:    prompt,
		MaxTokens: resolverMaxTokens,
	})
	if err != nil {
		return domain.ResolveNodesResult{}, fmt.Errorf("model call: %w", err)
	}

	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return domain.ResolveNodesResult{}, fmt.Errorf("parse resolver response: %w", err)
	}
	var resp resolverResponse
	if err = json.Unmarshal([]byte(raw), &resp); err != nil {
		return domain.ResolveNodesResult{}, fmt.Errorf("parse resolver response: %w", err)
	}

	ids := r.knownIDs(req.AssetID, resp.NodeIDs, nodes)
	reasoning := strings.TrimSpace(resp.Reasoning)
	if len(ids) == 0 {
		if reasoning == "" {
			reasoning = "no table of contents entry matched the module"
		}
		return domain.UnavailableResolution(req.AssetID, domain.UnavailableNoNodesSelected, reasoning), nil
	}

	r.log.Info("Nodes resolved",
		logger.String("asset_id", req.AssetID),
		logger.String("module", req.Title),
		logger.Strings("node_ids", ids),
	)
	return domain.ResolveNodesResult{
		AssetID:       req.AssetID,
		SourceNodeIDs: ids,
		Reasoning:     reasoning,
		ResolvedAt:    time.Now().UTC(),
	}, nil
}

// knownIDs keeps the ids that belong to nodes, in model order, without
// duplicates. Unknown ids are logged and dropped.
func (r *NodeResolver) knownIDs(assetID string, ids []string, nodes []domain.TocNode) []string {
	known := make(map[string]bool, len(nodes))
	for i := range nodes {
		known[nodes[i].ID] = true
	}

	kept := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if !known[id] {
			r.log.Warn("Model returned unknown node id", logger.String("asset_id", assetID), logger.String("node_id", id))
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		kept = append(kept, id)
		if len(kept) == MaxResolvedNodes {
			break
		}
	}
	return kept
}
