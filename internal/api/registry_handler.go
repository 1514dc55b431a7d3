package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/export"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

// RegistryService is the registry API the handlers call.
type RegistryService interface {
	Seeds() []domain.Seed
	FindSeed(name string) (domain.Seed, error)
	ScanSeed(ctx context.Context, seed domain.Seed, opts domain.ScanOptions) (*domain.ScanResult, error)
	ScanSourceByID(ctx context.Context, id string, opts domain.ScanOptions) (*domain.ScanResult, error)
	ScanAllSeeds(ctx context.Context, opts domain.ScanOptions) ([]*domain.ScanResult, error)
	GetSources(ctx context.Context) ([]domain.Source, error)
	GetSource(ctx context.Context, id string) (*domain.Source, error)
	GetAssets(ctx context.Context, sourceID string) ([]domain.Asset, error)
	GetAssetByID(ctx context.Context, id string) (*domain.Asset, error)
	GetTocNodes(ctx context.Context, assetID string) ([]domain.TocNode, error)
	GetScanLogs(ctx context.Context, filter domain.ScanLogFilter) ([]domain.ScanLog, error)
	ActivateAsset(ctx context.Context, id string) (*domain.Asset, error)
	DeactivateAsset(ctx context.Context, id string) (*domain.Asset, error)
}

// RegistryHandler serves /registry.
type RegistryHandler struct {
	svc    RegistryService
	export export.Reader
	log    logger.Logger
}

// NewRegistryHandler creates a RegistryHandler. exp may be nil, which
// disables the export route.
func NewRegistryHandler(svc RegistryService, exp export.Reader, log logger.Logger) *RegistryHandler {
	return &RegistryHandler{svc: svc, export: exp, log: log}
}

type assetRequest struct {
	AssetID string `json:"asset_id"`
}

// Scan runs a scan of one seed (seed_name), one persisted source (source_id)
// or every seed.
func (h *RegistryHandler) Scan(c *gin.Context) {
	ctx := c.Request.Context()
	opts := domain.ScanOptions{SkipScanned: queryBool(c, "skip_scanned")}

	sourceID := c.Query("source_id")
	seedName := c.Query("seed_name")

	switch {
	case sourceID != "" && seedName != "":
		respondError(c, fmt.Errorf("%w: source_id and seed_name are exclusive", errValidation))
	case sourceID != "":
		result, err := h.svc.ScanSourceByID(ctx, sourceID, opts)
		h.writeScan(c, result, err)
	case seedName != "":
		seed, err := h.svc.FindSeed(seedName)
		if err != nil {
			respondError(c, err)
			return
		}
		result, err := h.svc.ScanSeed(ctx, seed, opts)
		h.writeScan(c, result, err)
	default:
		results, err := h.svc.ScanAllSeeds(ctx, opts)
		success := err == nil
		for _, r := range results {
			success = success && r.Success
		}
		body := gin.H{"success": success, "results": results, "count": len(results)}
		if err != nil {
			h.log.Warn("Scan of all seeds finished with errors", logger.Error(err))
			body["error"] = err.Error()
		}
		c.JSON(http.StatusOK, body)
	}
}

func (h *RegistryHandler) writeScan(c *gin.Context, result *domain.ScanResult, err error) {
	if err != nil && result == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		h.log.Error("Scan result could not be persisted", logger.Error(err))
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}
	c.JSON(http.StatusOK, result)
}

// ListSeeds returns the configured seeds.
func (h *RegistryHandler) ListSeeds(c *gin.Context) {
	seeds := h.svc.Seeds()
	c.JSON(http.StatusOK, gin.H{"seeds": seeds, "count": len(seeds)})
}

func (h *RegistryHandler) ListSources(c *gin.Context) {
	sources, err := h.svc.GetSources(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources, "count": len(sources)})
}

func (h *RegistryHandler) GetSource(c *gin.Context) {
	src, err := h.svc.GetSource(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, src)
}

// ListAssets returns all assets, or those of ?source_id.
func (h *RegistryHandler) ListAssets(c *gin.Context) {
	assets, err := h.svc.GetAssets(c.Request.Context(), c.Query("source_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets, "count": len(assets)})
}

func (h *RegistryHandler) GetAsset(c *gin.Context) {
	asset, err := h.svc.GetAssetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}

// GetToc returns an asset's TOC nodes, flat or with ?nested=true as a tree.
func (h *RegistryHandler) GetToc(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.svc.GetAssetByID(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	nodes, err := h.svc.GetTocNodes(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	if queryBool(c, "nested") {
		c.JSON(http.StatusOK, gin.H{"asset_id": id, "toc": export.Nest(nodes), "count": len(nodes)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset_id": id, "nodes": nodes, "count": len(nodes)})
}

func (h *RegistryHandler) ActivateAsset(c *gin.Context) {
	h.setActive(c, h.svc.ActivateAsset)
}

func (h *RegistryHandler) DeactivateAsset(c *gin.Context) {
	h.setActive(c, h.svc.DeactivateAsset)
}

func (h *RegistryHandler) setActive(c *gin.Context, apply func(context.Context, string) (*domain.Asset, error)) {
	var req assetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %w", errValidation, err))
		return
	}
	if strings.TrimSpace(req.AssetID) == "" {
		respondError(c, fmt.Errorf("%w: asset_id is required", errValidation))
		return
	}

	asset, err := apply(c.Request.Context(), req.AssetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "asset": asset})
}

// ListLogs returns scan logs filtered by ?source_id, ?asset_id and ?limit.
func (h *RegistryHandler) ListLogs(c *gin.Context) {
	filter := domain.ScanLogFilter{
		SourceID: c.Query("source_id"),
		AssetID:  c.Query("asset_id"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(c, fmt.Errorf("%w: limit must be a positive integer", errValidation))
			return
		}
		filter.Limit = limit
	}

	logs, err := h.svc.GetScanLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// Export returns the library document; ?active_only=true drops inactive assets.
func (h *RegistryHandler) Export(c *gin.Context) {
	doc, err := export.Build(c.Request.Context(), h.export, export.Options{ActiveOnly: queryBool(c, "active_only")})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func queryBool(c *gin.Context, key string) bool {
	v, ok := c.GetQuery(key)
	if !ok {
		return false
	}
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
