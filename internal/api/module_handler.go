package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/grounding"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

// GroundingService is the grounding API the handlers call.
type GroundingService interface {
	ResolveNodesForModule(ctx context.Context, req domain.ResolveNodesRequest) domain.ResolveNodesResult
	RenderModuleContent(ctx context.Context, req grounding.RenderRequest) domain.RenderedModuleContent
	ResolveModule(ctx context.Context, moduleID string) (*domain.Module, domain.ResolveNodesResult, error)
	RenderModule(ctx context.Context, moduleID string, includeVisuals bool) (domain.RenderedModuleContent, error)
	GetModuleCitationDisplay(ctx context.Context, moduleID string) (string, error)
}

// ModuleStore persists module records.
type ModuleStore interface {
	GetModule(ctx context.Context, id string) (*domain.Module, error)
	SaveModule(ctx context.Context, m *domain.Module) error
}

// ModuleHandler serves /modules and /grounding.
type ModuleHandler struct {
	svc     GroundingService
	modules ModuleStore
	log     logger.Logger
}

// NewModuleHandler creates a ModuleHandler.
func NewModuleHandler(svc GroundingService, modules ModuleStore, log logger.Logger) *ModuleHandler {
	return &ModuleHandler{svc: svc, modules: modules, log: log}
}

type createModuleRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PathContext string `json:"path_context"`
	Difficulty  string `json:"difficulty"`
	AssetID     string `json:"asset_id"`
}

type renderRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Difficulty     string   `json:"difficulty"`
	AssetID        string   `json:"asset_id"`
	NodeIDs        []string `json:"node_ids"`
	IncludeVisuals bool     `json:"include_visuals"`
}

// Create stores a new module.
func (h *ModuleHandler) Create(c *gin.Context) {
	var req createModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %w", errValidation, err))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondError(c, fmt.Errorf("%w: title is required", errValidation))
		return
	}

	now := time.Now().UTC()
	mod := &domain.Module{
		ID:            req.ID,
		Title:         req.Title,
		Description:   req.Description,
		PathContext:   req.PathContext,
		Difficulty:    grounding.NormalizeDifficulty(req.Difficulty),
		SourceNodeIDs: domain.StringList{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mod.ID == "" {
		mod.ID = uuid.NewString()
	}
	if req.AssetID != "" {
		assetID := req.AssetID
		mod.AssetID = &assetID
	}

	if err := h.modules.SaveModule(c.Request.Context(), mod); err != nil {
		respondError(c, err)
		return
	}
	h.log.Info("Module created", logger.String("module_id", mod.ID), logger.String("title", mod.Title))
	c.JSON(http.StatusCreated, mod)
}

func (h *ModuleHandler) Get(c *gin.Context) {
	mod, err := h.modules.GetModule(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mod)
}

// Resolve selects and persists TOC nodes for a stored module.
func (h *ModuleHandler) Resolve(c *gin.Context) {
	mod, result, err := h.svc.ResolveModule(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"module": mod, "resolution": result})
}

// Render synthesizes content for a stored module; ?visuals=true adds visual aids.
func (h *ModuleHandler) Render(c *gin.Context) {
	content, err := h.svc.RenderModule(c.Request.Context(), c.Param("id"), queryBool(c, "visuals"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

func (h *ModuleHandler) Citations(c *gin.Context) {
	display, err := h.svc.GetModuleCitationDisplay(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"module_id": c.Param("id"), "citation_display": display})
}

// ResolveNodes resolves nodes for an ad hoc module description without
// storing anything.
func (h *ModuleHandler) ResolveNodes(c *gin.Context) {
	var req domain.ResolveNodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %w", errValidation, err))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondError(c, fmt.Errorf("%w: title is required", errValidation))
		return
	}
	c.JSON(http.StatusOK, h.svc.ResolveNodesForModule(c.Request.Context(), req))
}

// RenderContent renders content from explicit node ids without storing anything.
func (h *ModuleHandler) RenderContent(c *gin.Context) {
	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %w", errValidation, err))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondError(c, fmt.Errorf("%w: title is required", errValidation))
		return
	}
	c.JSON(http.StatusOK, h.svc.RenderModuleContent(c.Request.Context(), grounding.RenderRequest{
		Title:          req.Title,
		Description:    req.Description,
		Difficulty:     req.Difficulty,
		AssetID:        req.AssetID,
		NodeIDs:        req.NodeIDs,
		IncludeVisuals: req.IncludeVisuals,
	}))
}
