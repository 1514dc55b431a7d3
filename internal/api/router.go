// Package api exposes the registry and grounding services over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/source-registry/internal/export"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
)

const healthCheckTimeout = 2 * time.Second

// Deps are the services behind the router. Grounding and Modules may be nil,
// in which case the module routes are not registered.
type Deps struct {
	Registry  RegistryService
	Export    export.Reader
	Grounding GroundingService
	Modules   ModuleStore
	// Ping checks the database for /health.
	Ping    func(ctx context.Context) error
	Metrics *metrics.Metrics
	// Gatherer serves /metrics; DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
	Logger   logger.Logger
	// Logs backs /debug/logs; the route is omitted when nil.
	Logs *logger.RingBuffer

	ServiceName string
	Version     string
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(deps Deps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDLoggerMiddleware(log))
	router.Use(LoggerMiddleware(log))
	router.Use(deps.Metrics.GinMiddleware())

	router.GET("/health", healthHandler(deps))

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	if deps.Logs != nil {
		router.GET("/debug/logs", recentLogsHandler(deps.Logs))
	}

	reg := NewRegistryHandler(deps.Registry, deps.Export, log)
	r := router.Group("/registry")
	r.POST("/scan", reg.Scan)
	r.GET("/seeds", reg.ListSeeds)
	r.GET("/sources", reg.ListSources)
	r.GET("/sources/:id", reg.GetSource)
	r.GET("/assets", reg.ListAssets)
	r.GET("/assets/:id", reg.GetAsset)
	r.GET("/assets/:id/toc", reg.GetToc)
	r.POST("/activate-asset", reg.ActivateAsset)
	r.POST("/deactivate-asset", reg.DeactivateAsset)
	r.GET("/logs", reg.ListLogs)
	if deps.Export != nil {
		r.GET("/export", reg.Export)
	}

	if deps.Grounding != nil && deps.Modules != nil {
		mod := NewModuleHandler(deps.Grounding, deps.Modules, log)
		m := router.Group("/modules")
		m.POST("", mod.Create)
		m.GET("/:id", mod.Get)
		m.POST("/:id/resolve", mod.Resolve)
		m.POST("/:id/render", mod.Render)
		m.GET("/:id/citations", mod.Citations)

		g := router.Group("/grounding")
		g.POST("/resolve-nodes", mod.ResolveNodes)
		g.POST("/render", mod.RenderContent)
	}

	return router
}

func healthHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":  "healthy",
			"service": deps.ServiceName,
			"version": deps.Version,
		}
		if deps.Ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
			defer cancel()
			if err := deps.Ping(ctx); err != nil {
				body["status"] = "unhealthy"
				body["database"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, body)
				return
			}
			body["database"] = "ok"
		}
		c.JSON(http.StatusOK, body)
	}
}
