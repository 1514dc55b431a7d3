package cmd

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/source-registry/internal/api"
	"github.com/jonesrussell/north-cloud/source-registry/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/source-registry/internal/config"
	"github.com/jonesrussell/north-cloud/source-registry/internal/grounding"
	"github.com/jonesrussell/north-cloud/source-registry/internal/llm"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
	"github.com/jonesrussell/north-cloud/source-registry/internal/registry"
	"github.com/jonesrussell/north-cloud/source-registry/internal/visual"
)

const (
	serviceName               = "source-registry"
	catalogRequestsPerSecond  = 2
	catalogTimeout            = 15 * time.Second
	schedulerShutdownDeadline = 30 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the registry and grounding HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := llm.NewAnthropicClient(llm.AnthropicConfig{
		APIKey:    a.cfg.LLM.APIKey,
		Model:     a.cfg.LLM.Model,
		MaxTokens: a.cfg.LLM.MaxTokens,
		Timeout:   a.cfg.LLM.Timeout,
		Breaker:   circuitbreaker.DefaultConfig(),
	}, a.log.With(logger.String("component", "llm")), a.metrics)
	if err != nil {
		return err
	}

	groundingSvc := grounding.NewService(grounding.ServiceConfig{
		Store:       a.store,
		Resolver:    grounding.NewNodeResolver(client, a.log, a.metrics),
		Retriever:   grounding.NewContentRetriever(a.fetcher, grounding.RetrieverConfig{}, a.log),
		Synthesizer: grounding.NewSynthesizer(client, a.log, a.metrics),
		Visuals:     newVisualService(a.cfg, client, a.log, a.metrics),
		Metrics:     a.metrics,
		Logger:      a.log,
	})

	if a.cfg.Scheduler.Enabled {
		scheduler := registry.NewScheduler(a.registry, a.cfg.Scheduler.Spec, a.log)
		if err = scheduler.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), schedulerShutdownDeadline)
			defer cancel()
			if stopErr := scheduler.Stop(stopCtx); stopErr != nil {
				a.log.Warn("Scheduler did not stop cleanly", logger.Error(stopErr))
			}
		}()
	}

	router := api.NewRouter(api.Deps{
		Registry:    a.registry,
		Export:      a.store,
		Grounding:   groundingSvc,
		Modules:     a.store,
		Ping:        a.store.Ping,
		Metrics:     a.metrics,
		Gatherer:    prometheus.DefaultGatherer,
		Logger:      a.log,
		Logs:        a.logs,
		ServiceName: serviceName,
		Version:     Version,
	})

	a.log.Info("Starting source registry",
		logger.String("address", a.cfg.Server.Address),
		logger.String("version", Version),
		logger.Bool("scheduler", a.cfg.Scheduler.Enabled),
		logger.Bool("visuals", a.cfg.Visual.Enabled),
	)
	return api.NewServer(a.cfg.Server, router, a.log).Run(ctx)
}

// newVisualService returns nil when visual enrichment is disabled.
func newVisualService(cfg *config.Config, client llm.Client, log logger.Logger, m *metrics.Metrics) grounding.VisualEnricher {
	if !cfg.Visual.Enabled {
		return nil
	}
	catalogs := []visual.Catalog{
		visual.NewWikimediaCatalog(visual.CatalogConfig{
			BaseURL:           cfg.Visual.WikimediaURL,
			UserAgent:         cfg.Fetcher.UserAgent,
			Timeout:           catalogTimeout,
			RequestsPerSecond: catalogRequestsPerSecond,
		}),
		visual.NewOpenverseCatalog(visual.CatalogConfig{
			BaseURL:           cfg.Visual.OpenverseURL,
			UserAgent:         cfg.Fetcher.UserAgent,
			Timeout:           catalogTimeout,
			RequestsPerSecond: catalogRequestsPerSecond,
		}),
	}
	return visual.NewVisualAidService(
		visual.NewIntentGenerator(client, log, m),
		catalogs,
		visual.ServiceConfig{
			Filter: visual.FilterConfig{
				MinWidth:  cfg.Visual.MinWidth,
				MinHeight: cfg.Visual.MinHeight,
				MinScore:  cfg.Visual.MinScore,
			},
			MaxPerIntent: cfg.Visual.MaxPerIntent,
		},
		log, m,
	)
}
