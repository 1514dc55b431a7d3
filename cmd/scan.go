package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/source-registry/internal/config"
	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/export"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

const defaultExportPath = "registry-export.json"

var errScanFailed = errors.New("scan failed")

func newScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan seeded sources and catalog their assets",
		Long: `Scan every seed (or one, with --seed or --source-id), map tables of contents
and record the outcome. With --export the catalog is written as JSON afterwards.`,
		PreRunE: bindFlags,
		RunE:    runScan,
	}

	addScanFlags(cmd)

	return cmd
}

// addScanFlags registers the scan flags. The root command carries them too,
// so a bare invocation behaves like scan.
func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().String("seed", "", "scan only the named seed")
	cmd.Flags().String("source-id", "", "rescan a stored source by ID")
	cmd.Flags().Bool("skip-scanned", false, "skip assets that already have a table of contents")
	cmd.Flags().Bool("export", false, "write the JSON export after scanning")
	cmd.Flags().Bool("export-only", false, "write the JSON export without scanning")
	cmd.Flags().String("output", defaultExportPath, "export file path")
	cmd.Flags().Bool("list-seeds", false, "list configured seeds and exit")
	cmd.Flags().Bool("list-sources", false, "list cataloged sources and exit")
	cmd.Flags().Bool("list-assets", false, "list cataloged assets and exit")
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if viper.GetBool("list-seeds") {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		seeds, err := config.LoadSeeds(cfg.SeedsFile)
		if err != nil {
			return err
		}
		renderSeeds(out, seeds)
		return nil
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case viper.GetBool("list-sources"):
		sources, listErr := a.registry.GetSources(ctx)
		if listErr != nil {
			return listErr
		}
		renderSources(out, sources)
		return nil
	case viper.GetBool("list-assets"):
		assets, listErr := a.registry.GetAssets(ctx, "")
		if listErr != nil {
			return listErr
		}
		renderAssets(out, assets)
		return nil
	case viper.GetBool("export-only"):
		return writeExport(cmd, a, viper.GetString("output"), false)
	}

	results, err := scan(cmd, a)
	if len(results) > 0 {
		renderScanResults(out, results)
	}
	if err = scanOutcome(results, err); err != nil {
		a.log.Error("Scan failed", logger.Error(err))
		return err
	}

	if viper.GetBool("export") {
		return writeExport(cmd, a, viper.GetString("output"), false)
	}
	return nil
}

// scanOutcome turns scan results into the command error. Only a hard error
// or a run where every seed failed is fatal; partial failures are printed
// with the results and exit 0.
func scanOutcome(results []*domain.ScanResult, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", errScanFailed, err)
	}
	if len(results) == 0 {
		return nil
	}
	for _, r := range results {
		if r.Success {
			return nil
		}
	}
	return fmt.Errorf("%w: all %d seed scan(s) failed", errScanFailed, len(results))
}

func scan(cmd *cobra.Command, a *app) ([]*domain.ScanResult, error) {
	ctx := cmd.Context()
	opts := domain.ScanOptions{SkipScanned: viper.GetBool("skip-scanned")}
	seedName := viper.GetString("seed")
	sourceID := viper.GetString("source-id")

	switch {
	case seedName != "" && sourceID != "":
		return nil, errors.New("--seed and --source-id cannot be combined")
	case seedName != "":
		seed, err := a.registry.FindSeed(seedName)
		if err != nil {
			return nil, err
		}
		result, err := a.registry.ScanSeed(ctx, seed, opts)
		return singleResult(result), err
	case sourceID != "":
		result, err := a.registry.ScanSourceByID(ctx, sourceID, opts)
		return singleResult(result), err
	default:
		return a.registry.ScanAllSeeds(ctx, opts)
	}
}

func singleResult(r *domain.ScanResult) []*domain.ScanResult {
	if r == nil {
		return nil
	}
	return []*domain.ScanResult{r}
}

func writeExport(cmd *cobra.Command, a *app, path string, activeOnly bool) error {
	doc, err := export.Build(cmd.Context(), a.store, export.Options{ActiveOnly: activeOnly})
	if err != nil {
		return err
	}
	if path == "-" {
		return export.Encode(cmd.OutOrStdout(), doc)
	}
	if err = export.WriteFile(path, doc); err != nil {
		return err
	}
	a.log.Info("Registry exported",
		logger.String("path", path),
		logger.Int("sources", doc.SourceCount),
		logger.Int("assets", doc.AssetCount),
		logger.Int("nodes", doc.NodeCount),
	)
	cmd.Printf("Exported %d sources, %d assets, %d nodes to %s\n", doc.SourceCount, doc.AssetCount, doc.NodeCount, path)
	return nil
}
