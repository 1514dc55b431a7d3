package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
)

const maxCellWidth = 50

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func renderSeeds(w io.Writer, seeds []domain.Seed) {
	t := newTable(w, table.Row{"Name", "Type", "Base URL", "Rate/min", "Subjects"})
	for _, s := range seeds {
		rate := "default"
		if s.RateLimit > 0 {
			rate = fmt.Sprintf("%d", s.RateLimit)
		}
		t.AppendRow(table.Row{s.Name, s.Type, truncate(s.BaseURL, maxCellWidth), rate, strings.Join(s.Subjects, ", ")})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(seeds)})
	t.Render()
}

func renderSources(w io.Writer, sources []domain.Source) {
	t := newTable(w, table.Row{"ID", "Name", "Type", "Robots", "Scan", "Last Scanned"})
	for i := range sources {
		s := &sources[i]
		last := "never"
		if s.LastScannedAt != nil {
			last = s.LastScannedAt.Format("2006-01-02 15:04")
		}
		t.AppendRow(table.Row{s.ID, s.Name, s.Type, string(s.RobotsStatus), s.ScanStatus, last})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(sources)})
	t.Render()
}

func renderAssets(w io.Writer, assets []domain.Asset) {
	t := newTable(w, table.Row{"ID", "Title", "License", "Robots", "Nodes", "Active"})
	active := 0
	for i := range assets {
		a := &assets[i]
		license := a.LicenseName
		if license == "" {
			license = "unknown"
		}
		mark := "no"
		if a.Active {
			mark = "yes"
			active++
		}
		t.AppendRow(table.Row{a.ID, truncate(a.Title, maxCellWidth), license, string(a.RobotsStatus), a.TocNodeCount, mark})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Active", fmt.Sprintf("%d/%d", active, len(assets))})
	t.Render()
}

func renderScanResults(w io.Writer, results []*domain.ScanResult) {
	t := newTable(w, table.Row{"Source", "Success", "Scanned", "Skipped", "Nodes", "Errors", "Duration"})
	for _, r := range results {
		name := "-"
		if r.Source != nil {
			name = r.Source.Name
		}
		t.AppendRow(table.Row{
			name, r.Success, r.AssetsScanned, r.AssetsSkipped, r.NodesMapped, len(r.Errors),
			fmt.Sprintf("%dms", r.DurationMs),
		})
	}
	t.Render()

	for _, r := range results {
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  ! %s\n", e)
		}
	}
}
