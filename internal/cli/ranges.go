package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/ppiankov/courtcrawl/internal/discover"
	"github.com/ppiankov/courtcrawl/internal/pipeline"
)

var (
	rangesYear int
	rangesJSON bool
)

// rangesCmd represents the ranges command
var rangesCmd = &cobra.Command{
	Use:   "ranges",
	Short: "Discover which case numbers exist for a year",
	Long: `Ranges runs the bisection search for every case category and prints the
half-open serial range [start, end) found for each.

Categories A, B, C and D share one serial counter, so each starts where the
previous one ended. Category I is searched on its own.

Example:
  courtcrawl ranges --year 2024
  courtcrawl ranges --year 2023 --json`,
	Args: cobra.NoArgs,
	RunE: runRanges,
}

func init() {
	rootCmd.AddCommand(rangesCmd)

	rangesCmd.Flags().IntVar(&rangesYear, "year", time.Now().Year(), "case year")
	rangesCmd.Flags().BoolVar(&rangesJSON, "json", false, "print ranges as JSON")
}

// signalContext is canceled on interrupt so running requests unwind cleanly
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runRanges(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	p := pipeline.NewPipeline(appConfig, logger)
	if err := p.Preflight(ctx); err != nil {
		return err
	}

	ranges, err := p.Discover(ctx, rangesYear)
	if err != nil {
		return fmt.Errorf("discover failed: %w", err)
	}

	if rangesJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ranges)
	}

	renderRanges(cmd.OutOrStdout(), ranges)
	return nil
}

func renderRanges(w io.Writer, ranges *discover.Ranges) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Case ranges %d", ranges.Year))
	t.AppendHeader(table.Row{"Category", "Start", "End", "Cases"})

	for _, cat := range ranges.Categories() {
		r, _ := ranges.Get(cat)
		t.AppendRow(table.Row{string(cat), r.Start, r.End, r.Len()})
	}

	t.AppendFooter(table.Row{"", "", "Total", ranges.Total()})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
