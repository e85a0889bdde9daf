package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/courtcrawl/internal/model"
	"github.com/ppiankov/courtcrawl/internal/output"
	"github.com/ppiankov/courtcrawl/internal/pipeline"
)

var (
	crawlYear int
	crawlOut  string
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Discover and scrape every case for a year",
	Long: `Crawl discovers the case number ranges for a year, looks up every case
number in them with a pool of workers and writes one JSON line per
defendant record.

Lookups that fail are logged and counted; the crawl carries on.

Example:
  courtcrawl crawl --year 2024 --out cases-2024.jsonl
  courtcrawl crawl --year 2024 --workers 8 --rps 6 | courtcrawl felonies`,
	Args: cobra.NoArgs,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().IntVar(&crawlYear, "year", time.Now().Year(), "case year")
	crawlCmd.Flags().StringVarP(&crawlOut, "out", "o", "", "output JSON-lines path (default: stdout)")
}

// openOutput returns the file at path, or stdout when path is empty
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}

func runCrawl(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signalContext()
	defer cancel()

	path := crawlOut
	if path == "" {
		path = appConfig.Output.Path
	}
	w, closeOut, err := openOutput(cmd, path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeOut(); closeErr != nil && err == nil {
			err = fmt.Errorf("close output: %w", closeErr)
		}
	}()

	out := output.NewJSONLinesWriter(w)
	p := pipeline.NewPipeline(appConfig, logger)

	result, crawlErr := p.Crawl(ctx, crawlYear, func(rec model.CaseRecord) error {
		return out.Write(rec)
	})
	if flushErr := out.Flush(); flushErr != nil && crawlErr == nil {
		crawlErr = fmt.Errorf("flush output: %w", flushErr)
	}

	if result != nil {
		s := result.Summary
		fmt.Fprintf(os.Stderr, "Run %s: %d case numbers, %d records, %d empty, %d failed in %s\n",
			result.RunID, s.Keys, s.Records, s.Empty, s.Failed, result.Elapsed.Round(time.Second))
		if path != "" {
			fmt.Fprintf(os.Stderr, "✓ Wrote %d records: %s\n", out.Count(), path)
		}
	}

	return crawlErr
}
