package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/courtcrawl/internal/discover"
	"github.com/ppiankov/courtcrawl/internal/output"
	"github.com/ppiankov/courtcrawl/internal/pipeline"
	"github.com/ppiankov/courtcrawl/internal/worker"
)

var lookupFile string

// lookupCmd represents the lookup command
var lookupCmd = &cobra.Command{
	Use:   "lookup [case-number...]",
	Short: "Scrape specific case numbers",
	Long: `Lookup scrapes the given case numbers without running discovery and
writes one JSON line per defendant record.

Case numbers have the form {year}-{category}-{serial}.

Example:
  courtcrawl lookup 2024-A-117
  courtcrawl lookup 2024-A-117 2024-I-9
  courtcrawl lookup --file cases.txt --workers 8`,
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)

	lookupCmd.Flags().StringVarP(&lookupFile, "file", "f", "", "file with one case number per line")
}

func runLookup(cmd *cobra.Command, args []string) error {
	if lookupFile != "" && len(args) > 0 {
		return fmt.Errorf("pass case numbers as arguments or with --file, not both")
	}
	if lookupFile == "" && len(args) == 0 {
		return fmt.Errorf("no case numbers given; pass them as arguments or with --file")
	}

	var keys []discover.CaseKey
	for _, arg := range args {
		key, err := discover.ParseCaseKey(arg)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}

	ctx, cancel := signalContext()
	defer cancel()

	p := pipeline.NewPipeline(appConfig, logger)
	if err := p.Preflight(ctx); err != nil {
		return err
	}

	out := output.NewJSONLinesWriter(cmd.OutOrStdout())
	batch := worker.NewBatchProcessor(p, appConfig.Concurrency.Workers, logger)

	emit := func(r *worker.LookupResult) error {
		if r.Error == nil && len(r.Records) == 0 {
			fmt.Fprintf(os.Stderr, "No results for %s\n", r.Key)
		}
		for _, rec := range r.Records {
			if err := out.Write(rec); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		summary worker.Summary
		err     error
	)
	if lookupFile != "" {
		summary, err = batch.ProcessFile(ctx, lookupFile, emit)
	} else {
		summary, err = batch.ProcessKeys(ctx, keys, emit)
	}
	if flushErr := out.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d lookups failed", summary.Failed, summary.Keys)
	}
	return nil
}
