package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/courtcrawl/internal/report"
)

var (
	feloniesOut string
	feloniesAll bool
)

// feloniesCmd represents the felonies command
var feloniesCmd = &cobra.Command{
	Use:   "felonies [records.jsonl]",
	Short: "Convert scraped records into a felony conviction CSV",
	Long: `Felonies reads JSON-lines case records (from a file or stdin) and writes a
CSV report. A record has a felony conviction when any of its charges was
convicted as a FELONY. Dates of birth are rewritten as YYYY-MM-DD and fees
lose their currency formatting.

By default only records with a felony conviction are written; --all writes
every record with the felony_conviction column set.

Example:
  courtcrawl felonies cases-2024.jsonl --out felonies.csv
  courtcrawl crawl --year 2024 | courtcrawl felonies --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFelonies,
}

func init() {
	rootCmd.AddCommand(feloniesCmd)

	feloniesCmd.Flags().StringVarP(&feloniesOut, "out", "o", "", "output CSV path (default: stdout)")
	feloniesCmd.Flags().BoolVar(&feloniesAll, "all", false, "write every record, not only felony convictions")
}

func runFelonies(cmd *cobra.Command, args []string) (err error) {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open records: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	w, closeOut, err := openOutput(cmd, feloniesOut)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeOut(); closeErr != nil && err == nil {
			err = fmt.Errorf("close output: %w", closeErr)
		}
	}()

	stats, err := report.WriteFelonyCSV(in, w, report.Options{All: feloniesAll})
	if err != nil {
		return fmt.Errorf("felony report failed: %w", err)
	}

	if appConfig.Output.Verbose || feloniesOut != "" {
		fmt.Fprintf(os.Stderr, "✓ %d records read, %d felony convictions, %d rows written\n",
			stats.Records, stats.Felonies, stats.Written)
	}
	return nil
}
