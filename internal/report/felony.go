// Package report turns scraped case records into downstream reports.
package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/courtcrawl/internal/model"
)

const portalDateLayout = "01/02/2006"

// maxLineBytes bounds a single JSON line; case pages with many charges run long
const maxLineBytes = 4 << 20

// FelonyColumns is the CSV header, in order
var FelonyColumns = []string{
	"full_name",
	"first_name",
	"last_name",
	"oca",
	"date_of_birth",
	"criminal_history_url",
	"case_number",
	"case_url",
	"case_status",
	"defendant_status",
	"fees_owed",
	"felony_conviction",
}

// Options controls which records are written
type Options struct {
	All bool // write every record, not only felony convictions
}

// Stats counts what the filter did
type Stats struct {
	Records  int `json:"records"`
	Felonies int `json:"felonies"`
	Written  int `json:"written"`
}

// HasFelonyConviction reports whether any charge was convicted as a felony
func HasFelonyConviction(rec model.CaseRecord) bool {
	for _, c := range rec.Charges {
		if c.Convicted != nil && strings.Contains(*c.Convicted, "FELONY") {
			return true
		}
	}
	return false
}

// NormalizeDOB converts the portal's MM/DD/YYYY date to YYYY-MM-DD.
// An empty date stays empty.
func NormalizeDOB(dob string) (string, error) {
	if dob == "" {
		return "", nil
	}
	t, err := time.Parse(portalDateLayout, dob)
	if err != nil {
		return "", fmt.Errorf("date of birth %q: %w", dob, err)
	}
	return t.Format(time.DateOnly), nil
}

// NormalizeFees strips currency formatting: "$1,234.50" becomes "1234.50"
func NormalizeFees(fees *string) string {
	if fees == nil {
		return ""
	}
	return strings.NewReplacer("$", "", ",", "").Replace(*fees)
}

// FelonyRow renders rec as a CSV row in FelonyColumns order
func FelonyRow(rec model.CaseRecord) ([]string, error) {
	dob, err := NormalizeDOB(rec.DateOfBirth)
	if err != nil {
		return nil, err
	}

	oca := ""
	if rec.OCA != nil {
		oca = *rec.OCA
	}

	return []string{
		rec.FullName,
		rec.FirstName,
		rec.LastName,
		oca,
		dob,
		rec.CriminalHistoryURL,
		rec.CaseNumber,
		rec.CaseURL,
		rec.CaseStatus,
		rec.DefendantStatus,
		NormalizeFees(rec.FeesOwed),
		strconv.FormatBool(HasFelonyConviction(rec)),
	}, nil
}

// WriteFelonyCSV reads JSON-lines case records from r and writes the felony
// report to w. Blank lines are skipped; a malformed line stops the report
// with an error naming its line number. Rows written before an error are
// still flushed to w.
func WriteFelonyCSV(r io.Reader, w io.Writer, opts Options) (stats Stats, err error) {
	out := csv.NewWriter(w)
	defer func() {
		out.Flush()
		if ferr := out.Error(); ferr != nil && err == nil {
			err = fmt.Errorf("flush csv: %w", ferr)
		}
	}()

	if err := out.Write(FelonyColumns); err != nil {
		return stats, fmt.Errorf("write header: %w", err)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec model.CaseRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}
		stats.Records++

		felony := HasFelonyConviction(rec)
		if felony {
			stats.Felonies++
		}
		if !felony && !opts.All {
			continue
		}

		row, err := FelonyRow(rec)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := out.Write(row); err != nil {
			return stats, fmt.Errorf("write row: %w", err)
		}
		stats.Written++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read records: %w", err)
	}
	return stats, nil
}
