package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/courtcrawl/internal/model"
)

func strPtr(s string) *string { return &s }

const records = `{"case_number":"2024-A-1","first_name":"JANE","last_name":"DOE","full_name":"DOE, JANE","case_url":"https://p/1","criminal_history_url":"https://p/h1","case_status":"Closed","defendant_status":"Inactive","fees_owed":"$1,234.50","date_of_birth":"03/14/1990","oca":"556677","charges":[{"charge":"THEFT","count":1,"amended":null,"convicted":"THEFT - CLASS E FELONY","disposition":"GUILTY"}]}

{"case_number":"2024-A-2","first_name":"JOHN","last_name":"ROE","full_name":"ROE, JOHN","case_url":"https://p/2","case_status":"Open","defendant_status":"Released","fees_owed":null,"date_of_birth":"","oca":null,"charges":[{"charge":"VANDALISM","count":null,"amended":null,"convicted":"VANDALISM - MISDEMEANOR","disposition":null}]}
`

func readCSV(t *testing.T, s string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	if err != nil {
		t.Fatalf("output is not CSV: %v", err)
	}
	return rows
}

func TestWriteFelonyCSV_FeloniesOnly(t *testing.T) {
	var out bytes.Buffer
	stats, err := WriteFelonyCSV(strings.NewReader(records), &out, Options{})
	if err != nil {
		t.Fatalf("WriteFelonyCSV failed: %v", err)
	}

	want := [][]string{
		FelonyColumns,
		{"DOE, JANE", "JANE", "DOE", "556677", "1990-03-14", "https://p/h1", "2024-A-1", "https://p/1", "Closed", "Inactive", "1234.50", "true"},
	}
	if diff := cmp.Diff(want, readCSV(t, out.String())); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Stats{Records: 2, Felonies: 1, Written: 1}, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFelonyCSV_All(t *testing.T) {
	var out bytes.Buffer
	stats, err := WriteFelonyCSV(strings.NewReader(records), &out, Options{All: true})
	if err != nil {
		t.Fatalf("WriteFelonyCSV failed: %v", err)
	}

	rows := readCSV(t, out.String())
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	want := []string{"ROE, JOHN", "JOHN", "ROE", "", "", "", "2024-A-2", "https://p/2", "Open", "Released", "", "false"}
	if diff := cmp.Diff(want, rows[2]); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
	if stats.Written != 2 {
		t.Errorf("expected 2 written, got %d", stats.Written)
	}
}

func TestWriteFelonyCSV_MalformedLine(t *testing.T) {
	input := `{"case_number":"2024-A-1","charges":[]}` + "\n" + `{not json}` + "\n"
	_, err := WriteFelonyCSV(strings.NewReader(input), &bytes.Buffer{}, Options{All: true})
	if err == nil || !strings.HasPrefix(err.Error(), "line 2:") {
		t.Errorf("expected line 2 error, got %v", err)
	}
}

func TestWriteFelonyCSV_ErrorKeepsWrittenRows(t *testing.T) {
	first, _, _ := strings.Cut(records, "\n")
	input := first + "\n" + `{not json}` + "\n"

	var out bytes.Buffer
	stats, err := WriteFelonyCSV(strings.NewReader(input), &out, Options{})
	if err == nil || !strings.HasPrefix(err.Error(), "line 2:") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
	if stats.Written != 1 {
		t.Errorf("expected 1 written row, got %d", stats.Written)
	}

	rows := readCSV(t, out.String())
	if len(rows) != 2 {
		t.Fatalf("expected header and one row flushed, got %d rows", len(rows))
	}
	if diff := cmp.Diff(FelonyColumns, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if rows[1][6] != "2024-A-1" {
		t.Errorf("expected case 2024-A-1 in flushed row, got %q", rows[1][6])
	}
}

func TestWriteFelonyCSV_BadDate(t *testing.T) {
	input := `{"case_number":"2024-A-1","date_of_birth":"1990-03-14","charges":[]}`
	_, err := WriteFelonyCSV(strings.NewReader(input), &bytes.Buffer{}, Options{All: true})
	if err == nil || !strings.HasPrefix(err.Error(), "line 1:") {
		t.Errorf("expected line 1 error, got %v", err)
	}
}

func TestHasFelonyConviction(t *testing.T) {
	tests := []struct {
		name    string
		charges []model.Charge
		want    bool
	}{
		{"no charges", nil, false},
		{"not convicted", []model.Charge{{Charge: "THEFT"}}, false},
		{"misdemeanor", []model.Charge{{Convicted: strPtr("ASSAULT - MISDEMEANOR")}}, false},
		{"second charge felony", []model.Charge{{Convicted: strPtr("X")}, {Convicted: strPtr("ROBBERY - CLASS C FELONY")}}, true},
		{"case sensitive", []model.Charge{{Convicted: strPtr("class e felony")}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasFelonyConviction(model.CaseRecord{Charges: tt.charges}); got != tt.want {
				t.Errorf("HasFelonyConviction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeFees(t *testing.T) {
	if got := NormalizeFees(strPtr("$12,345.00")); got != "12345.00" {
		t.Errorf("unexpected %q", got)
	}
	if got := NormalizeFees(nil); got != "" {
		t.Errorf("expected empty for nil, got %q", got)
	}
}

func TestNormalizeDOB(t *testing.T) {
	got, err := NormalizeDOB("12/01/1975")
	if err != nil || got != "1975-12-01" {
		t.Errorf("NormalizeDOB = %q, %v", got, err)
	}
	if got, err := NormalizeDOB(""); err != nil || got != "" {
		t.Errorf("expected empty date to pass through, got %q, %v", got, err)
	}
	if _, err := NormalizeDOB("13/40/1975"); err == nil {
		t.Error("expected error for invalid date")
	}
}
