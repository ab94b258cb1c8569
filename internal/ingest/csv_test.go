package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/golang-sql/civil"

	"github.com/atlasquant/marketdata/internal/store"
)

func TestParseCSV(t *testing.T) {
	spec := testSpec("indicators")

	csvData := strings.Join([]string{
		"code,date,value",
		"brl_usd,2024-01-02,4.95",
		"brl_usd,2024-01-03,4.97",
		"selic,2024-01-02,11.25",
	}, "\n")

	result, err := ParseCSV(spec, []byte(csvData))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Skipped) != 0 {
		t.Fatalf("skipped = %v, want none", result.Skipped)
	}
	if got := result.Data.NumRows(); got != 3 {
		t.Fatalf("rows = %d, want 3", got)
	}

	row := result.Data.Rows[0]
	if row[0] != "brl_usd" {
		t.Errorf("code = %v", row[0])
	}
	if d, ok := row[1].(civil.Date); !ok || d.String() != "2024-01-02" {
		t.Errorf("date = %v (%T)", row[1], row[1])
	}
	if row[2] != 4.95 {
		t.Errorf("value = %v", row[2])
	}
}

func TestParseCSVFindsHeaderPastTitleRows(t *testing.T) {
	spec := testSpec("indicators")

	csvData := strings.Join([]string{
		"Vendor Export Report",
		"Generated,2024-06-01",
		"",
		"code,date,value",
		"brl_usd,2024-01-02,4.95",
	}, "\n")

	result, err := ParseCSV(spec, []byte(csvData))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Data.NumRows(); got != 1 {
		t.Errorf("rows = %d, want 1", got)
	}
}

func TestParseCSVHeaderNotFound(t *testing.T) {
	spec := testSpec("indicators")

	_, err := ParseCSV(spec, []byte("ticker,when,amount\nX,2024-01-02,1\n"))
	var se *store.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("error = %T (%v), want SchemaError", err, err)
	}
}

func TestParseCSVEmptyPayload(t *testing.T) {
	spec := testSpec("indicators")

	_, err := ParseCSV(spec, []byte(""))
	var ve *store.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %T (%v), want ValidationError", err, err)
	}
}

func TestParseCSVSkipsBadRows(t *testing.T) {
	spec := testSpec("indicators")

	csvData := strings.Join([]string{
		"code,date,value",
		"brl_usd,2024-01-02,4.95",
		"brl_usd,not-a-date,4.97",
		",2024-01-04,1.0",
		"selic,2024-01-05,eleven",
		"",
		"selic,2024-01-06,11.25",
	}, "\n")

	result, err := ParseCSV(spec, []byte(csvData))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Data.NumRows(); got != 2 {
		t.Errorf("rows = %d, want the 2 clean rows", got)
	}
	if len(result.Skipped) != 3 {
		t.Fatalf("skipped = %d, want 3: %v", len(result.Skipped), result.Skipped)
	}

	// Line numbers are 1-indexed positions in the file.
	wantLines := []int{3, 4, 5}
	for i, rowErr := range result.Skipped {
		if rowErr.Line != wantLines[i] {
			t.Errorf("skipped[%d].Line = %d, want %d (%s)", i, rowErr.Line, wantLines[i], rowErr.Reason)
		}
	}
}

func TestParseCSVEmptyValueStoresNull(t *testing.T) {
	spec := testSpec("indicators")

	result, err := ParseCSV(spec, []byte("code,date,value\nbrl_usd,2024-01-02,\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Data.NumRows(); got != 1 {
		t.Fatalf("rows = %d, want 1", got)
	}
	if result.Data.Rows[0][2] != nil {
		t.Errorf("value = %v, want nil for empty AllowEmpty cell", result.Data.Rows[0][2])
	}
}

func TestParseCSVExcelArtifacts(t *testing.T) {
	spec := testSpec("indicators")

	csvData := "code,date,value\n" + `="brl_usd",2024/01/02,"1,234.5"` + "\n"
	result, err := ParseCSV(spec, []byte(csvData))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := result.Data.Rows[0]
	if row[0] != "brl_usd" {
		t.Errorf("code = %v, want Excel wrapper stripped", row[0])
	}
	if row[2] != 1234.5 {
		t.Errorf("value = %v, want thousands separator stripped", row[2])
	}
}

func TestParseNumericCell(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "1234.56", want: 1234.56},
		{in: "1,234.56", want: 1234.56},
		{in: "$99.90", want: 99.9},
		{in: "(12.5)", want: -12.5},
		{in: "-0.25", want: -0.25},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseNumericCell(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseNumericCell(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseNumericCell(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "  spaced  ", want: "spaced"},
		{in: `="wrapped"`, want: "wrapped"},
		{in: "=formula", want: "formula"},
		{in: `"quoted"`, want: "quoted"},
		{in: "'single'", want: "single"},
		{in: "plain", want: "plain"},
	}

	for _, tt := range tests {
		if got := cleanCell(tt.in); got != tt.want {
			t.Errorf("cleanCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
