package tabular

import (
	"errors"
	"testing"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

func TestParseCSV_Delimiters(t *testing.T) {
	tests := []struct {
		name string
		data string
		want [][]string
	}{
		{
			name: "comma",
			data: "id,name\n1,Red\n",
			want: [][]string{{"id", "name"}, {"1", "Red"}},
		},
		{
			name: "semicolon with quoted comma",
			data: "\ufeffid;name\n1;\"Red, dark\"\n",
			want: [][]string{{"id", "name"}, {"1", "Red, dark"}},
		},
		{
			name: "tab after blank line",
			data: "\n\nid\tname\tunit\n2\tWeight\tkg\n",
			want: [][]string{{"id", "name", "unit"}, {"2", "Weight", "kg"}},
		},
		{
			name: "ragged rows",
			data: "a,b,c\n1\n",
			want: [][]string{{"a", "b", "c"}, {"1"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCSV([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseCSV failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got.Rows); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseCSV_InvalidUTF8(t *testing.T) {
	got, err := ParseCSV([]byte("name\nbad\xffbyte\n"))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if got.Rows[1][0] != "bad\uFFFDbyte" {
		t.Errorf("cell = %q", got.Rows[1][0])
	}
}

func TestParseHTML(t *testing.T) {
	page := `<html><body>
<table id="characteristics">
  <thead><tr><th>ID</th><th>Name</th></tr></thead>
  <tbody>
    <tr><td>chr-000001</td><td> Colour <br>name</td></tr>
    <tr><td></td><td></td></tr>
    <tr><td>chr-000002</td><td>Size<table><tr><td>inner</td></tr></table></td></tr>
  </tbody>
</table>
<table><caption>Options</caption><tr><td>opt-1</td></tr></table>
</body></html>`

	wb, err := ParseHTML([]byte(page))
	if err != nil {
		t.Fatalf("ParseHTML failed: %v", err)
	}
	if len(wb.Sheets) != 3 {
		t.Fatalf("Expected 3 tables, got %d", len(wb.Sheets))
	}
	chars, ok := wb.Sheet("characteristics")
	if !ok {
		t.Fatal("characteristics table missing")
	}
	want := [][]string{{"ID", "Name"}, {"chr-000001", "Colour name"}, {"chr-000002", "Size"}}
	if diff := cmp.Diff(want, chars.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if wb.Sheets[1].Name != "table-2" || wb.Sheets[2].Name != "Options" {
		t.Errorf("Unexpected names %q, %q", wb.Sheets[1].Name, wb.Sheets[2].Name)
	}
}

func TestParseHTML_NoTable(t *testing.T) {
	if _, err := ParseHTML([]byte("<p>nothing</p>")); !errors.Is(err, domain.ErrParse) {
		t.Errorf("Expected ErrParse, got %v", err)
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"id", "name"}); err != nil {
		t.Fatalf("SetSheetRow failed: %v", err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]any{"5", " Weight "}); err != nil {
		t.Fatalf("SetSheetRow failed: %v", err)
	}
	if _, err := f.NewSheet("Empty"); err != nil {
		t.Fatalf("NewSheet failed: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer failed: %v", err)
	}

	wb, err := Parse("upload.bin", buf.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(wb.Sheets) != 1 {
		t.Fatalf("Expected only the non-empty tab, got %d", len(wb.Sheets))
	}
	want := [][]string{{"id", "name"}, {"5", "Weight"}}
	if diff := cmp.Diff(want, wb.Sheets[0].Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse("empty.csv", []byte("  \n")); !errors.Is(err, domain.ErrParse) {
		t.Errorf("Expected ErrParse for empty input, got %v", err)
	}
	if _, err := Parse("broken.xlsx", []byte("not a zip")); !errors.Is(err, domain.ErrParse) {
		t.Errorf("Expected ErrParse for broken workbook, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		data     string
		want     Format
	}{
		{"a.XLSX", "", FormatXLSX},
		{"a.htm", "", FormatHTML},
		{"a.tsv", "<x>", FormatCSV},
		{"upload", "PK\x03\x04rest", FormatXLSX},
		{"upload", "  <table>", FormatHTML},
		{"upload", "id,name", FormatCSV},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.filename, []byte(tt.data)); got != tt.want {
			t.Errorf("DetectFormat(%q, %q) = %s, want %s", tt.filename, tt.data, got, tt.want)
		}
	}
}

func TestFindHeaderRow(t *testing.T) {
	rows := [][]string{
		{"Export of 2024-05-01"},
		{},
		{"id", "name", "unit"},
		{"id", "name", "unit", "extra"},
	}
	score := func(row []string) int {
		n := 0
		for _, c := range row {
			if c == "id" || c == "name" || c == "unit" {
				n++
			}
		}
		return n
	}
	if got := FindHeaderRow(rows, 0, score); got != 2 {
		t.Errorf("FindHeaderRow() = %d, want 2", got)
	}
	if got := FindHeaderRow(rows, 2, score); got != -1 {
		t.Errorf("FindHeaderRow() = %d, want -1", got)
	}
}
