package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"unicode/utf8"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
)

// ParseCSV reads delimited text. Invalid UTF-8 is replaced, the delimiter
// is sniffed from the first line and ragged rows are allowed.
func ParseCSV(data []byte) (Sheet, error) {
	data = sanitizeUTF8(bytes.TrimPrefix(data, []byte(bom)))

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return Sheet{}, fmt.Errorf("ParseCSV: %v: %w", err, domain.ErrParse)
	}
	if len(records) == 0 {
		return Sheet{}, fmt.Errorf("ParseCSV: no rows: %w", domain.ErrParse)
	}
	for _, rec := range records {
		for i := range rec {
			rec[i] = CleanCell(rec[i])
		}
	}
	return Sheet{Rows: records}, nil
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab outside
// quotes on the first non-empty line.
func sniffDelimiter(data []byte) rune {
	line := data
	for len(line) > 0 {
		end := bytes.IndexByte(line, '\n')
		if end < 0 {
			end = len(line)
		}
		if first := bytes.TrimSpace(line[:end]); len(first) > 0 {
			line = first
			break
		}
		if end == len(line) {
			line = nil
			break
		}
		line = line[end+1:]
	}

	counts := map[rune]int{}
	quoted := false
	for _, r := range string(line) {
		switch {
		case r == '"':
			quoted = !quoted
		case !quoted && (r == ',' || r == ';' || r == '\t'):
			counts[r]++
		}
	}
	best := ','
	for _, r := range []rune{';', '\t'} {
		if counts[r] > counts[best] {
			best = r
		}
	}
	return best
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
