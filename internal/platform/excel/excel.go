// Package excel reads catalog import spreadsheets and writes the multi-sheet
// system report. Imports tolerate real-world files: the header row is located
// by scanning for known column names rather than assuming row 1, and currency
// cells accept symbols and both decimal conventions.
package excel

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrNoHeaderRow = errors.New("no header row found in the first sheet")
	ErrEmptySheet  = errors.New("workbook has no sheets")
)

// headerScanDepth limits how far down the sheet we look for the header row.
const headerScanDepth = 10

// Column maps a canonical field name to the substrings that identify its
// header cell, in any casing.
type Column struct {
	Name    string
	Matches []string
}

// Row is one imported record keyed by canonical column name. Missing cells
// are absent from the map.
type Row map[string]string

// ImportRows reads the first sheet and returns one Row per data line below
// the detected header. A row counts as the header when it matches more than
// half of the requested columns.
func ImportRows(r io.Reader, columns []Column) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	headerIdx, mapping := findHeader(rows, columns)
	if headerIdx < 0 {
		return nil, ErrNoHeaderRow
	}

	var out []Row
	for _, cells := range rows[headerIdx+1:] {
		rec := Row{}
		for col, name := range mapping {
			if col < len(cells) {
				if v := strings.TrimSpace(cells[col]); v != "" {
					rec[name] = v
				}
			}
		}
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out, nil
}

// findHeader returns the header row index and a cell-index to canonical-name
// mapping, or -1 when no candidate row matches enough columns.
func findHeader(rows [][]string, columns []Column) (int, map[int]string) {
	limit := len(rows)
	if limit > headerScanDepth {
		limit = headerScanDepth
	}
	for i := 0; i < limit; i++ {
		mapping := map[int]string{}
		for ci, cell := range rows[i] {
			lower := strings.ToLower(strings.TrimSpace(cell))
			if lower == "" {
				continue
			}
			for _, col := range columns {
				if _, taken := mapping[ci]; taken {
					break
				}
				for _, m := range col.Matches {
					if strings.Contains(lower, strings.ToLower(m)) {
						mapping[ci] = col.Name
						break
					}
				}
			}
		}
		if len(mapping)*2 > len(columns) {
			return i, mapping
		}
	}
	return -1, nil
}

// NormalizeCurrency parses a price cell. It strips currency symbols and
// thousands separators and accepts both "1,234.56" and "1.234,56".
func NormalizeCurrency(s string) (float64, error) {
	// A dot or comma only counts as a separator between digits; one that
	// trails a currency marker ("Bs. 45") is dropped with the marker.
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == '.' || r == ',':
			prevDigit := i > 0 && runes[i-1] >= '0' && runes[i-1] <= '9'
			nextDigit := i+1 < len(runes) && runes[i+1] >= '0' && runes[i+1] <= '9'
			if prevDigit && nextDigit {
				b.WriteRune(r)
			}
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, fmt.Errorf("no numeric value in %q", s)
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastComma > lastDot:
		// comma is the decimal separator
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse currency %q: %w", s, err)
	}
	return v, nil
}

// ReportSheet is one tab of the system report.
type ReportSheet struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

// WriteReport renders the sheets into a single workbook.
func WriteReport(sheets []ReportSheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		name := sheet.Name
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return nil, err
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return nil, err
			}
		}

		header := make([]interface{}, len(sheet.Headers))
		for j, h := range sheet.Headers {
			header[j] = h
		}
		if err := f.SetSheetRow(name, "A1", &header); err != nil {
			return nil, err
		}
		for ri, row := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, ri+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
