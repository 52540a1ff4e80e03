package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNoHeader        = errors.New("file has no header row")
	ErrInvalidFile     = errors.New("file could not be read")
)

// Table is a parsed upload: normalized column names and the string cells
// of every non-blank data row.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Records returns the rows keyed by column.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

// Extension returns the lower-cased extension of name if it is accepted.
func Extension(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv", ".xlsx", ".xls":
		return ext, nil
	default:
		return ext, fmt.Errorf("%w %q: please upload a CSV or Excel (.xlsx, .xls) file", ErrUnsupportedType, ext)
	}
}

// Parse reads a .csv, .xlsx or .xls file.
func Parse(name string, data []byte) (*Table, error) {
	ext, err := Extension(name)
	if err != nil {
		return nil, err
	}
	var raw [][]string
	switch ext {
	case ".csv":
		raw, err = readCSV(data)
	case ".xlsx":
		raw, err = readXLSX(data)
	default:
		raw, err = readXLS(data)
	}
	if err != nil {
		return nil, err
	}
	return buildTable(raw)
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: invalid csv: %v", ErrInvalidFile, err)
		}
		rows = append(rows, rec)
	}
}

// readXLSX reads the first sheet of the workbook.
func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid xlsx: %v", ErrInvalidFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// readXLS reads the first sheet of a BIFF (Excel 97-2003) workbook.
func readXLS(data []byte) (rows [][]string, err error) {
	defer func() {
		// the BIFF decoder panics on some truncated records
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("%w: invalid xls: %v", ErrInvalidFile, r)
		}
	}()
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: invalid xls: %v", ErrInvalidFile, err)
	}
	if wb.NumSheets() == 0 {
		return nil, ErrNoHeader
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrNoHeader
	}
	return sheetRows(int(sheet.MaxRow), func(i int) []string {
		row := sheet.Row(i)
		if row == nil {
			return nil
		}
		cells := make([]string, row.LastCol())
		for c := max(row.FirstCol(), 0); c < len(cells); c++ {
			cells[c] = row.Col(c)
		}
		return cells
	}), nil
}

// sheetRows collects rows 0..maxRow; missing rows are nil.
func sheetRows(maxRow int, row func(int) []string) [][]string {
	out := make([][]string, 0, maxRow+1)
	for i := 0; i <= maxRow; i++ {
		out = append(out, row(i))
	}
	return out
}

func buildTable(raw [][]string) (*Table, error) {
	start := 0
	for start < len(raw) && blank(raw[start]) {
		start++
	}
	if start == len(raw) {
		return nil, ErrNoHeader
	}
	header := raw[start]
	t := &Table{Columns: NormalizeColumns(header)}
	for _, row := range raw[start+1:] {
		if blank(row) {
			continue
		}
		cells := make([]string, len(t.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = strings.TrimSpace(row[i])
			}
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
