// Package excel loads CSV and XLSX files into typed datasets.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"statsuite/domain/dataset"
	"statsuite/ports"
)

// File types
const (
	FileTypeCSV  = "csv"
	FileTypeXLSX = "xlsx"
)

// timeLayouts are tried in order when inferring datetime columns
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"01-02-06",
}

// DataReader reads Excel and CSV files
type DataReader struct {
	filePath string
	fileType string
	sheet    string
	name     string
}

var _ ports.DatasetReader = (*DataReader)(nil)

// Option configures a DataReader
type Option func(*DataReader)

// WithSheet selects the worksheet of an XLSX file; the first sheet is used otherwise
func WithSheet(sheet string) Option {
	return func(r *DataReader) { r.sheet = sheet }
}

// WithName overrides the dataset name, which defaults to the file's base name
func WithName(name string) Option {
	return func(r *DataReader) { r.name = name }
}

// NewDataReader creates a reader that picks the format from the file extension
func NewDataReader(filePath string, opts ...Option) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := FileTypeXLSX
	if ext == ".csv" || ext == ".txt" {
		fileType = FileTypeCSV
	}
	r := &DataReader{
		filePath: filePath,
		fileType: fileType,
		name:     strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read loads the file into a dataset with inferred column types
func (r *DataReader) Read(ctx context.Context) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case FileTypeCSV:
		rows, err = r.readCSVRows()
	case FileTypeXLSX:
		rows, err = r.readExcelRows()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
	if err != nil {
		return nil, err
	}
	return FromRecords(r.name, rows)
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()
	return readCSV(file)
}

// ReadCSV parses CSV text from an arbitrary stream
func ReadCSV(name string, in io.Reader) (*dataset.Dataset, error) {
	rows, err := readCSV(in)
	if err != nil {
		return nil, err
	}
	return FromRecords(name, rows)
}

func readCSV(in io.Reader) ([][]string, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return rows, nil
}

// FromRecords builds a dataset from a header row followed by data rows.
// Short rows are padded with nulls.
func FromRecords(name string, rows [][]string) (*dataset.Dataset, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("file must have at least a header row and one data row")
	}

	header := rows[0]
	cols := make([]*dataset.Column, len(header))
	for j, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", j+1)
		}
		cells := make([]string, len(rows)-1)
		for i, row := range rows[1:] {
			if j < len(row) {
				cells[i] = strings.TrimSpace(row[j])
			}
		}
		cols[j] = InferColumn(h, cells)
	}
	return dataset.New(name, cols...)
}

// InferColumn types a column of raw cells: numeric when every non-null cell
// parses as a number, datetime when every non-null cell parses as a time,
// categorical otherwise
func InferColumn(name string, cells []string) *dataset.Column {
	if nums, ok := asNumbers(cells); ok {
		return dataset.NewNumericColumn(name, nums)
	}
	if times, ok := asTimes(cells); ok {
		return dataset.NewDatetimeColumn(name, times)
	}
	cats := make([]string, len(cells))
	for i, c := range cells {
		if !isNull(c) {
			cats[i] = c
		}
	}
	return dataset.NewCategoricalColumn(name, cats)
}

func isNull(cell string) bool {
	v, ok := dataset.ParseNumber(cell)
	return ok && math.IsNaN(v)
}

func asNumbers(cells []string) ([]float64, bool) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, ok := dataset.ParseNumber(c)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func asTimes(cells []string) ([]time.Time, bool) {
	out := make([]time.Time, len(cells))
	seen := false
	for i, c := range cells {
		if isNull(c) {
			continue
		}
		t, ok := ParseTime(c)
		if !ok {
			return nil, false
		}
		out[i] = t
		seen = true
	}
	return out, seen
}

// ParseTime parses a cell with the first matching known layout
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
