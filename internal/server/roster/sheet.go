package roster

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/xuri/excelize/v2"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// Workbook contract shared by export and import.
const (
	SheetName        = "Attendance"
	DocIdentifier    = "rollkeeper.roster"
	DocVersion       = "1"
	HeaderEnrollment = "Enrollment No"
	HeaderName       = "Student Name"
)

// Sheet is a rectangular grid with a header line.
type Sheet struct {
	Title  string
	Header []string
	Rows   [][]any
}

// ToSheet lays the table out as [Enrollment No, Student Name, labels...].
func (t *Table) ToSheet() *Sheet {
	header := make([]string, 0, 2+len(t.Columns))
	header = append(header, HeaderEnrollment, HeaderName)
	for _, c := range t.Columns {
		header = append(header, c.Label)
	}

	rows := make([][]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		line := make([]any, 0, 2+len(r.Cells))
		line = append(line, r.EnrollmentNo, r.Name)
		for _, v := range r.Cells {
			line = append(line, v)
		}
		rows = append(rows, line)
	}
	return &Sheet{Title: t.SubjectID, Header: header, Rows: rows}
}

// ValidFormat reports whether f is a supported export format.
func ValidFormat(f string) bool {
	return f == FormatXLSX || f == FormatCSV
}

// Write renders s in the requested format.
func (s *Sheet) Write(w io.Writer, format string) error {
	switch format {
	case FormatXLSX:
		return s.writeXLSX(w)
	case FormatCSV:
		return s.writeCSV(w)
	default:
		return fmt.Errorf("%w: unknown format %q", common.ErrBadRequest, format)
	}
}

func (s *Sheet) writeXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Identifier: DocIdentifier,
		Version:    DocVersion,
		Title:      s.Title,
	}); err != nil {
		return err
	}

	header := make([]any, len(s.Header))
	for i, h := range s.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}
	for i, row := range s.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(SheetName, cell, &r); err != nil {
			return err
		}
	}

	if len(s.Header) > 0 {
		last, err := excelize.ColumnNumberToName(len(s.Header))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, "A", "B", 18); err != nil {
			return err
		}
		if len(s.Header) > 2 {
			if err := f.SetColWidth(SheetName, "C", last, 26); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}

func (s *Sheet) writeCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header); err != nil {
		return err
	}
	for _, row := range s.Rows {
		line := make([]string, len(row))
		for i, v := range row {
			line[i] = formatCell(v)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// ReadGrid parses an uploaded workbook or CSV into a header and data rows.
// CSV is chosen by the .csv file extension.
func ReadGrid(fileName string, data []byte) ([]string, [][]string, error) {
	var (
		grid [][]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(fileName), ".csv") {
		grid, err = readCSV(data)
	} else {
		grid, err = readXLSX(data)
	}
	if err != nil {
		return nil, nil, err
	}

	if len(grid) == 0 || isBlank(grid[0]) {
		return nil, nil, fmt.Errorf("%w: sheet has no header row", common.ErrBadRequest)
	}
	header := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		header[i] = strings.TrimSpace(h)
	}

	var rows [][]string
	for _, r := range grid[1:] {
		if !isBlank(r) {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: sheet has no data rows", common.ErrBadRequest)
	}
	return header, rows, nil
}

func isBlank(r []string) bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	grid, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot parse csv: %v", common.ErrBadRequest, err)
	}
	return grid, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot parse workbook: %v", common.ErrBadRequest, err)
	}
	defer f.Close()

	if props, err := f.GetDocProps(); err == nil && props.Identifier != "" {
		if props.Identifier != DocIdentifier {
			return nil, fmt.Errorf("%w: workbook identifier %q is not a roster", common.ErrBadRequest, props.Identifier)
		}
		if props.Version != "" && props.Version != DocVersion {
			return nil, fmt.Errorf("%w: unsupported roster version %q", common.ErrBadRequest, props.Version)
		}
	}

	sheet, err := pickSheet(f.GetSheetList())
	if err != nil {
		return nil, err
	}
	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read sheet %q: %v", common.ErrBadRequest, sheet, err)
	}
	return grid, nil
}

// pickSheet selects the Attendance sheet, or the only sheet of the workbook.
func pickSheet(names []string) (string, error) {
	for _, n := range names {
		if strings.EqualFold(n, SheetName) {
			return n, nil
		}
	}
	switch len(names) {
	case 0:
		return "", fmt.Errorf("%w: workbook has no sheets", common.ErrBadRequest)
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("%w: workbook has %d sheets and none is named %q", common.ErrBadRequest, len(names), SheetName)
	}
}
