package roster

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestToSheet_Layout(t *testing.T) {
	s := Rebuild("math", cohort, students(), history()).ToSheet()

	require.Len(t, s.Header, 4)
	assert.Equal(t, HeaderEnrollment, s.Header[0])
	assert.Equal(t, HeaderName, s.Header[1])
	assert.Equal(t, "2026-03-01T09:00:00.000Z", s.Header[2])
	assert.Equal(t, []any{"E001", "Abe", 1, 0}, s.Rows[0])
}

func TestSheet_XLSXRoundTrip(t *testing.T) {
	s := Rebuild("math", cohort, students(), history()).ToSheet()
	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf, FormatXLSX))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	props, err := f.GetDocProps()
	require.NoError(t, err)
	assert.Equal(t, DocIdentifier, props.Identifier)
	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	header, rows, err := ReadGrid("math.xlsx", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, s.Header, header)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"E003", "Cid", "1", "0"}, rows[2])
}

func TestSheet_XLSXColumnWidths(t *testing.T) {
	s := Rebuild("math", cohort, students(), history()).ToSheet()
	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf, FormatXLSX))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	w, err := f.GetColWidth(SheetName, "B")
	require.NoError(t, err)
	assert.Equal(t, 18.0, w)
	w, err = f.GetColWidth(SheetName, "D")
	require.NoError(t, err)
	assert.Equal(t, 26.0, w)
}

func TestSheet_XLSXTooManyColumns(t *testing.T) {
	s := &Sheet{Header: make([]string, excelize.MaxColumns+1)}
	var buf bytes.Buffer
	assert.Error(t, s.Write(&buf, FormatXLSX))
}

func TestSheet_CSVRoundTrip(t *testing.T) {
	s := Rebuild("math", cohort, students(), history()).ToSheet()
	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf, FormatCSV))

	header, rows, err := ReadGrid("export.CSV", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, s.Header, header)
	assert.Equal(t, []string{"E002", "Bea", "0", "1"}, rows[1])
}

func TestSheet_UnknownFormat(t *testing.T) {
	err := (&Sheet{}).Write(&bytes.Buffer{}, "pdf")
	assert.ErrorIs(t, err, common.ErrBadRequest)
	assert.True(t, ValidFormat("csv"))
	assert.False(t, ValidFormat("pdf"))
}

func workbook(t *testing.T, build func(f *excelize.File)) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	build(f)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReadGrid_SheetSelection(t *testing.T) {
	soleSheet := workbook(t, func(f *excelize.File) {
		require.NoError(t, f.SetCellValue("Sheet1", "A1", "Enrollment"))
		require.NoError(t, f.SetCellValue("Sheet1", "A2", "E001"))
	})
	_, rows, err := ReadGrid("x.xlsx", soleSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	named := workbook(t, func(f *excelize.File) {
		_, err := f.NewSheet("Attendance")
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue("Sheet1", "A1", "junk"))
		require.NoError(t, f.SetCellValue("Attendance", "A1", "Enrollment"))
		require.NoError(t, f.SetCellValue("Attendance", "A2", "E007"))
	})
	_, rows, err = ReadGrid("x.xlsx", named)
	require.NoError(t, err)
	assert.Equal(t, "E007", rows[0][0])

	ambiguous := workbook(t, func(f *excelize.File) {
		_, err := f.NewSheet("Other")
		require.NoError(t, err)
	})
	_, _, err = ReadGrid("x.xlsx", ambiguous)
	assert.ErrorIs(t, err, common.ErrBadRequest)
}

func TestReadGrid_ForeignIdentifier(t *testing.T) {
	data := workbook(t, func(f *excelize.File) {
		require.NoError(t, f.SetDocProps(&excelize.DocProperties{Identifier: "ledger.export"}))
		require.NoError(t, f.SetCellValue("Sheet1", "A1", "Enrollment"))
		require.NoError(t, f.SetCellValue("Sheet1", "A2", "E001"))
	})
	_, _, err := ReadGrid("x.xlsx", data)
	assert.ErrorIs(t, err, common.ErrBadRequest)
}

func TestReadGrid_BadInput(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"not a workbook", "x.xlsx", []byte("plain text")},
		{"header only", "x.csv", []byte("Enrollment,Status\n")},
		{"empty csv", "x.csv", []byte("")},
		{"blank data rows", "x.csv", []byte("Enrollment,Status\n,\n , \n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadGrid(tt.file, tt.data)
			assert.ErrorIs(t, err, common.ErrBadRequest)
		})
	}
}
