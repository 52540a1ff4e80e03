package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestNormalizeColumns(t *testing.T) {
	got := NormalizeColumns([]string{" Item Name ", "Unit Price ($)", "", "item name", "ID", "Vendor--Code", "   "})
	assert.Equal(t, []string{"item_name", "unit_price", "column_3", "item_name_2", "id_2", "vendor_code", "column_7"}, got)
}

func TestParseCSV(t *testing.T) {
	data := []byte("\xef\xbb\xbfItem,Price,Vendor\n\nGloves,450,MedSupply Co\n ,, \nIV Bags,275.5\n")
	table, err := Parse("orders.CSV", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"item", "price", "vendor"}, table.Columns)
	require.Len(t, table.Rows, 2)

	recs := table.Records()
	assert.Equal(t, map[string]string{"item": "IV Bags", "price": "275.5", "vendor": ""}, recs[1])
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Department", "Total Cost"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Surgery", 640.25}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	table, err := Parse("q1.xlsx", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"department", "total_cost"}, table.Columns)
	assert.Equal(t, [][]string{{"Surgery", "640.25"}}, table.Rows)
}

func TestParseRejects(t *testing.T) {
	_, err := Parse("orders.pdf", []byte("%PDF"))
	assert.True(t, errors.Is(err, ErrUnsupportedType))

	_, err = Parse("old.xls", []byte{0xd0, 0xcf})
	assert.True(t, errors.Is(err, ErrInvalidFile))

	_, err = Parse("empty.csv", []byte("\n \n"))
	assert.True(t, errors.Is(err, ErrNoHeader))
}

func TestExtensionAcceptsLegacyExcel(t *testing.T) {
	for _, name := range []string{"orders.xls", "ORDERS.XLS", "q1.Xlsx", "a.csv"} {
		_, err := Extension(name)
		assert.NoError(t, err, name)
	}
}

func TestSheetRowsBuildTable(t *testing.T) {
	cells := map[int][]string{
		1: {"Item Name", "", "Unit Price"},
		2: {"Gloves", "", " 12.5 "},
		4: {"", "", ""},
		5: {"Masks"},
	}
	raw := sheetRows(5, func(i int) []string { return cells[i] })
	require.Len(t, raw, 6)
	assert.Nil(t, raw[0])

	table, err := buildTable(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"item_name", "column_2", "unit_price"}, table.Columns)
	assert.Equal(t, [][]string{{"Gloves", "", "12.5"}, {"Masks", "", ""}}, table.Rows)
}

func TestParseXLSRejectsGarbage(t *testing.T) {
	_, err := Parse("orders.xls", []byte("item,price\nGloves,450\n"))
	assert.ErrorIs(t, err, ErrInvalidFile)
}
