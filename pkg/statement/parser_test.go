package statement

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/passbooklabs/passbook/pkg/domain"
)

func hdfcSpec(t *testing.T) *FormatSpec {
	t.Helper()
	for _, s := range Builtin() {
		if s.Name == "hdfc" {
			return s
		}
	}
	t.Fatal("builtin hdfc spec missing")
	return nil
}

const csvStatement = `Date,Narration,Chq./Ref.No.,Value Dt,Withdrawal Amt.,Deposit Amt.,Closing Balance
01/01/24,SALARY JAN,NEFT-991,01/01/24,,"50,000.00","60,000.00"
05/01/24,RENT TRANSFER,CHQ-1021,05/01/24,"20,000.00",,"40,000.00"
this line is noise and must be dropped
01/02/24,SALARY FEB,NEFT-992,01/02/24,,"52,000.00","92,000.00"
`

func TestParse_CSV(t *testing.T) {
	txns, err := Parse([]byte(csvStatement), hdfcSpec(t))
	require.NoError(t, err)
	require.Len(t, txns, 3)

	first := txns[0]
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, "SALARY JAN", first.Narration)
	assert.Equal(t, "NEFT-991", first.RefNo)
	assert.Equal(t, 0.0, first.Debit)
	assert.Equal(t, 50000.0, first.Credit)
	assert.Equal(t, 60000.0, first.Balance)

	assert.Equal(t, 20000.0, txns[1].Debit, "thousands separators must be stripped")
	assert.Equal(t, 40000.0, txns[1].Balance)
}

func TestParse_CSVWithoutHeaderUsesCanonicalOrder(t *testing.T) {
	// No header row: columns fall back to the canonical order.
	raw := "01/01/24,SALARY,REF1,01/01/24,,1000.00,5000.00\n"
	txns, err := Parse([]byte(raw), hdfcSpec(t))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, 1000.0, txns[0].Credit)
	assert.Equal(t, 5000.0, txns[0].Balance)
}

func fixedLine(date, narr, ref, val, wd, dep, bal string) string {
	pad := func(s string, w int) string {
		if len(s) >= w {
			return s[:w]
		}
		return s + strings.Repeat(" ", w-len(s))
	}
	// Widths follow the builtin hdfc spans: 9/29/13/9/12/13/rest.
	return pad(date, 9) + pad(narr, 29) + pad(ref, 13) + pad(val, 9) + pad(wd, 12) + pad(dep, 13) + bal
}

func TestParse_FixedWidth(t *testing.T) {
	lines := []string{
		fixedLine("Date", "Narration", "Chq./Ref.No.", "Value Dt", "Withdrawal", "Deposit", "Balance"),
		fixedLine("01/01/24", "SALARY JAN", "NEFT-991", "01/01/24", "", "50,000.00", "60,000.00"),
		fixedLine("05/01/24", "RENT TRANSFER", "CHQ-1021", "05/01/24", "20,000.00", "", "40,000.00"),
		"STATEMENT SUMMARY FOLLOWS", // narrative footer, no date
	}
	txns, err := Parse([]byte(strings.Join(lines, "\n")), hdfcSpec(t))
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, "SALARY JAN", txns[0].Narration)
	assert.Equal(t, 50000.0, txns[0].Credit)
	assert.Equal(t, "CHQ-1021", txns[1].RefNo)
	assert.Equal(t, 20000.0, txns[1].Debit)
}

func TestParse_FixedWidthAgreesWithCSV(t *testing.T) {
	spec := hdfcSpec(t)

	fromCSV, err := Parse([]byte(csvStatement), spec)
	require.NoError(t, err)

	lines := []string{
		fixedLine("01/01/24", "SALARY JAN", "NEFT-991", "01/01/24", "", "50,000.00", "60,000.00"),
		fixedLine("05/01/24", "RENT TRANSFER", "CHQ-1021", "05/01/24", "20,000.00", "", "40,000.00"),
		fixedLine("01/02/24", "SALARY FEB", "NEFT-992", "01/02/24", "", "52,000.00", "92,000.00"),
	}
	fromText, err := Parse([]byte(strings.Join(lines, "\n")), spec)
	require.NoError(t, err)

	require.Equal(t, len(fromCSV), len(fromText))
	for i := range fromCSV {
		assert.Equal(t, fromCSV[i], fromText[i], "row %d", i)
	}
}

func TestParse_XLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]any{
		{"Date", "Narration", "Chq./Ref.No.", "Value Dt", "Withdrawal Amt.", "Deposit Amt.", "Closing Balance"},
		{"01/01/24", "SALARY JAN", "NEFT-991", "01/01/24", "", "50,000.00", "60,000.00"},
		{"05/01/24", "RENT TRANSFER", "CHQ-1021", "05/01/24", "20,000.00", "", "40,000.00"},
	}
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	txns, err := Parse(buf.Bytes(), hdfcSpec(t))
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, 50000.0, txns[0].Credit)
	assert.Equal(t, 20000.0, txns[1].Debit)
}

func TestParse_BinaryRejected(t *testing.T) {
	junk := []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0x01, 0x02} // PDF-ish header with NULs
	_, err := Parse(junk, hdfcSpec(t))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFile)
}

func TestParse_InvalidSpec(t *testing.T) {
	_, err := Parse([]byte("01/01/24,x,y"), &FormatSpec{Name: "broken"})
	assert.Error(t, err)
}

func TestFormatSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    FormatSpec
		wantErr bool
	}{
		{"builtin hdfc", *hdfcSpec(t), false},
		{"missing name", FormatSpec{DateLayout: "02/01/06", Spans: []Span{{Field: FieldDate, Start: 0, End: 9}}}, true},
		{"missing layout", FormatSpec{Name: "x", Spans: []Span{{Field: FieldDate, Start: 0, End: 9}}}, true},
		{"no bindings", FormatSpec{Name: "x", DateLayout: "02/01/06"}, true},
		{"inverted span", FormatSpec{Name: "x", DateLayout: "02/01/06", Spans: []Span{{Field: FieldDate, Start: 9, End: 3}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
