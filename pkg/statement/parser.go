package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/passbooklabs/passbook/pkg/domain"
)

// xlsxMagic is the ZIP local file header every XLSX workbook starts with.
var xlsxMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// Parse reads a raw statement export and returns its transactions in file
// order. The content kind is sniffed: XLSX workbooks by magic bytes, then
// delimited text versus fixed-width text by the presence of the spec's
// delimiter. Binary content that is not a workbook fails with
// domain.ErrUnsupportedFile.
//
// Row handling is deliberately forgiving: header rows are skipped, and any
// row whose date or amounts do not convert is dropped rather than failing
// the whole statement.
func Parse(data []byte, spec *FormatSpec) ([]Transaction, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if bytes.HasPrefix(data, xlsxMagic) {
		return parseXLSX(data, spec)
	}
	if looksBinary(data) {
		return nil, fmt.Errorf("statement is not a workbook or text export: %w", domain.ErrUnsupportedFile)
	}

	if isDelimited(data, spec) {
		return parseDelimited(data, spec)
	}
	return parseFixedWidth(data, spec)
}

// looksBinary reports whether the head of data contains bytes that rule out
// a plain-text statement.
func looksBinary(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.IndexByte(head, 0x00) >= 0
}

// isDelimited checks the first non-blank line for at least two occurrences
// of the delimiter. Fixed-width exports align by spaces instead.
func isDelimited(data []byte, spec *FormatSpec) bool {
	delim := string(spec.delimiter())
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		return strings.Count(line, delim) >= 2
	}
	return false
}

// parseDelimited reads comma (or custom) separated rows.
func parseDelimited(data []byte, spec *FormatSpec) ([]Transaction, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = spec.delimiter()
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed line is dropped, matching the per-row tolerance of
			// the fixed-width reader.
			continue
		}
		rows = append(rows, rec)
	}
	return tableToTransactions(rows, spec), nil
}

// parseXLSX reads the first sheet of a workbook as a row table.
func parseXLSX(data []byte, spec *FormatSpec) ([]Transaction, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w: %v", domain.ErrUnsupportedFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets: %w", domain.ErrUnsupportedFile)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return tableToTransactions(rows, spec), nil
}

// tableToTransactions converts a row table (from CSV or XLSX) using the
// spec's field bindings. Column indexes come from the header row when one is
// present; otherwise columns are assumed to follow the canonical order
// date, narration, ref_no, value_date, withdrawal, deposit, balance.
func tableToTransactions(rows [][]string, spec *FormatSpec) []Transaction {
	idx := defaultColumnIndex()
	var txns []Transaction

	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if isHeaderRow(row, spec) {
			if m, ok := bindHeader(row, spec); ok {
				idx = m
			}
			continue
		}

		txn, ok := rowToTransaction(row, idx, spec.DateLayout)
		if !ok {
			continue
		}
		txns = append(txns, txn)
	}
	return txns
}

// columnIndex maps canonical fields to column positions; -1 means unbound.
type columnIndex map[string]int

func defaultColumnIndex() columnIndex {
	return columnIndex{
		FieldDate:       0,
		FieldNarration:  1,
		FieldRefNo:      2,
		FieldValueDate:  3,
		FieldWithdrawal: 4,
		FieldDeposit:    5,
		FieldBalance:    6,
	}
}

// isHeaderRow applies the spec's header-skip tokens to the joined row.
func isHeaderRow(row []string, spec *FormatSpec) bool {
	if len(spec.HeaderSkip) == 0 {
		return false
	}
	joined := strings.Join(row, " ")
	for _, tok := range spec.HeaderSkip {
		if !strings.Contains(joined, tok) {
			return false
		}
	}
	return true
}

// bindHeader resolves column positions from a header row using the spec's
// field bindings. It succeeds when at least the date column is found.
func bindHeader(row []string, spec *FormatSpec) (columnIndex, bool) {
	lookup := make(map[string]int, len(row))
	for i, cell := range row {
		lookup[strings.TrimSpace(cell)] = i
	}

	bind := func(header string) int {
		if header == "" {
			return -1
		}
		if i, ok := lookup[header]; ok {
			return i
		}
		return -1
	}

	idx := columnIndex{
		FieldDate:       bind(spec.Fields.Date),
		FieldNarration:  bind(spec.Fields.Narration),
		FieldRefNo:      bind(spec.Fields.RefNo),
		FieldValueDate:  bind(spec.Fields.ValueDate),
		FieldWithdrawal: bind(spec.Fields.Withdrawal),
		FieldDeposit:    bind(spec.Fields.Deposit),
		FieldBalance:    bind(spec.Fields.Balance),
	}
	return idx, idx[FieldDate] >= 0
}

// rowToTransaction converts one table row. Any conversion failure drops the
// row.
func rowToTransaction(row []string, idx columnIndex, layout string) (Transaction, bool) {
	cell := func(field string) string {
		i := idx[field]
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	date, err := time.Parse(layout, cell(FieldDate))
	if err != nil {
		return Transaction{}, false
	}
	debit, err := parseAmount(cell(FieldWithdrawal))
	if err != nil {
		return Transaction{}, false
	}
	credit, err := parseAmount(cell(FieldDeposit))
	if err != nil {
		return Transaction{}, false
	}
	balance, err := parseAmount(cell(FieldBalance))
	if err != nil {
		return Transaction{}, false
	}

	return Transaction{
		Date:      date,
		Narration: cell(FieldNarration),
		RefNo:     cell(FieldRefNo),
		ValueDate: cell(FieldValueDate),
		Debit:     debit,
		Credit:    credit,
		Balance:   balance,
	}, true
}

// parseFixedWidth reads text lines using the spec's rune spans.
func parseFixedWidth(data []byte, spec *FormatSpec) ([]Transaction, error) {
	var txns []Transaction

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if containsAll(line, spec.HeaderSkip) {
			continue
		}

		runes := []rune(line)
		cell := func(field string) string {
			for _, sp := range spec.Spans {
				if sp.Field != field {
					continue
				}
				start, end := sp.Start, sp.End
				if start >= len(runes) {
					return ""
				}
				if end <= 0 || end > len(runes) {
					end = len(runes)
				}
				return strings.TrimSpace(string(runes[start:end]))
			}
			return ""
		}

		date, err := time.Parse(spec.DateLayout, cell(FieldDate))
		if err != nil {
			continue
		}
		debit, err := parseAmount(cell(FieldWithdrawal))
		if err != nil {
			continue
		}
		credit, err := parseAmount(cell(FieldDeposit))
		if err != nil {
			continue
		}
		balance, err := parseAmount(cell(FieldBalance))
		if err != nil {
			continue
		}

		txns = append(txns, Transaction{
			Date:      date,
			Narration: cell(FieldNarration),
			RefNo:     cell(FieldRefNo),
			ValueDate: cell(FieldValueDate),
			Debit:     debit,
			Credit:    credit,
			Balance:   balance,
		})
	}
	return txns, nil
}

// parseAmount converts a statement amount cell. Thousands separators and
// inner spaces are stripped; an empty cell is zero.
func parseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// containsAll reports whether s contains every token. An empty token list
// never matches, so data rows survive specs without header markers.
func containsAll(s string, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if !strings.Contains(s, tok) {
			return false
		}
	}
	return true
}
