package statement

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Workbook sheet names, in workbook order.
const (
	SheetTransactions = "Transactions"
	SheetSummary      = "Summary"
	SheetMonthly      = "Monthly"
	SheetLoan         = "Loan Analysis"
)

// exportDateLayout renders transaction dates in the workbook as DD-MM-YYYY.
const exportDateLayout = "02-01-2006"

// Workbook renders an analysis as a four-sheet XLSX workbook: the raw
// transactions, the summary metrics, the monthly rollup, and the loan
// readiness breakdown. The caller owns closing the returned file.
func Workbook(a *Analysis) (*excelize.File, error) {
	f := excelize.NewFile()
	w := &sheetWriter{f: f}

	if err := f.SetSheetName(f.GetSheetName(0), SheetTransactions); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	w.row(SheetTransactions, 1, "date", "narration", "ref_no", "value_date", "debit", "credit", "balance", "month")
	for i, t := range a.Transactions {
		w.row(SheetTransactions, i+2,
			t.Date.Format(exportDateLayout),
			t.Narration,
			t.RefNo,
			t.ValueDate,
			t.Debit,
			t.Credit,
			t.Balance,
			t.Date.Format("2006-01"),
		)
	}

	w.sheet(SheetSummary)
	w.row(SheetSummary, 1, "Metric", "Value")
	w.row(SheetSummary, 2, "total_income", a.Summary.TotalIncome)
	w.row(SheetSummary, 3, "total_expense", a.Summary.TotalExpense)
	w.row(SheetSummary, 4, "net_flow", a.Summary.NetFlow)
	w.row(SheetSummary, 5, "avg_balance", a.Summary.AvgBalance)
	w.row(SheetSummary, 6, "opening_balance", a.Summary.OpeningBalance)
	w.row(SheetSummary, 7, "closing_balance", a.Summary.ClosingBalance)

	w.sheet(SheetMonthly)
	w.row(SheetMonthly, 1, "month", "credit", "debit", "net")
	for i, m := range a.Monthly {
		w.row(SheetMonthly, i+2, m.Month, m.Credit, m.Debit, m.Net)
	}

	w.sheet(SheetLoan)
	w.row(SheetLoan, 1, "Metric", "Value")
	w.row(SheetLoan, 2, "loan_score", a.Loan.LoanScore)
	w.row(SheetLoan, 3, "rating", a.Loan.Rating)
	w.row(SheetLoan, 4, "avg_monthly_income", a.Loan.AvgMonthlyIncome)
	w.row(SheetLoan, 5, "avg_monthly_expense", a.Loan.AvgMonthlyExpense)
	w.row(SheetLoan, 6, "monthly_surplus", a.Loan.MonthlySurplus)

	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	return f, nil
}

// sheetWriter accumulates the first excelize error so the export reads as a
// flat sequence of writes.
type sheetWriter struct {
	f   *excelize.File
	err error
}

func (w *sheetWriter) sheet(name string) {
	if w.err != nil {
		return
	}
	if _, err := w.f.NewSheet(name); err != nil {
		w.err = fmt.Errorf("create sheet %q: %w", name, err)
	}
}

func (w *sheetWriter) row(sheet string, row int, values ...any) {
	if w.err != nil {
		return
	}
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			w.err = err
			return
		}
		if err := w.f.SetCellValue(sheet, cell, v); err != nil {
			w.err = fmt.Errorf("write %s!%s: %w", sheet, cell, err)
			return
		}
	}
}
