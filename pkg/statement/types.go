package statement

import "time"

// Transaction is one statement row after parsing.
// Debit and Credit mirror the withdrawal/deposit columns of the source;
// Balance is the running balance after the row.
type Transaction struct {
	Date      time.Time `json:"date"`
	Narration string    `json:"narration"`
	RefNo     string    `json:"ref_no"`
	ValueDate string    `json:"value_date"`
	Debit     float64   `json:"debit"`
	Credit    float64   `json:"credit"`
	Balance   float64   `json:"balance"`
}

// Summary aggregates a full statement. All values are rounded to 2 decimals.
// AvgBalance is the mean of each calendar day's closing balance, not the mean
// of every row, so high-churn days do not skew the average.
type Summary struct {
	TotalIncome    float64 `json:"total_income"`
	TotalExpense   float64 `json:"total_expense"`
	NetFlow        float64 `json:"net_flow"`
	AvgBalance     float64 `json:"avg_balance"`
	OpeningBalance float64 `json:"opening_balance"`
	ClosingBalance float64 `json:"closing_balance"`
}

// MonthlySummary is the credit/debit rollup for one calendar month.
// Month is formatted YYYY-MM. Values are raw sums, not rounded.
type MonthlySummary struct {
	Month  string  `json:"month"`
	Credit float64 `json:"credit"`
	Debit  float64 `json:"debit"`
	Net    float64 `json:"net"`
}

// LoanAnalysis is the loan readiness score (0-100) and its inputs.
type LoanAnalysis struct {
	LoanScore         float64 `json:"loan_score"`
	Rating            string  `json:"rating"`
	AvgMonthlyIncome  float64 `json:"avg_monthly_income"`
	AvgMonthlyExpense float64 `json:"avg_monthly_expense"`
	MonthlySurplus    float64 `json:"monthly_surplus"`
}

// Analysis is the full result for one statement. Its JSON shape is the wire
// contract of the analyzer's /analyze endpoint; Transactions are excluded
// from the JSON body and surface only in the Excel export.
type Analysis struct {
	Transactions      []Transaction    `json:"-"`
	Summary           Summary          `json:"summary"`
	Loan              LoanAnalysis     `json:"loan_analysis"`
	Monthly           []MonthlySummary `json:"monthly_summary"`
	TotalTransactions int              `json:"total_transactions"`
}
