package statement

import (
	"math"
	"sort"

	"github.com/passbooklabs/passbook/pkg/domain"
)

// Analyze computes the full analysis for a parsed statement. Transactions
// are sorted by date (stable, so same-day rows keep file order) before any
// aggregation. Zero transactions fail with domain.ErrNoTransactions.
func Analyze(txns []Transaction) (*Analysis, error) {
	if len(txns) == 0 {
		return nil, domain.ErrNoTransactions
	}

	sorted := make([]Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	summary := buildSummary(sorted)
	monthly := buildMonthly(sorted)
	loan := buildLoan(summary, monthly)

	return &Analysis{
		Transactions:      sorted,
		Summary:           summary,
		Monthly:           monthly,
		Loan:              loan,
		TotalTransactions: len(sorted),
	}, nil
}

// buildSummary aggregates totals and reconstructs the opening balance from
// the first row: a credit row was preceded by balance-credit, a debit row by
// balance+debit.
func buildSummary(txns []Transaction) Summary {
	var income, expense float64
	for _, t := range txns {
		income += t.Credit
		expense += t.Debit
	}

	// Daily closing balance: the last row of each calendar day wins.
	daily := make(map[string]float64)
	for _, t := range txns {
		daily[t.Date.Format("2006-01-02")] = t.Balance
	}
	var balanceSum float64
	for _, b := range daily {
		balanceSum += b
	}
	avgBalance := balanceSum / float64(len(daily))

	first, last := txns[0], txns[len(txns)-1]
	opening := first.Balance + first.Debit
	if first.Credit > 0 {
		opening = first.Balance - first.Credit
	}

	return Summary{
		TotalIncome:    round2(income),
		TotalExpense:   round2(expense),
		NetFlow:        round2(income - expense),
		AvgBalance:     round2(avgBalance),
		OpeningBalance: round2(opening),
		ClosingBalance: round2(last.Balance),
	}
}

// buildMonthly rolls credits and debits up per calendar month, oldest first.
func buildMonthly(txns []Transaction) []MonthlySummary {
	byMonth := make(map[string]*MonthlySummary)
	for _, t := range txns {
		key := t.Date.Format("2006-01")
		m, ok := byMonth[key]
		if !ok {
			m = &MonthlySummary{Month: key}
			byMonth[key] = m
		}
		m.Credit += t.Credit
		m.Debit += t.Debit
	}

	keys := make([]string, 0, len(byMonth))
	for k := range byMonth {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	monthly := make([]MonthlySummary, 0, len(keys))
	for _, k := range keys {
		m := byMonth[k]
		m.Net = m.Credit - m.Debit
		monthly = append(monthly, *m)
	}
	return monthly
}

// buildLoan scores loan readiness out of 100:
//
//	surplus health   40/25/5
//	income stability 30/15/5
//	balance health   30/15/5
//
// Stability is the coefficient of variation of monthly credits (sample
// standard deviation over mean). With fewer than two months the deviation is
// undefined (NaN), every threshold comparison fails, and the band bottoms
// out at 5: a single month of history is never "stable".
func buildLoan(summary Summary, monthly []MonthlySummary) LoanAnalysis {
	months := len(monthly)

	var avgIncome, avgExpense float64
	if months > 0 {
		var credit, debit float64
		for _, m := range monthly {
			credit += m.Credit
			debit += m.Debit
		}
		avgIncome = credit / float64(months)
		avgExpense = debit / float64(months)
	}
	surplus := avgIncome - avgExpense

	surplusScore := 5.0
	switch {
	case surplus > avgIncome*0.25:
		surplusScore = 40
	case surplus > 0:
		surplusScore = 25
	}

	variation := 1.0
	if avgIncome != 0 {
		variation = sampleStd(monthly) / avgIncome
	}
	stabilityScore := 5.0
	switch {
	case variation < 0.25:
		stabilityScore = 30
	case variation < 0.5:
		stabilityScore = 15
	}

	balanceScore := 5.0
	switch {
	case summary.ClosingBalance > avgExpense:
		balanceScore = 30
	case summary.ClosingBalance > avgExpense*0.5:
		balanceScore = 15
	}

	total := surplusScore + stabilityScore + balanceScore

	rating := "High Risk"
	switch {
	case total >= 80:
		rating = "Strong"
	case total >= 60:
		rating = "Moderate"
	case total >= 40:
		rating = "Risky"
	}

	return LoanAnalysis{
		LoanScore:         round2(total),
		Rating:            rating,
		AvgMonthlyIncome:  round2(avgIncome),
		AvgMonthlyExpense: round2(avgExpense),
		MonthlySurplus:    round2(surplus),
	}
}

// sampleStd is the sample standard deviation (n-1 divisor) of the monthly
// credit totals. NaN for fewer than two months.
func sampleStd(monthly []MonthlySummary) float64 {
	n := len(monthly)
	if n < 2 {
		return math.NaN()
	}
	var sum float64
	for _, m := range monthly {
		sum += m.Credit
	}
	mean := sum / float64(n)

	var sq float64
	for _, m := range monthly {
		d := m.Credit - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}

// round2 rounds half away from zero to 2 decimals.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
