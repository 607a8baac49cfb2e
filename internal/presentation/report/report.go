// Package report renders a statement analysis for a terminal: markdown for
// plain output, glamour for TTYs.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/passbooklabs/passbook/pkg/statement"
)

// Report carries everything the terminal report shows.
type Report struct {
	// Source is the statement path as the user gave it.
	Source string

	// Format is the pack the statement was parsed with.
	Format string

	Analysis *statement.Analysis
}

// Markdown renders the report as a markdown document.
func Markdown(r Report) string {
	a := r.Analysis
	var b strings.Builder

	fmt.Fprintf(&b, "# Statement Analysis\n\n")
	fmt.Fprintf(&b, "`%s` parsed with the `%s` format: %d transactions.\n\n",
		r.Source, r.Format, a.TotalTransactions)

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Total income | %.2f |\n", a.Summary.TotalIncome)
	fmt.Fprintf(&b, "| Total expense | %.2f |\n", a.Summary.TotalExpense)
	fmt.Fprintf(&b, "| Net flow | %.2f |\n", a.Summary.NetFlow)
	fmt.Fprintf(&b, "| Average daily balance | %.2f |\n", a.Summary.AvgBalance)
	fmt.Fprintf(&b, "| Opening balance | %.2f |\n", a.Summary.OpeningBalance)
	fmt.Fprintf(&b, "| Closing balance | %.2f |\n\n", a.Summary.ClosingBalance)

	if len(a.Monthly) > 0 {
		fmt.Fprintf(&b, "## Monthly\n\n")
		fmt.Fprintf(&b, "| Month | Credit | Debit | Net |\n|---|---:|---:|---:|\n")
		for _, m := range a.Monthly {
			fmt.Fprintf(&b, "| %s | %.2f | %.2f | %.2f |\n", m.Month, m.Credit, m.Debit, m.Net)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Loan Readiness\n\n")
	fmt.Fprintf(&b, "**%.0f/100 (%s)**\n\n", a.Loan.LoanScore, a.Loan.Rating)
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Average monthly income | %.2f |\n", a.Loan.AvgMonthlyIncome)
	fmt.Fprintf(&b, "| Average monthly expense | %.2f |\n", a.Loan.AvgMonthlyExpense)
	fmt.Fprintf(&b, "| Monthly surplus | %.2f |\n", a.Loan.MonthlySurplus)

	return b.String()
}

// Render returns the terminal form of the report. pretty selects glamour
// rendering with a styled verdict line; any glamour failure falls back to the
// raw markdown.
func Render(r Report, pretty bool) string {
	md := Markdown(r)
	if !pretty {
		return md
	}

	tr, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return md
	}
	out, err := tr.Render(md)
	if err != nil {
		return md
	}
	return out + fmt.Sprintf("  Loan readiness: %s\n\n", RatingStyle(r.Analysis.Loan.Rating))
}
