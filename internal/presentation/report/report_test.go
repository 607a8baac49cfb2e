package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbooklabs/passbook/pkg/statement"
)

func sampleReport(t *testing.T) Report {
	t.Helper()
	txns := []statement.Transaction{
		{Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Narration: "SALARY", Credit: 50000, Balance: 75000},
		{Date: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), Narration: "RENT", Debit: 15000, Balance: 60000},
	}
	a, err := statement.Analyze(txns)
	require.NoError(t, err)
	return Report{Source: "statement.csv", Format: "hdfc", Analysis: a}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleReport(t))

	assert.Contains(t, md, "# Statement Analysis")
	assert.Contains(t, md, "`statement.csv` parsed with the `hdfc` format: 2 transactions.")
	assert.Contains(t, md, "| Total income | 50000.00 |")
	assert.Contains(t, md, "| Total expense | 15000.00 |")
	assert.Contains(t, md, "| 2026-03 | 50000.00 | 15000.00 | 35000.00 |")
	assert.Contains(t, md, "## Loan Readiness")
}

func TestRenderPlainIsMarkdown(t *testing.T) {
	r := sampleReport(t)
	assert.Equal(t, Markdown(r), Render(r, false))
}

func TestRenderPrettyKeepsContent(t *testing.T) {
	out := Render(sampleReport(t), true)

	assert.NotEmpty(t, out)
	assert.Contains(t, out, "Total income")
}

func TestBanner(t *testing.T) {
	b := Banner()
	assert.True(t, strings.HasPrefix(b, "\n"))
	assert.Contains(t, b, "_ __")
}

func TestRatingStyle(t *testing.T) {
	assert.NotEmpty(t, RatingStyle("Strong"))
	assert.Equal(t, "unrated", RatingStyle("unrated"), "unknown ratings pass through unstyled")
}
