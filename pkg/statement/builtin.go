package statement

// Builtin returns the format specs compiled into the binary. Provisioned
// packs layer on top of these; a provisioned pack with the same name wins.
func Builtin() []*FormatSpec {
	return []*FormatSpec{hdfc()}
}

// hdfc is the default format: HDFC statement exports with DD/MM/YY dates.
// The spans mirror the column geometry of the bank's printable statement.
func hdfc() *FormatSpec {
	return &FormatSpec{
		Name:       "hdfc",
		DateLayout: "02/01/06",
		HeaderSkip: []string{"Date", "Narration"},
		Fields: FieldBindings{
			Date:       "Date",
			Narration:  "Narration",
			RefNo:      "Chq./Ref.No.",
			ValueDate:  "Value Dt",
			Withdrawal: "Withdrawal Amt.",
			Deposit:    "Deposit Amt.",
			Balance:    "Closing Balance",
		},
		Spans: []Span{
			{Field: FieldDate, Start: 0, End: 9},
			{Field: FieldNarration, Start: 9, End: 38},
			{Field: FieldRefNo, Start: 38, End: 51},
			{Field: FieldValueDate, Start: 51, End: 60},
			{Field: FieldWithdrawal, Start: 60, End: 72},
			{Field: FieldDeposit, Start: 72, End: 85},
			{Field: FieldBalance, Start: 85, End: 0},
		},
	}
}
