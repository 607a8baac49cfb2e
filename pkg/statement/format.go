package statement

import "fmt"

// Canonical field names a FormatSpec can bind. Withdrawal maps to
// Transaction.Debit and Deposit to Transaction.Credit.
const (
	FieldDate       = "date"
	FieldNarration  = "narration"
	FieldRefNo      = "ref_no"
	FieldValueDate  = "value_date"
	FieldWithdrawal = "withdrawal"
	FieldDeposit    = "deposit"
	FieldBalance    = "balance"
)

// FieldBindings maps canonical fields to the header names of a delimited
// (CSV/XLSX) statement export. An empty binding means the column is absent.
type FieldBindings struct {
	Date       string `yaml:"date" json:"date" mapstructure:"date"`
	Narration  string `yaml:"narration" json:"narration" mapstructure:"narration"`
	RefNo      string `yaml:"ref_no" json:"ref_no" mapstructure:"ref_no"`
	ValueDate  string `yaml:"value_date" json:"value_date" mapstructure:"value_date"`
	Withdrawal string `yaml:"withdrawal" json:"withdrawal" mapstructure:"withdrawal"`
	Deposit    string `yaml:"deposit" json:"deposit" mapstructure:"deposit"`
	Balance    string `yaml:"balance" json:"balance" mapstructure:"balance"`
}

// Span binds a canonical field to a rune range of a fixed-width text line.
// End is exclusive; End <= 0 means "to end of line".
type Span struct {
	Field string `yaml:"field" json:"field" mapstructure:"field"`
	Start int    `yaml:"start" json:"start" mapstructure:"start"`
	End   int    `yaml:"end" json:"end" mapstructure:"end"`
}

// FormatSpec describes how to parse one bank's statement export.
// The same spec drives the delimited, XLSX, and fixed-width readers.
type FormatSpec struct {
	// Name is the pack name clients select with the "format" field.
	Name string `yaml:"name" json:"name" mapstructure:"name"`

	// DateLayout is the Go reference layout of the date column (e.g. "02/01/06").
	DateLayout string `yaml:"date_layout" json:"date_layout" mapstructure:"date_layout"`

	// HeaderSkip lists tokens that identify a header row. A row containing
	// every token is skipped.
	HeaderSkip []string `yaml:"header_skip" json:"header_skip" mapstructure:"header_skip"`

	// Delimiter separates columns in delimited input. Defaults to ",".
	Delimiter string `yaml:"delimiter,omitempty" json:"delimiter,omitempty" mapstructure:"delimiter"`

	// Fields binds canonical fields to delimited header names.
	Fields FieldBindings `yaml:"fields" json:"fields" mapstructure:"fields"`

	// Spans binds canonical fields to rune ranges of fixed-width lines.
	Spans []Span `yaml:"spans" json:"spans" mapstructure:"spans"`
}

// Validate reports whether the spec can drive a parse at all.
func (s *FormatSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("format spec has no name")
	}
	if s.DateLayout == "" {
		return fmt.Errorf("format %q has no date_layout", s.Name)
	}
	if s.Fields == (FieldBindings{}) && len(s.Spans) == 0 {
		return fmt.Errorf("format %q binds neither fields nor spans", s.Name)
	}
	for _, sp := range s.Spans {
		if sp.Start < 0 || (sp.End > 0 && sp.End <= sp.Start) {
			return fmt.Errorf("format %q: span %q has invalid range [%d,%d)", s.Name, sp.Field, sp.Start, sp.End)
		}
	}
	return nil
}

// delimiter returns the configured delimiter rune, defaulting to comma.
func (s *FormatSpec) delimiter() rune {
	if s.Delimiter == "" {
		return ','
	}
	return []rune(s.Delimiter)[0]
}
