/*
Package statement contains the bank statement domain: transaction parsing,
summary aggregation, monthly rollups, and the loan readiness score.

Parsing is driven by a FormatSpec, a declarative description of one bank's
statement export (date layout, column bindings for delimited input, rune
spans for fixed-width text). Specs can be compiled in (see Builtin) or
loaded from a provisioned pack store.

The analysis pipeline is pure: Parse turns raw bytes into transactions,
Analyze turns transactions into an Analysis. Neither touches the network or
the filesystem, which keeps the whole domain testable without fixtures
beyond byte slices.
*/
package statement
