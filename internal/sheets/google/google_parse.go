package google

import (
	"fmt"
	"time"

	"gumball/internal/core"
)

// ledgerHeader is the first row of the ledger sheet; eventRow must match its order.
var ledgerHeader = []any{"ID", "UUID", "Time", "Kind", "Item", "Amount", "Balance", "Reason"}

// ledgerColumns is the A1 column span covered by ledgerHeader.
const ledgerColumns = "A:H"

// eventRow converts a ledger event into sheet cell values.
// Amounts are written as dollar strings so USER_ENTERED parses them as currency.
// Item and Reason echo client input, so every text cell goes through literal.
func eventRow(e core.Event) []any {
	return []any{
		e.ID,
		literal(e.UUID),
		e.CreatedAt.UTC().Format(time.RFC3339),
		literal(string(e.Kind)),
		literal(e.Item),
		dollars(e.Amount),
		dollars(e.Balance),
		literal(e.Reason),
	}
}

// literal keeps USER_ENTERED from evaluating s as a formula. A leading
// apostrophe makes Sheets store the rest as plain text and is not displayed.
func literal(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '\'':
		return "'" + s
	}
	return s
}

func dollars(c core.Cents) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}

// isHeader reports whether a sheet row already holds the ledger header.
func isHeader(row []any) bool {
	if len(row) < len(ledgerHeader) {
		return false
	}
	for i, h := range ledgerHeader {
		if fmt.Sprint(row[i]) != h {
			return false
		}
	}
	return true
}
