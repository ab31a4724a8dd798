package csv

// convert.go turns raw cells into typed values.
//
// Cells are trimmed before conversion. Conversions are strict: anything that
// does not parse cleanly is an error, because a malformed record aborts the
// whole run rather than being guessed at.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultAmountPlaces is the number of fractional digits amounts are kept at.
const DefaultAmountPlaces int32 = 4

// amountRegex accepts plain signed decimals: "5", "-1.25", ".5", "3.".
var amountRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// HeaderIndex maps lowercased column names to their position in a row.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a header row.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// Cell returns the trimmed value of column name in row. ok is false when the
// header has no such column or the row is too short to reach it.
func (h HeaderIndex) Cell(row []string, name string) (value string, ok bool) {
	pos, exists := h[name]
	if !exists || pos >= len(row) {
		return "", false
	}
	return CleanCell(row[pos]), true
}

// CleanCell trims whitespace and surrounding quotes left by spreadsheet exports.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// ParseAmount parses a decimal amount and rounds it to places fractional
// digits.
func ParseAmount(s string, places int32) (decimal.Decimal, error) {
	s = CleanCell(s)
	if !amountRegex.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("invalid number %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return d.Round(places), nil
}

// ParseClient parses a client id (0-65535).
func ParseClient(s string) (uint16, error) {
	v, err := strconv.ParseUint(CleanCell(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid client id %q", s)
	}
	return uint16(v), nil
}

// ParseTx parses a transaction id (0-4294967295).
func ParseTx(s string) (uint32, error) {
	v, err := strconv.ParseUint(CleanCell(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid transaction id %q", s)
	}
	return uint32(v), nil
}
