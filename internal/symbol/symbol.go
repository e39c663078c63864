// Package symbol handles ticker symbol normalization and validation.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// CashSymbol is the reserved import-row marker denoting a cash contribution
// rather than a stock position. It is never a valid trading symbol.
const CashSymbol = "_CASH"

// tickerRegex matches exchange ticker symbols: a 1-6 character root of
// uppercase letters and digits, plus an optional 1-4 character share-class
// suffix separated by a dot or hyphen (BRK.B, BT-A).
var tickerRegex = regexp.MustCompile(`^[A-Z0-9]{1,6}([.-][A-Z0-9]{1,4})?$`)

// ErrInvalidSymbol is returned for strings that are not valid tickers.
var ErrInvalidSymbol = errors.New("symbol: invalid ticker symbol")

// Normalize trims whitespace and uppercases a raw symbol string.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Validate normalizes and validates a raw symbol, returning the canonical
// form. The reserved cash marker is rejected here; importers check for it
// before validating.
func Validate(raw string) (string, error) {
	s := Normalize(raw)
	if s == CashSymbol || !tickerRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return s, nil
}

// IsCash reports whether a raw import-row symbol is the reserved cash marker.
func IsCash(raw string) bool {
	return Normalize(raw) == CashSymbol
}
