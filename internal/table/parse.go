package table

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if len(s) >= 3 && strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// ParseNumber converts raw cell text into a float64.
// The value must be a plain decimal or scientific-notation number that fits
// in a float64; anything else fails with ErrInvalidCellSyntax.
func ParseNumber(raw string) (float64, error) {
	s := CleanCell(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidCellSyntax)
	}
	if !numericRegex.MatchString(s) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidCellSyntax, raw)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidCellSyntax, raw)
	}
	return v, nil
}

// FormatNumber renders a value the way it is written back to CSV.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
