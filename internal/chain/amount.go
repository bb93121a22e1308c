// Package chain holds Solana-specific helpers: address checks, fixed-point
// amount conversion and the fee model of the shielding service.
package chain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/solana-agent/backend/internal/models"
)

// ParseAmount converts a human amount ("1.5", "$5", "1,000") into minor units
// of tok. More fractional digits than the token supports is an error; the
// amount is never rounded.
func ParseAmount(s string, tok models.Token) (int64, error) {
	if !tok.Valid() {
		return 0, fmt.Errorf("unsupported token %q", tok)
	}
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "$")
	clean = strings.ReplaceAll(clean, ",", "")
	if clean == "" {
		return 0, fmt.Errorf("amount is empty")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	minor := d.Shift(tok.Decimals())
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, tok.Decimals())
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %q is out of range", s)
	}
	return minor.IntPart(), nil
}

// ToDecimal returns the human value of a minor-unit amount.
func ToDecimal(minor int64, tok models.Token) decimal.Decimal {
	return decimal.New(minor, -tok.Decimals())
}

// FormatAmount renders minor units without trailing zeros: 1500000000 SOL -> "1.5".
func FormatAmount(minor int64, tok models.Token) string {
	return ToDecimal(minor, tok).String()
}

// FromDecimal scales a human value into minor units, truncating excess digits.
func FromDecimal(d decimal.Decimal, tok models.Token) int64 {
	return d.Shift(tok.Decimals()).Truncate(0).IntPart()
}
