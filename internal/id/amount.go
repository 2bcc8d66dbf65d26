package id

import (
	"fmt"
	"math/big"
	"strings"

	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/shopspring/decimal"
)

// ParseAmount validates user-entered decimal text. Only plain positive
// decimals are accepted.
func ParseAmount(raw string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" || strings.ContainsAny(clean, "eE") {
		return decimal.Decimal{}, clierr.New(clierr.CodeValidation, "Invalid amount. Please send a positive number.")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, clierr.New(clierr.CodeValidation, "Invalid amount. Please send a positive number.")
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, clierr.New(clierr.CodeValidation, "Invalid amount. Please send a positive number.")
	}
	return d, nil
}

// ToBaseUnits scales a decimal amount string by 10^decimals. Precision beyond
// the token's decimals is rejected rather than truncated.
func ToBaseUnits(raw string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	d, err := ParseAmount(raw)
	if err != nil {
		return nil, err
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("Invalid amount. At most %d decimal places are supported.", decimals))
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders base units as a trimmed decimal string.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// NormalizeAmount returns the canonical decimal form of a valid amount.
func NormalizeAmount(raw string) (string, error) {
	d, err := ParseAmount(raw)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}
