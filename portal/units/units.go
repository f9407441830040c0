// Package units converts between human readable token amounts and on-chain
// integer units for a given number of decimals.
package units

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the decimals of index tokens and native ether.
const EtherDecimals = 18

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrBadDecimals    = errors.New("decimals out of range")
)

// ParseUnits returns amount * 10^decimals as an integer. Digits beyond the
// token precision are rounded half away from zero.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return ParseDecimal(d, decimals)
}

// ParseDecimal is ParseUnits for an already parsed decimal.
func ParseDecimal(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if decimals < 0 || decimals > 255 {
		return nil, ErrBadDecimals
	}
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	return amount.Shift(decimals).Round(0).BigInt(), nil
}

// ParseEther is ParseUnits with 18 decimals.
func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, EtherDecimals)
}

// FormatUnits returns value / 10^decimals.
func FormatUnits(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}

// FormatUnitsString is FormatUnits rendered without trailing zeros.
func FormatUnitsString(value *big.Int, decimals int32) string {
	return FormatUnits(value, decimals).String()
}
