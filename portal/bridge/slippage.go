package bridge

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// CalculateMinOutput calculates minimum output with slippage tolerance.
// slippageBps is basis points (e.g., 100 = 1%)
// minOutput = expected * (10000 - slippageBps) / 10000
func CalculateMinOutput(expected *big.Int, slippageBps uint32) (*big.Int, error) {
	if expected == nil || expected.Sign() < 0 {
		return nil, fmt.Errorf("invalid expected output %v", expected)
	}
	if slippageBps > 10000 {
		return nil, fmt.Errorf("slippage of %d bps is above 100%%", slippageBps)
	}
	out := new(big.Int).Mul(expected, big.NewInt(int64(10000-slippageBps)))
	return out.Quo(out, big.NewInt(10000)), nil
}

// SlippageFraction converts basis points to the fraction route APIs expect,
// e.g. 50 -> 0.005.
func SlippageFraction(slippageBps uint32) decimal.Decimal {
	return decimal.NewFromInt(int64(slippageBps)).Shift(-4)
}
