package solana

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the number of decimals of the native asset (lamports per SOL).
const NativeDecimals uint8 = 9

// ToBaseUnits converts a human amount into base units: round(amount * 10^decimals).
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative, got %s", amount)
	}

	base := amount.Shift(int32(decimals)).Round(0)
	bi := base.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s with %d decimals overflows u64", amount, decimals)
	}
	return bi.Uint64(), nil
}

// FromBaseUnits converts base units back into a human amount.
func FromBaseUnits(base uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(base), -int32(decimals))
}
