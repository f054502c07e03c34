package solana

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals uint8
		want     uint64
	}{
		{"1.5", 6, 1_500_000},
		{"1", 9, 1_000_000_000},
		{"0.000000001", 9, 1},
		{"0.0000005", 6, 1},  // half rounds away from zero
		{"0.0000004", 6, 0},
		{"123.456789", 6, 123_456_789},
		{"42", 0, 42},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := ToBaseUnits(decimal.RequireFromString(tt.amount), tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToBaseUnits_Rejects(t *testing.T) {
	_, err := ToBaseUnits(decimal.RequireFromString("-1"), 6)
	assert.Error(t, err)

	_, err = ToBaseUnits(decimal.RequireFromString("18446744073709551616"), 0)
	assert.Error(t, err)
}

func TestUnits_RoundTripStable(t *testing.T) {
	amounts := []string{"0", "1.5", "0.1234567891", "999999.999999", "0.000001", "3.14159265358979"}
	for _, a := range amounts {
		for d := uint8(0); d <= 12; d++ {
			amount := decimal.RequireFromString(a)
			base, err := ToBaseUnits(amount, d)
			require.NoError(t, err)

			again, err := ToBaseUnits(FromBaseUnits(base, d), d)
			require.NoError(t, err)
			assert.Equal(t, base, again, "amount=%s decimals=%d", a, d)
		}
	}
}

func TestFromBaseUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("1.5").Equal(FromBaseUnits(1_500_000, 6)))
	assert.True(t, decimal.RequireFromString("0.000000001").Equal(FromBaseUnits(1, NativeDecimals)))
}
