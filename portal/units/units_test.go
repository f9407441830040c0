package units_test

import (
	"math/big"
	"testing"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/units"
	"github.com/zeebo/assert"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int32
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"10", 6, "10000000"},
		{"0.5", 6, "500000"},
		{"2.25", 8, "225000000"},
		{"0", 18, "0"},
		{"1.0000005", 6, "1000001"},
		{"100", 0, "100"},
	}

	for _, tt := range tests {
		got, err := units.ParseUnits(tt.amount, tt.decimals)
		assert.NoError(t, err)
		assert.Equal(t, got.String(), tt.want)
	}
}

func TestParseUnitsRejectsBadInput(t *testing.T) {
	_, err := units.ParseUnits("abc", 18)
	assert.Error(t, err)

	_, err = units.ParseUnits("-1", 18)
	assert.Equal(t, err, units.ErrNegativeAmount)

	_, err = units.ParseUnits("1", -1)
	assert.Equal(t, err, units.ErrBadDecimals)
}

func TestParseFormatRoundTrip(t *testing.T) {
	amounts := []string{"1", "3", "12.5", "0.000001", "1000000", "42.4242"}
	decimals := []int32{6, 8, 18}

	for _, a := range amounts {
		for _, d := range decimals {
			raw, err := units.ParseUnits(a, d)
			assert.NoError(t, err)

			back := units.FormatUnits(raw, d)
			want, _ := units.ParseUnits(a, d)
			assert.Equal(t, raw.Cmp(want), 0)
			assert.Equal(t, back.String(), units.FormatUnitsString(raw, d))

			// decoding gives the original amount
			roundTrip, err := units.ParseUnits(back.String(), d)
			assert.NoError(t, err)
			assert.Equal(t, roundTrip.Cmp(raw), 0)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, units.FormatUnitsString(big.NewInt(1500000), 6), "1.5")
	assert.Equal(t, units.FormatUnitsString(nil, 6), "0")

	oneEther, err := units.ParseEther("1")
	assert.NoError(t, err)
	assert.Equal(t, units.FormatUnitsString(oneEther, 18), "1")
}
