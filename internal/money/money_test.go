package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNormalizePercentage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.88", "0.88"},
		{"88", "0.88"},
		{"1", "1"},
		{"100", "1"},
		{"0", "0"},
		{"150", "1"},
		{"12500", "1"},
		{"-5", "0"},
		{"0.5", "0.5"},
		{"2", "0.02"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizePercentage(d(tt.in))
			require.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}

func TestNormalizePercentage_Idempotent(t *testing.T) {
	for _, in := range []string{"0", "0.01", "0.88", "1", "1.5", "45", "99.99", "100", "101", "250", "-3", "100000"} {
		once := NormalizePercentage(d(in))
		twice := NormalizePercentage(once)
		require.True(t, once.Equal(twice), "normalize(normalize(%s)) = %s, want %s", in, twice, once)
	}
}

func TestRoundAndRatio(t *testing.T) {
	require.Equal(t, "10.13", Round(d("10.125")).StringFixed(2))
	require.Equal(t, "-10.13", Round(d("-10.125")).StringFixed(2))
	require.True(t, Ratio(d("1"), decimal.Zero).IsZero())
	require.Equal(t, "0.2417", Ratio(d("725"), d("3000")).String())
	require.Equal(t, "75", PercentOf(d("3000"), d("2.5")).String())
}
