// Package money holds the rounding and percentage rules every financial
// computation shares.
package money

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Round rounds an amount to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NormalizePercentage maps a percentage entered either as 0-100 or as a 0-1
// fraction onto the 0-1 fraction range. Values above 1 are divided by 100 and
// the result is clamped to [0, 1], which keeps the function idempotent.
func NormalizePercentage(p decimal.Decimal) decimal.Decimal {
	if p.GreaterThan(one) {
		p = p.Div(hundred)
	}
	if p.GreaterThan(one) {
		return one
	}
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// PercentOf returns amount * percent / 100 for percentages expressed on the 0-100 scale.
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}

// Ratio returns num/den, or zero when den is zero.
func Ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, 4)
}
