// Package pay splits a load's gross amount between the driver and the company.
package pay

import (
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/money"
	"github.com/shopspring/decimal"
)

// Basis names the rule that produced a split.
type Basis string

const (
	BasisUnassigned    Basis = "unassigned"
	BasisOwnerOperator Basis = "owner_operator"
	BasisPerMile       Basis = "per_mile"
	BasisPercentage    Basis = "percentage"
	BasisFlatRate      Basis = "flat_rate"
	BasisUnknown       Basis = "unknown"
)

// Split is the result for one load. Gross always equals DriverPay + CompanyRevenue.
type Split struct {
	Gross          decimal.Decimal `json:"gross"`
	BasePay        decimal.Decimal `json:"basePay"`
	AddOns         decimal.Decimal `json:"addOns"`
	DriverPay      decimal.Decimal `json:"driverPay"`
	CompanyRevenue decimal.Decimal `json:"companyRevenue"`
	Basis          Basis           `json:"basis"`
	// Degraded is set when the pay configuration could not be read, was
	// negative or gave no owner-operator share, and the load was treated as
	// unassigned.
	Degraded bool `json:"degraded,omitempty"`
}

// Calculate splits the load's grand total. A nil driver means no driver is assigned.
func Calculate(load models.Load, driver *models.Driver) Split {
	return calculate(money.Round(load.GrandTotal()), load, driver)
}

// CompanyRevenue is the company's share of gross for the load.
func CompanyRevenue(gross decimal.Decimal, load models.Load, driver *models.Driver) decimal.Decimal {
	return calculate(money.Round(gross), load, driver).CompanyRevenue
}

// DriverPay is the driver's share of the load's grand total.
func DriverPay(load models.Load, driver *models.Driver) decimal.Decimal {
	return Calculate(load, driver).DriverPay
}

func calculate(gross decimal.Decimal, load models.Load, driver *models.Driver) Split {
	if driver == nil {
		return unassigned(gross, BasisUnassigned, false)
	}

	if driver.IsOwnerOperator() {
		frac, ok := driver.PayFraction()
		if !ok {
			return unassigned(gross, BasisOwnerOperator, true)
		}
		revenue := money.Round(gross.Mul(decimal.NewFromInt(1).Sub(frac)))
		driverPay := gross.Sub(revenue)
		return Split{
			Gross:          gross,
			BasePay:        driverPay,
			AddOns:         decimal.Zero,
			DriverPay:      driverPay,
			CompanyRevenue: revenue,
			Basis:          BasisOwnerOperator,
		}
	}

	var (
		base  decimal.Decimal
		basis Basis
	)
	switch p := driver.Payment.(type) {
	case models.PerMile:
		base, basis = p.Rate.Mul(load.Miles), BasisPerMile
	case models.Percentage:
		base, basis = gross.Mul(p.Fraction()), BasisPercentage
	case models.FlatRate:
		base, basis = p.Rate, BasisFlatRate
	case nil:
		frac, ok := driver.PayFraction()
		if !ok {
			return unassigned(gross, BasisUnknown, true)
		}
		base, basis = gross.Mul(frac), BasisPercentage
	default:
		return unassigned(gross, BasisUnknown, true)
	}
	if base.IsNegative() {
		return unassigned(gross, basis, true)
	}

	base = money.Round(base)
	addOns := money.Round(companyAddOns(load, driver))
	driverPay := base.Add(addOns)
	return Split{
		Gross:          gross,
		BasePay:        base,
		AddOns:         addOns,
		DriverPay:      driverPay,
		CompanyRevenue: gross.Sub(driverPay),
		Basis:          basis,
	}
}

func unassigned(gross decimal.Decimal, basis Basis, degraded bool) Split {
	return Split{
		Gross:          gross,
		BasePay:        decimal.Zero,
		AddOns:         decimal.Zero,
		DriverPay:      decimal.Zero,
		CompanyRevenue: gross,
		Basis:          basis,
		Degraded:       degraded,
	}
}

func companyAddOns(load models.Load, driver *models.Driver) decimal.Decimal {
	total := decimal.Zero
	total = total.Add(addOn(driver.Detention, load.DetentionHours))
	total = total.Add(addOn(driver.Layover, load.LayoverDays))
	if driver.FuelSurcharge {
		total = total.Add(load.FuelSurcharge)
	}
	return total
}

func addOn(a *models.RateAddOn, units decimal.Decimal) decimal.Decimal {
	if a == nil || !a.Enabled {
		return decimal.Zero
	}
	billable := units.Sub(a.FreeUnits)
	if !billable.IsPositive() || a.Rate.IsNegative() {
		return decimal.Zero
	}
	return a.Rate.Mul(billable)
}
