package models

import (
	"encoding/json"
	"strings"

	"github.com/BearBump/HaulLedger/internal/money"
	"github.com/shopspring/decimal"
)

type DriverType string

const (
	DriverTypeCompany       DriverType = "company"
	DriverTypeOwnerOperator DriverType = "owner_operator"
)

// ParseDriverType accepts the spellings found in stored records.
func ParseDriverType(s string) DriverType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "owner_operator", "owneroperator", "owner-operator", "owner operator", "oo":
		return DriverTypeOwnerOperator
	case "company", "company_driver", "employee", "w2":
		return DriverTypeCompany
	default:
		return DriverType(s)
	}
}

type PaymentType string

const (
	PaymentPerMile    PaymentType = "per_mile"
	PaymentPercentage PaymentType = "percentage"
	PaymentFlatRate   PaymentType = "flat_rate"
)

// Payment is the active pay configuration of a driver. Exactly one variant
// is active at a time.
type Payment interface {
	PaymentType() PaymentType
	isPayment()
}

type PerMile struct{ Rate decimal.Decimal }

type Percentage struct{ Rate decimal.Decimal }

type FlatRate struct{ Rate decimal.Decimal }

// UnknownPayment keeps a configuration whose type was not recognised.
type UnknownPayment struct{ Type string }

func (PerMile) PaymentType() PaymentType { return PaymentPerMile }
func (Percentage) PaymentType() PaymentType { return PaymentPercentage }
func (FlatRate) PaymentType() PaymentType { return PaymentFlatRate }
func (u UnknownPayment) PaymentType() PaymentType { return PaymentType(u.Type) }

func (PerMile) isPayment() {}
func (Percentage) isPayment() {}
func (FlatRate) isPayment() {}
func (UnknownPayment) isPayment() {}

// Fraction is the normalized 0-1 share of the percentage.
func (p Percentage) Fraction() decimal.Decimal {
	return money.NormalizePercentage(p.Rate)
}

type paymentJSON struct {
	Type string          `json:"type"`
	Rate decimal.Decimal `json:"rate"`
}

func decodePayment(raw json.RawMessage) Payment {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var p paymentJSON
	if err := json.Unmarshal(raw, &p); err != nil {
		return UnknownPayment{Type: "malformed"}
	}
	switch PaymentType(strings.ToLower(strings.TrimSpace(p.Type))) {
	case PaymentPerMile:
		return PerMile{Rate: p.Rate}
	case PaymentPercentage:
		return Percentage{Rate: money.NormalizePercentage(p.Rate)}
	case PaymentFlatRate:
		return FlatRate{Rate: p.Rate}
	default:
		return UnknownPayment{Type: p.Type}
	}
}

func encodePayment(p Payment) *paymentJSON {
	switch v := p.(type) {
	case PerMile:
		return &paymentJSON{Type: string(PaymentPerMile), Rate: v.Rate}
	case Percentage:
		return &paymentJSON{Type: string(PaymentPercentage), Rate: v.Rate}
	case FlatRate:
		return &paymentJSON{Type: string(PaymentFlatRate), Rate: v.Rate}
	case UnknownPayment:
		return &paymentJSON{Type: v.Type}
	default:
		return nil
	}
}

type RateAddOn struct {
	Enabled bool            `json:"enabled"`
	Rate    decimal.Decimal `json:"rate"`
	// FreeUnits are not paid (e.g. first two hours of detention).
	FreeUnits decimal.Decimal `json:"freeUnits"`
}

// DeductionPreferences lists the owner-operator costs the company fronts and
// deducts from settlements.
type DeductionPreferences struct {
	Fuel        bool `json:"fuel"`
	Insurance   bool `json:"insurance"`
	Maintenance bool `json:"maintenance"`
	IFTA        bool `json:"ifta"`
	ELD         bool `json:"eld"`
	Other       bool `json:"other"`
}

// Covers reports whether the preference deducts expenses of the given category.
func (d DeductionPreferences) Covers(c ExpenseCategory) bool {
	switch c {
	case ExpenseFuel:
		return d.Fuel
	case ExpenseInsurance:
		return d.Insurance
	case ExpenseMaintenance:
		return d.Maintenance
	case ExpenseIFTA:
		return d.IFTA
	case ExpenseELD:
		return d.ELD
	default:
		return d.Other
	}
}

type Driver struct {
	ID   string     `json:"id"`
	Name string     `json:"name,omitempty"`
	Type DriverType `json:"type"`

	Payment Payment `json:"-"`
	// PayPercentage is the legacy revenue split, stored as a 0-1 fraction.
	PayPercentage *decimal.Decimal `json:"payPercentage,omitempty"`

	Detention     *RateAddOn `json:"detention,omitempty"`
	Layover       *RateAddOn `json:"layover,omitempty"`
	FuelSurcharge bool       `json:"fuelSurcharge,omitempty"`

	Deductions *DeductionPreferences `json:"deductions,omitempty"`
}

func (d Driver) IsOwnerOperator() bool { return d.Type == DriverTypeOwnerOperator }

// PayFraction is the normalized revenue share: a percentage payment when one
// is configured, otherwise the stored payPercentage.
func (d Driver) PayFraction() (decimal.Decimal, bool) {
	if p, ok := d.Payment.(Percentage); ok {
		return p.Fraction(), true
	}
	if d.PayPercentage != nil {
		return money.NormalizePercentage(*d.PayPercentage), true
	}
	return decimal.Zero, false
}

type driverAlias Driver

type driverJSON struct {
	driverAlias
	Payment      *paymentJSON `json:"payment,omitempty"`
	EmployeeType string       `json:"employeeType,omitempty"`
}

func (d Driver) MarshalJSON() ([]byte, error) {
	return json.Marshal(driverJSON{driverAlias: driverAlias(d), Payment: encodePayment(d.Payment)})
}

func (d *Driver) UnmarshalJSON(b []byte) error {
	var raw struct {
		driverAlias
		Payment      json.RawMessage `json:"payment"`
		EmployeeType string          `json:"employeeType"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = Driver(raw.driverAlias)
	t := string(d.Type)
	if t == "" {
		t = raw.EmployeeType
	}
	d.Type = ParseDriverType(t)
	d.Payment = decodePayment(raw.Payment)
	if d.PayPercentage != nil {
		norm := money.NormalizePercentage(*d.PayPercentage)
		d.PayPercentage = &norm
	}
	return nil
}
