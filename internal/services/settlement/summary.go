package settlement

import (
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/shopspring/decimal"
)

// PayBasis says where a driver pay figure came from.
type PayBasis string

const (
	BasisSettlement PayBasis = "settlement"
	BasisEstimate   PayBasis = "estimate"
	BasisMixed      PayBasis = "mixed"
	BasisNone       PayBasis = "none"
)

func basisOf(settled, estimated bool) PayBasis {
	switch {
	case settled && estimated:
		return BasisMixed
	case settled:
		return BasisSettlement
	case estimated:
		return BasisEstimate
	default:
		return BasisNone
	}
}

type Revenue struct {
	// Total is the billed gross of every counted load.
	Total decimal.Decimal `json:"total"`
	// Company is the company's share after driver splits.
	Company            decimal.Decimal `json:"company"`
	OwnerOperatorGross decimal.Decimal `json:"ownerOperatorGross"`
	OwnerOperatorNet   decimal.Decimal `json:"ownerOperatorNet"`
	CompanyDriverGross decimal.Decimal `json:"companyDriverGross"`
	CompanyDriverNet   decimal.Decimal `json:"companyDriverNet"`
	UnassignedGross    decimal.Decimal `json:"unassignedGross"`
}

type DriverPayLine struct {
	DriverID      string            `json:"driverId"`
	DriverName    string            `json:"driverName,omitempty"`
	DriverType    models.DriverType `json:"driverType,omitempty"`
	Settled       decimal.Decimal   `json:"settled"`
	Estimated     decimal.Decimal   `json:"estimated"`
	Total         decimal.Decimal   `json:"total"`
	Basis         PayBasis          `json:"basis"`
	LoadIDs       []string          `json:"loadIds"`
	SettlementIDs []string          `json:"settlementIds,omitempty"`
	// Deductions the company is expected to take from an estimated
	// owner-operator line. Informational only.
	Deductions *models.DeductionPreferences `json:"deductions,omitempty"`
}

type DriverPay struct {
	Settled     decimal.Decimal `json:"settled"`
	Estimated   decimal.Decimal `json:"estimated"`
	Total       decimal.Decimal `json:"total"`
	IsEstimated bool            `json:"isEstimated"`
	Basis       PayBasis        `json:"basis"`
	Lines       []DriverPayLine `json:"lines"`
}

type Expenses struct {
	// Company is what the P&L deducts.
	Company    decimal.Decimal                            `json:"company"`
	ByCategory map[models.ExpenseCategory]decimal.Decimal `json:"byCategory"`
	// PassThrough are owner-operator costs excluded from Company.
	PassThrough decimal.Decimal `json:"passThrough"`
	TrackedOnly decimal.Decimal `json:"trackedOnly"`
}

type NegativeMarginLoad struct {
	LoadID         string          `json:"loadId"`
	LoadNumber     string          `json:"loadNumber,omitempty"`
	DriverID       string          `json:"driverId,omitempty"`
	Gross          decimal.Decimal `json:"gross"`
	CompanyRevenue decimal.Decimal `json:"companyRevenue"`
}

type Counts struct {
	LoadsCompleted  int             `json:"loadsCompleted"`
	TotalMiles      decimal.Decimal `json:"totalMiles"`
	UniqueCustomers int             `json:"uniqueCustomers"`
	UniqueDrivers   int             `json:"uniqueDrivers"`
	RevenuePerLoad  decimal.Decimal `json:"revenuePerLoad"`
	RevenuePerMile  decimal.Decimal `json:"revenuePerMile"`
}

type Summary struct {
	Period Period `json:"period"`

	Revenue   Revenue   `json:"revenue"`
	DriverPay DriverPay `json:"driverPay"`
	Expenses  Expenses  `json:"expenses"`

	Factoring            decimal.Decimal `json:"factoring"`
	DispatcherCommission decimal.Decimal `json:"dispatcherCommission"`
	// TotalCosts is company expenses plus factoring plus dispatcher commission.
	TotalCosts decimal.Decimal `json:"totalCosts"`
	// NetProfit is computed from billed gross, not from Revenue.Company:
	// Revenue.Total - TotalCosts - DriverPay.Total. Driver pay is subtracted once.
	NetProfit decimal.Decimal `json:"netProfit"`
	// ProfitMargin is NetProfit / Revenue.Total (gross), 0 without revenue.
	ProfitMargin decimal.Decimal `json:"profitMargin"`

	Counts              Counts               `json:"counts"`
	NegativeMarginLoads []NegativeMarginLoad `json:"negativeMarginLoads"`
	Warnings            []string             `json:"warnings,omitempty"`
}
