package models

import "github.com/shopspring/decimal"

type FactoringCompany struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// FeePercentage is on the 0-100 scale.
	FeePercentage *decimal.Decimal `json:"feePercentage,omitempty"`
}
