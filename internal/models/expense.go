package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ExpenseCategory string

const (
	ExpenseFuel        ExpenseCategory = "fuel"
	ExpenseInsurance   ExpenseCategory = "insurance"
	ExpenseToll        ExpenseCategory = "toll"
	ExpenseMaintenance ExpenseCategory = "maintenance"
	ExpenseELD         ExpenseCategory = "eld"
	ExpenseIFTA        ExpenseCategory = "ifta"
	ExpenseLumper      ExpenseCategory = "lumper"
	ExpenseOffice      ExpenseCategory = "office"
	ExpenseOther       ExpenseCategory = "other"
)

type PaidBy string

const (
	PaidByCompany     PaidBy = "company"
	PaidByDriver      PaidBy = "driver"
	PaidByTrackedOnly PaidBy = "tracked_only"
)

type Expense struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Category ExpenseCategory `json:"type"`
	Tags     []string        `json:"tags,omitempty"`
	Date     time.Time       `json:"date"`
	DriverID string          `json:"driverId,omitempty"`
	LoadID   string          `json:"loadId,omitempty"`
	PaidBy   PaidBy          `json:"paidBy,omitempty"`
	Note     string          `json:"note,omitempty"`
}

// NormalizedCategory lower-cases the stored category.
func (e Expense) NormalizedCategory() ExpenseCategory {
	return ExpenseCategory(strings.ToLower(strings.TrimSpace(string(e.Category))))
}

// IsPassThroughCategory reports whether the expense is of a kind an
// owner-operator carries personally. An "eld" tag counts as well.
func (e Expense) IsPassThroughCategory() bool {
	switch e.NormalizedCategory() {
	case ExpenseFuel, ExpenseInsurance, ExpenseToll, ExpenseMaintenance, ExpenseELD:
		return true
	}
	for _, t := range e.Tags {
		if strings.EqualFold(strings.TrimSpace(t), string(ExpenseELD)) {
			return true
		}
	}
	return false
}
