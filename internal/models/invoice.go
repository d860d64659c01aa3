package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

type Invoice struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	CustomerName  string          `json:"customerName,omitempty"`
	LoadIDs       []string        `json:"loadIds"`
	Amount        decimal.Decimal `json:"amount"`
	Status        InvoiceStatus   `json:"status"`
	Date          time.Time       `json:"date"`
	DueDate       time.Time       `json:"dueDate"`

	PaidAt           *time.Time `json:"paidAt,omitempty"`
	PaymentMethod    string     `json:"paymentMethod,omitempty"`
	PaymentReference string     `json:"paymentReference,omitempty"`

	IsFactored         bool   `json:"isFactored,omitempty"`
	FactoringCompanyID string `json:"factoringCompanyId,omitempty"`

	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

func (i Invoice) References(loadID string) bool {
	for _, id := range i.LoadIDs {
		if id == loadID {
			return true
		}
	}
	return false
}

// InvoiceStatusUpdate is a proposed status change for the host to persist.
type InvoiceStatusUpdate struct {
	InvoiceID string        `json:"invoiceId"`
	From      InvoiceStatus `json:"from"`
	To        InvoiceStatus `json:"to"`
	At        time.Time     `json:"at"`
}

// LoadInvoiceLink sets load.invoiceId once the invoice it names is persisted.
type LoadInvoiceLink struct {
	LoadID    string `json:"loadId"`
	InvoiceID string `json:"invoiceId"`
}
