package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type LoadStatus string

const (
	LoadStatusAvailable  LoadStatus = "available"
	LoadStatusDispatched LoadStatus = "dispatched"
	LoadStatusInTransit  LoadStatus = "in_transit"
	LoadStatusDelivered  LoadStatus = "delivered"
	LoadStatusCompleted  LoadStatus = "completed"
	LoadStatusCancelled  LoadStatus = "cancelled"
	LoadStatusTONU       LoadStatus = "tonu"
)

// ParseLoadStatus accepts the case and separator variants found in stored
// records. Unknown values are kept as they are.
func ParseLoadStatus(s string) LoadStatus {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "available", "open":
		return LoadStatusAvailable
	case "dispatched", "assigned":
		return LoadStatusDispatched
	case "in_transit", "intransit":
		return LoadStatusInTransit
	case "delivered":
		return LoadStatusDelivered
	case "completed", "complete":
		return LoadStatusCompleted
	case "cancelled", "canceled":
		return LoadStatusCancelled
	case "tonu", "truck_order_not_used":
		return LoadStatusTONU
	default:
		return LoadStatus(s)
	}
}

func (s *LoadStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseLoadStatus(raw)
	return nil
}

// RevenueEligible reports whether loads in this status contribute to income.
func (s LoadStatus) RevenueEligible() bool {
	return s == LoadStatusDelivered || s == LoadStatusCompleted
}

// Document types attached to a load.
const (
	DocumentRateConfirmation = "rate_confirmation"
	DocumentBillOfLading     = "bill_of_lading"
	DocumentProofOfDelivery  = "proof_of_delivery"
	DocumentLumperReceipt    = "lumper_receipt"
)

type Document struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Name       string    `json:"name,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type Load struct {
	ID           string     `json:"id"`
	LoadNumber   string     `json:"loadNumber,omitempty"`
	Status       LoadStatus `json:"status"`
	CustomerName string     `json:"customerName,omitempty"`

	Rate          decimal.Decimal `json:"rate"`
	FuelSurcharge decimal.Decimal `json:"fuelSurcharge"`
	Accessorials  decimal.Decimal `json:"accessorials"`
	Miles         decimal.Decimal `json:"miles"`

	// Billable time the driver spent waiting, used by detention/layover add-ons.
	DetentionHours decimal.Decimal `json:"detentionHours"`
	LayoverDays    decimal.Decimal `json:"layoverDays"`

	PickupDate   *time.Time `json:"pickupDate,omitempty"`
	DeliveryDate *time.Time `json:"deliveryDate,omitempty"`

	DriverID  string `json:"driverId,omitempty"`
	InvoiceID string `json:"invoiceId,omitempty"`

	IsFactored          bool             `json:"isFactored,omitempty"`
	FactoringFee        *decimal.Decimal `json:"factoringFee,omitempty"`
	FactoringFeePercent *decimal.Decimal `json:"factoringFeePercent,omitempty"`
	FactoringCompanyID  string           `json:"factoringCompanyId,omitempty"`

	Documents []Document `json:"documents,omitempty"`

	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// GrandTotal is the amount billed to the customer.
func (l Load) GrandTotal() decimal.Decimal {
	return l.Rate.Add(l.FuelSurcharge).Add(l.Accessorials)
}

// ReportDate is the delivery date, falling back to the pickup date.
func (l Load) ReportDate() (time.Time, bool) {
	if l.DeliveryDate != nil && !l.DeliveryDate.IsZero() {
		return *l.DeliveryDate, true
	}
	if l.PickupDate != nil && !l.PickupDate.IsZero() {
		return *l.PickupDate, true
	}
	return time.Time{}, false
}

func (l Load) HasDocument(docType string) bool {
	for _, d := range l.Documents {
		if d.Type == docType {
			return true
		}
	}
	return false
}
