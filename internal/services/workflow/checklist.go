package workflow

import (
	"slices"

	"github.com/BearBump/HaulLedger/internal/models"
)

type ChecklistItem struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Done     bool   `json:"done"`
}

// Checklist is the lifecycle checklist of a load. Proof of delivery and
// invoicing become required once the load is delivered. Nothing is required
// of a cancelled or TONU load.
func Checklist(load models.Load) []ChecklistItem {
	s := load.Status
	live := s != models.LoadStatusCancelled && s != models.LoadStatusTONU
	done := s.RevenueEligible()
	moving := slices.Contains([]models.LoadStatus{models.LoadStatusInTransit, models.LoadStatusDelivered, models.LoadStatusCompleted}, s)
	dispatched := moving || s == models.LoadStatusDispatched

	return []ChecklistItem{
		{Key: "driver-assignment", Label: "Driver assigned", Required: live, Done: load.DriverID != ""},
		{Key: "dispatch", Label: "Dispatched", Required: live, Done: dispatched},
		{Key: "rate-confirmation", Label: "Rate confirmation on file", Required: live, Done: load.HasDocument(models.DocumentRateConfirmation)},
		{Key: "bill-of-lading", Label: "Bill of lading on file", Required: live, Done: load.HasDocument(models.DocumentBillOfLading)},
		{Key: "in-transit", Label: "In transit", Required: live, Done: moving},
		{Key: "proof-of-delivery", Label: "Proof of delivery on file", Required: done, Done: load.HasDocument(models.DocumentProofOfDelivery)},
		{Key: "delivered", Label: "Delivered", Required: live, Done: done},
		{Key: "invoiced", Label: "Invoiced", Required: done, Done: load.InvoiceID != ""},
	}
}

// ChecklistComplete reports whether every required item is done.
func ChecklistComplete(items []ChecklistItem) bool {
	for _, it := range items {
		if it.Required && !it.Done {
			return false
		}
	}
	return true
}
