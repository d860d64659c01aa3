package workflow

import (
	"time"

	"github.com/BearBump/HaulLedger/internal/models"
)

const (
	EventLoadCreated       = "load.created"
	EventLoadStatusChanged = "load.status_changed"
	EventDriverAssigned    = "load.driver_assigned"
	EventDocumentUploaded  = "document.uploaded"
	EventInvoiceCreated    = "invoice.created"
	EventInvoiceOverdue    = "invoice.overdue"
	EventInvoicePaid       = "invoice.paid"
)

// Event is a state transition observed on a record.
type Event struct {
	TenantID   string    `json:"tenantId"`
	Type       string    `json:"type"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	OccurredAt time.Time `json:"occurredAt"`

	// Load is the subject load after the transition, when the event is about one.
	Load           *models.Load      `json:"load,omitempty"`
	PreviousStatus models.LoadStatus `json:"previousStatus,omitempty"`
	DocumentType   string            `json:"documentType,omitempty"`

	Invoice *models.Invoice `json:"invoice,omitempty"`
}

// LoadEvent builds an event about a load.
func LoadEvent(tenantID, eventType string, load models.Load, at time.Time) Event {
	return Event{
		TenantID:   tenantID,
		Type:       eventType,
		EntityType: models.EntityLoad,
		EntityID:   load.ID,
		OccurredAt: at,
		Load:       &load,
	}
}

// InvoiceEvent builds an event about an invoice.
func InvoiceEvent(tenantID, eventType string, inv models.Invoice, at time.Time) Event {
	return Event{
		TenantID:   tenantID,
		Type:       eventType,
		EntityType: models.EntityInvoice,
		EntityID:   inv.ID,
		OccurredAt: at,
		Invoice:    &inv,
	}
}
