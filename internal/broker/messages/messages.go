package messages

import (
	"encoding/json"
	"time"

	"github.com/BearBump/HaulLedger/internal/models"
)

// LoadChanged is published by the load owner after it stores a load mutation.
type LoadChanged struct {
	TenantID string `json:"tenant_id"`
	// Type is one of the load or document event types (load.created, load.status_changed, ...).
	Type           string            `json:"type"`
	OccurredAt     time.Time         `json:"occurred_at"`
	Load           models.Load       `json:"load"`
	PreviousStatus models.LoadStatus `json:"previous_status,omitempty"`
	DocumentType   string            `json:"document_type,omitempty"`
}

// Ledger event types.
const (
	LedgerTaskCreated    = "task.created"
	LedgerTaskUpdated    = "task.updated"
	LedgerInvoiceCreated = "invoice.created"
	LedgerInvoiceOverdue = "invoice.overdue"
	LedgerInvoicePaid    = "invoice.paid"
)

// LedgerEvent announces a record the ledger created or changed.
type LedgerEvent struct {
	TenantID   string          `json:"tenant_id"`
	Type       string          `json:"type"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewLedgerEvent encodes payload into the event.
func NewLedgerEvent(tenantID, typ, entityType, entityID string, at time.Time, payload any) (LedgerEvent, error) {
	ev := LedgerEvent{
		TenantID:   tenantID,
		Type:       typ,
		EntityType: entityType,
		EntityID:   entityID,
		OccurredAt: at.UTC(),
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return LedgerEvent{}, err
		}
		ev.Payload = b
	}
	return ev, nil
}

// Key partitions ledger events by tenant and entity.
func (e LedgerEvent) Key() []byte {
	return []byte(e.TenantID + ":" + e.EntityID)
}
