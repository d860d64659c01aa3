package invoicing

import (
	"time"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/pkg/errors"
)

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SweepOverdue proposes pending -> overdue for invoices whose due date is
// strictly before today. Running it again after the updates are applied
// proposes nothing. Invoices without a due date are returned as skipped.
func SweepOverdue(invoices []models.Invoice, today time.Time) ([]models.InvoiceStatusUpdate, []Skip) {
	var (
		updates []models.InvoiceStatusUpdate
		skipped []Skip
	)
	at := today.UTC()
	for _, inv := range invoices {
		if inv.Status != models.InvoiceStatusPending {
			continue
		}
		if inv.DueDate.IsZero() {
			skipped = append(skipped, Skip{InvoiceID: inv.ID, Reason: "invoice has no due date"})
			continue
		}
		if day(inv.DueDate).Before(day(today)) {
			updates = append(updates, models.InvoiceStatusUpdate{
				InvoiceID: inv.ID,
				From:      models.InvoiceStatusPending,
				To:        models.InvoiceStatusOverdue,
				At:        at,
			})
		}
	}
	return updates, skipped
}

type Payment struct {
	PaidAt    time.Time `json:"paidAt"`
	Method    string    `json:"method,omitempty"`
	Reference string    `json:"reference,omitempty"`
}

// MarkPaid records a payment. A zero PaidAt means now.
func MarkPaid(inv models.Invoice, p Payment, now time.Time) (models.Invoice, models.InvoiceStatusUpdate, error) {
	switch inv.Status {
	case models.InvoiceStatusPaid:
		return inv, models.InvoiceStatusUpdate{}, errors.Wrapf(ErrInvoiceAlreadyPaid, "invoice %s", inv.ID)
	case models.InvoiceStatusPending, models.InvoiceStatusOverdue:
	default:
		return inv, models.InvoiceStatusUpdate{}, errors.Wrapf(ErrInvalidInvoiceTransition, "invoice %s: %s -> paid", inv.ID, inv.Status)
	}
	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	paidAt = paidAt.UTC()
	upd := models.InvoiceStatusUpdate{InvoiceID: inv.ID, From: inv.Status, To: models.InvoiceStatusPaid, At: paidAt}
	inv.Status = models.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	inv.PaymentMethod = p.Method
	inv.PaymentReference = p.Reference
	inv.UpdatedAt = now.UTC()
	return inv, upd, nil
}

// CorrectStatus is a manual correction back to pending.
func CorrectStatus(inv models.Invoice, to models.InvoiceStatus, now time.Time) (models.Invoice, models.InvoiceStatusUpdate, error) {
	if inv.Status == models.InvoiceStatusPaid {
		return inv, models.InvoiceStatusUpdate{}, errors.Wrapf(ErrInvoiceAlreadyPaid, "invoice %s", inv.ID)
	}
	ok := to == models.InvoiceStatusPending &&
		(inv.Status == models.InvoiceStatusOverdue || inv.Status == models.InvoiceStatusDraft)
	if !ok {
		return inv, models.InvoiceStatusUpdate{}, errors.Wrapf(ErrInvalidInvoiceTransition, "invoice %s: %s -> %s", inv.ID, inv.Status, to)
	}
	upd := models.InvoiceStatusUpdate{InvoiceID: inv.ID, From: inv.Status, To: to, At: now.UTC()}
	inv.Status = to
	inv.UpdatedAt = now.UTC()
	return inv, upd, nil
}

// Apply returns invoices with the updates applied. Updates whose From no
// longer matches the current status are ignored.
func Apply(invoices []models.Invoice, updates []models.InvoiceStatusUpdate) []models.Invoice {
	byID := make(map[string]models.InvoiceStatusUpdate, len(updates))
	for _, u := range updates {
		byID[u.InvoiceID] = u
	}
	out := make([]models.Invoice, len(invoices))
	for i, inv := range invoices {
		if u, ok := byID[inv.ID]; ok && inv.Status == u.From {
			inv.Status = u.To
			inv.UpdatedAt = u.At
		}
		out[i] = inv
	}
	return out
}
