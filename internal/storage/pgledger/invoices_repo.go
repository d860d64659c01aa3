package pgledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// CreateInvoices stores new invoices and links their loads in one
// transaction. An invoice whose load or number is already claimed is left
// out of the result, so replaying a sweep creates nothing twice.
func (s *Storage) CreateInvoices(ctx context.Context, tenantID string, invoices []models.Invoice, links []models.LoadInvoiceLink) ([]models.Invoice, error) {
	if len(invoices) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created := make([]models.Invoice, 0, len(invoices))
	stored := make(map[string]struct{}, len(invoices))
	for _, inv := range invoices {
		ok, err := claimInvoice(ctx, tx, tenantID, inv, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		b, err := json.Marshal(inv)
		if err != nil {
			return nil, errors.Wrap(err, "marshal invoice")
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO documents (tenant_id, kind, id, doc, version, updated_at)
VALUES ($1, $2, $3, $4, 1, $5)
`, tenantID, KindInvoice, inv.ID, b, now); err != nil {
			return nil, errors.Wrap(err, "insert invoice")
		}
		created = append(created, inv)
		stored[inv.ID] = struct{}{}
	}

	for _, l := range links {
		if _, ok := stored[l.InvoiceID]; !ok {
			continue
		}
		if _, err := tx.Exec(ctx, `
UPDATE documents
SET doc = jsonb_set(doc, '{invoiceId}', to_jsonb($3::text)), version = version + 1, updated_at = $4
WHERE tenant_id = $1 AND kind = 'load' AND id = $2 AND coalesce(doc->>'invoiceId', '') = ''
`, tenantID, l.LoadID, l.InvoiceID, now); err != nil {
			return nil, errors.Wrap(err, "link load")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return created, nil
}

func claimInvoice(ctx context.Context, tx pgx.Tx, tenantID string, inv models.Invoice, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
INSERT INTO invoice_numbers (tenant_id, number, invoice_id) VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING
`, tenantID, inv.InvoiceNumber, inv.ID)
	if err != nil {
		return false, errors.Wrap(err, "claim invoice number")
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, loadID := range inv.LoadIDs {
		tag, err := tx.Exec(ctx, `
INSERT INTO invoice_load_claims (tenant_id, load_id, invoice_id, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
`, tenantID, loadID, inv.ID, now)
		if err != nil {
			return false, errors.Wrap(err, "claim load")
		}
		if tag.RowsAffected() == 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM invoice_load_claims WHERE tenant_id = $1 AND invoice_id = $2`, tenantID, inv.ID); err != nil {
				return false, errors.Wrap(err, "release load claims")
			}
			if _, err := tx.Exec(ctx, `DELETE FROM invoice_numbers WHERE tenant_id = $1 AND number = $2`, tenantID, inv.InvoiceNumber); err != nil {
				return false, errors.Wrap(err, "release invoice number")
			}
			return false, nil
		}
	}
	return true, nil
}

// ApplyInvoiceStatus applies the update only while the invoice still has
// status upd.From. It reports whether a row changed.
func (s *Storage) ApplyInvoiceStatus(ctx context.Context, tenantID string, upd models.InvoiceStatusUpdate) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE documents
SET doc = doc || jsonb_build_object('status', $4::text, 'updatedAt', $5::text),
    version = version + 1,
    updated_at = now()
WHERE tenant_id = $1 AND kind = 'invoice' AND id = $2 AND doc->>'status' = $3
`, tenantID, upd.InvoiceID, string(upd.From), string(upd.To), upd.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, errors.Wrap(err, "update invoice status")
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateInvoice replaces the invoice while its stored status is still from.
func (s *Storage) UpdateInvoice(ctx context.Context, tenantID string, inv models.Invoice, from models.InvoiceStatus) error {
	b, err := json.Marshal(inv)
	if err != nil {
		return errors.Wrap(err, "marshal invoice")
	}
	tag, err := s.db.Exec(ctx, `
UPDATE documents
SET doc = $4, version = version + 1, updated_at = now()
WHERE tenant_id = $1 AND kind = 'invoice' AND id = $2 AND doc->>'status' = $3
`, tenantID, inv.ID, string(from), b)
	if err != nil {
		return errors.Wrap(err, "update invoice")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrVersionConflict, "invoice %s is no longer %s", inv.ID, from)
	}
	return nil
}
