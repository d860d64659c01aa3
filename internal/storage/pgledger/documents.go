package pgledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Document kinds.
const (
	KindLoad             = "load"
	KindDriver           = "driver"
	KindSettlement       = "settlement"
	KindExpense          = "expense"
	KindInvoice          = "invoice"
	KindFactoringCompany = "factoring_company"
	KindTask             = "task"
)

func (s *Storage) put(ctx context.Context, tenantID, kind, id string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", kind)
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO documents (tenant_id, kind, id, doc, version, updated_at)
VALUES ($1, $2, $3, $4, 1, $5)
ON CONFLICT (tenant_id, kind, id)
DO UPDATE SET doc = EXCLUDED.doc, version = documents.version + 1, updated_at = EXCLUDED.updated_at
`, tenantID, kind, id, b, time.Now().UTC())
	return errors.Wrapf(err, "upsert %s", kind)
}

func getDoc[T any](ctx context.Context, s *Storage, tenantID, kind, id string) (T, int64, error) {
	var (
		out     T
		raw     []byte
		version int64
	)
	err := s.db.QueryRow(ctx, `
SELECT doc, version FROM documents WHERE tenant_id = $1 AND kind = $2 AND id = $3
`, tenantID, kind, id).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, 0, errors.Wrapf(ErrNotFound, "%s %s", kind, id)
	}
	if err != nil {
		return out, 0, errors.Wrapf(err, "select %s", kind)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, 0, errors.Wrapf(err, "decode %s %s", kind, id)
	}
	return out, version, nil
}

func (s *Storage) PutLoad(ctx context.Context, tenantID string, l models.Load) error {
	return s.put(ctx, tenantID, KindLoad, l.ID, l)
}

func (s *Storage) PutDriver(ctx context.Context, tenantID string, d models.Driver) error {
	return s.put(ctx, tenantID, KindDriver, d.ID, d)
}

func (s *Storage) PutSettlement(ctx context.Context, tenantID string, st models.Settlement) error {
	return s.put(ctx, tenantID, KindSettlement, st.ID, st)
}

func (s *Storage) PutExpense(ctx context.Context, tenantID string, e models.Expense) error {
	return s.put(ctx, tenantID, KindExpense, e.ID, e)
}

func (s *Storage) PutFactoringCompany(ctx context.Context, tenantID string, f models.FactoringCompany) error {
	return s.put(ctx, tenantID, KindFactoringCompany, f.ID, f)
}

// PutInvoice stores an imported invoice as is. Auto-created invoices go
// through CreateInvoices.
func (s *Storage) PutInvoice(ctx context.Context, tenantID string, inv models.Invoice) error {
	return s.put(ctx, tenantID, KindInvoice, inv.ID, inv)
}

func (s *Storage) GetLoad(ctx context.Context, tenantID, id string) (models.Load, error) {
	l, _, err := getDoc[models.Load](ctx, s, tenantID, KindLoad, id)
	return l, err
}

func (s *Storage) GetInvoice(ctx context.Context, tenantID, id string) (models.Invoice, error) {
	inv, _, err := getDoc[models.Invoice](ctx, s, tenantID, KindInvoice, id)
	return inv, err
}

// ListTenants returns every tenant with at least one stored record.
func (s *Storage) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT tenant_id FROM documents ORDER BY tenant_id`)
	if err != nil {
		return nil, errors.Wrap(err, "select tenants")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, errors.Wrap(err, "scan tenant")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// Snapshot reads every record of the tenant. A document that cannot be
// decoded is logged and left out.
func (s *Storage) Snapshot(ctx context.Context, tenantID string) (models.Snapshot, error) {
	rows, err := s.db.Query(ctx, `
SELECT kind, id, doc, version FROM documents WHERE tenant_id = $1 ORDER BY kind, id
`, tenantID)
	if err != nil {
		return models.Snapshot{}, errors.Wrap(err, "select documents")
	}
	defer rows.Close()

	var snap models.Snapshot
	for rows.Next() {
		var (
			kind, id string
			raw      []byte
			version  int64
		)
		if err := rows.Scan(&kind, &id, &raw, &version); err != nil {
			return models.Snapshot{}, errors.Wrap(err, "scan document")
		}
		if err := decodeInto(&snap, kind, raw, version); err != nil {
			slog.Warn("skip malformed document", "tenant_id", tenantID, "kind", kind, "id", id, "error", err.Error())
		}
	}
	if rows.Err() != nil {
		return models.Snapshot{}, errors.Wrap(rows.Err(), "rows")
	}

	rules, err := s.GetRules(ctx, tenantID)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap.Rules = rules
	return snap, nil
}

func decodeInto(snap *models.Snapshot, kind string, raw []byte, version int64) error {
	switch kind {
	case KindLoad:
		var v models.Load
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		snap.Loads = append(snap.Loads, v)
	case KindDriver:
		var v models.Driver
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		snap.Drivers = append(snap.Drivers, v)
	case KindSettlement:
		var v models.Settlement
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		snap.Settlements = append(snap.Settlements, v)
	case KindExpense:
		var v models.Expense
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		snap.Expenses = append(snap.Expenses, v)
	case KindInvoice:
		var v models.Invoice
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		snap.Invoices = append(snap.Invoices, v)
	case KindFactoringCompany:
		var v models.FactoringCompany
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		snap.FactoringCompanies = append(snap.FactoringCompanies, v)
	case KindTask:
		var v models.Task
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		v.Version = version
		snap.Tasks = append(snap.Tasks, v)
	default:
		return errors.Errorf("unknown kind %q", kind)
	}
	return nil
}
