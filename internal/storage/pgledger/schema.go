package pgledger

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS documents (
  tenant_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  id TEXT NOT NULL,
  doc JSONB NOT NULL,
  version BIGINT NOT NULL DEFAULT 1,
  updated_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (tenant_id, kind, id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_tenant_kind ON documents(tenant_id, kind)`,
		// Один счёт на груз: повторный sweep не сможет создать дубль.
		`
CREATE TABLE IF NOT EXISTS invoice_load_claims (
  tenant_id TEXT NOT NULL,
  load_id TEXT NOT NULL,
  invoice_id TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (tenant_id, load_id)
)`,
		`
CREATE TABLE IF NOT EXISTS invoice_numbers (
  tenant_id TEXT NOT NULL,
  number TEXT NOT NULL,
  invoice_id TEXT NOT NULL,
  PRIMARY KEY (tenant_id, number)
)`,
		`
CREATE TABLE IF NOT EXISTS workflow_rules (
  tenant_id TEXT PRIMARY KEY,
  rules JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
