package pgledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// GetRules returns the tenant's saved rules, or nil if it never saved any.
func (s *Storage) GetRules(ctx context.Context, tenantID string) ([]models.WorkflowRule, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT rules FROM workflow_rules WHERE tenant_id = $1`, tenantID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select rules")
	}
	rules := []models.WorkflowRule{}
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, errors.Wrap(err, "decode rules")
	}
	return rules, nil
}

func (s *Storage) SaveRules(ctx context.Context, tenantID string, rules []models.WorkflowRule) error {
	if rules == nil {
		rules = []models.WorkflowRule{}
	}
	b, err := json.Marshal(rules)
	if err != nil {
		return errors.Wrap(err, "marshal rules")
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO workflow_rules (tenant_id, rules, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (tenant_id) DO UPDATE SET rules = EXCLUDED.rules, updated_at = EXCLUDED.updated_at
`, tenantID, b, time.Now().UTC())
	return errors.Wrap(err, "save rules")
}
