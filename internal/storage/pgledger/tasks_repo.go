package pgledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// InsertTasks stores tasks that do not exist yet and returns those it stored.
func (s *Storage) InsertTasks(ctx context.Context, tenantID string, tasks []models.Task) ([]models.Task, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	var inserted []models.Task
	for _, t := range tasks {
		t.Version = 1
		b, err := json.Marshal(t)
		if err != nil {
			return nil, errors.Wrap(err, "marshal task")
		}
		tag, err := tx.Exec(ctx, `
INSERT INTO documents (tenant_id, kind, id, doc, version, updated_at)
VALUES ($1, $2, $3, $4, 1, $5)
ON CONFLICT (tenant_id, kind, id) DO NOTHING
`, tenantID, KindTask, t.ID, b, now)
		if err != nil {
			return nil, errors.Wrap(err, "insert task")
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, t)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return inserted, nil
}

func (s *Storage) GetTask(ctx context.Context, tenantID, id string) (models.Task, error) {
	t, version, err := getDoc[models.Task](ctx, s, tenantID, KindTask, id)
	if err != nil {
		return models.Task{}, err
	}
	t.Version = version
	return t, nil
}

func (s *Storage) ListTasks(ctx context.Context, tenantID string) ([]models.Task, error) {
	rows, err := s.db.Query(ctx, `
SELECT doc, version FROM documents WHERE tenant_id = $1 AND kind = 'task' ORDER BY id
`, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "select tasks")
	}
	defer rows.Close()

	out := []models.Task{}
	for rows.Next() {
		var (
			raw     []byte
			version int64
		)
		if err := rows.Scan(&raw, &version); err != nil {
			return nil, errors.Wrap(err, "scan task")
		}
		var t models.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, errors.Wrap(err, "decode task")
		}
		t.Version = version
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpdateTask writes the task if its stored version still equals t.Version
// and returns the task with the new version.
func (s *Storage) UpdateTask(ctx context.Context, tenantID string, t models.Task) (models.Task, error) {
	expected := t.Version
	t.Version = expected + 1
	b, err := json.Marshal(t)
	if err != nil {
		return models.Task{}, errors.Wrap(err, "marshal task")
	}
	tag, err := s.db.Exec(ctx, `
UPDATE documents SET doc = $4, version = version + 1, updated_at = now()
WHERE tenant_id = $1 AND kind = 'task' AND id = $2 AND version = $3
`, tenantID, t.ID, expected, b)
	if err != nil {
		return models.Task{}, errors.Wrap(err, "update task")
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetTask(ctx, tenantID, t.ID); err != nil {
			return models.Task{}, err
		}
		return models.Task{}, errors.Wrapf(ErrVersionConflict, "task %s version %d", t.ID, expected)
	}
	return t, nil
}

func (s *Storage) DeleteTask(ctx context.Context, tenantID, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE tenant_id = $1 AND kind = 'task' AND id = $2`, tenantID, id)
	if err != nil {
		return errors.Wrap(err, "delete task")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "task %s", id)
	}
	return nil
}
