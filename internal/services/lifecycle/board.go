package lifecycle

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/BearBump/HaulLedger/internal/broker/messages"
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/services/tasks"
)

// board is the in-memory view of a tenant's tasks during one operation.
type board struct {
	byID map[string]models.Task
}

func newBoard(ts []models.Task) *board {
	b := &board{byID: make(map[string]models.Task, len(ts))}
	for _, t := range ts {
		b.byID[t.ID] = t
	}
	return b
}

func (b *board) get(id string) (models.Task, bool) {
	t, ok := b.byID[id]
	return t, ok
}

func (b *board) put(t models.Task) { b.byID[t.ID] = t }

func (b *board) drop(id string) { delete(b.byID, id) }

func (b *board) lookup(id string) (models.TaskStatus, bool) {
	t, ok := b.byID[id]
	return t.Status, ok
}

// all returns the tasks ordered by id.
func (b *board) all() []models.Task {
	out := make([]models.Task, 0, len(b.byID))
	for _, t := range b.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// autoComplete completes the listed open tasks and refreshes their dependents.
// Tasks that do not exist yet or are already terminal are left alone.
func (s *Service) autoComplete(ctx context.Context, tenantID string, ids []string, b *board, now time.Time) []models.Task {
	var changed []models.Task
	for _, id := range ids {
		t, ok := b.get(id)
		if !ok || t.Status.Terminal() {
			continue
		}
		done, err := tasks.Complete(t, now, b.lookup)
		if err != nil {
			slog.Warn("auto-complete task", "tenant_id", tenantID, "task_id", id, "error", err.Error())
			continue
		}
		saved, err := s.saveTask(ctx, tenantID, done, b, now)
		if err != nil {
			slog.Warn("auto-complete task", "tenant_id", tenantID, "task_id", id, "error", err.Error())
			continue
		}
		changed = append(changed, saved)
		changed = append(changed, s.refreshDependents(ctx, tenantID, id, b, now)...)
	}
	return changed
}

// refreshDependents re-derives blocked/pending for every task that lists id
// as a blocker. A dependent lost to a concurrent update is logged and skipped.
func (s *Service) refreshDependents(ctx context.Context, tenantID, id string, b *board, now time.Time) []models.Task {
	var changed []models.Task
	for _, d := range tasks.Dependents(id, b.all()) {
		nd, ok := tasks.Refresh(d, now, b.lookup)
		if !ok {
			continue
		}
		saved, err := s.saveTask(ctx, tenantID, nd, b, now)
		if err != nil {
			slog.Warn("refresh dependent task", "tenant_id", tenantID, "task_id", d.ID, "blocker_id", id, "error", err.Error())
			continue
		}
		changed = append(changed, saved)
	}
	return changed
}

func (s *Service) saveTask(ctx context.Context, tenantID string, t models.Task, b *board, now time.Time) (models.Task, error) {
	saved, err := s.repo.UpdateTask(ctx, tenantID, t)
	if err != nil {
		return models.Task{}, err
	}
	b.put(saved)
	s.publish(ctx, tenantID, messages.LedgerTaskUpdated, models.EntityTask, saved.ID, now, saved)
	return saved, nil
}
