package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/HaulLedger/internal/broker/messages"
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/services/invoicing"
	"github.com/BearBump/HaulLedger/internal/services/tasks"
	"github.com/BearBump/HaulLedger/internal/services/workflow"
	"github.com/pkg/errors"
)

type transitionFunc func(t models.Task, now time.Time, lookup tasks.Lookup) (models.Task, error)

// changeTask applies fn to the stored task, saves it with its version token
// and refreshes the tasks it blocks.
func (s *Service) changeTask(ctx context.Context, tenantID, id string, fn transitionFunc) (models.Task, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(id) == "" {
		return models.Task{}, errors.Wrap(ErrInvalidArgument, "tenant and task id are required")
	}
	t, err := s.repo.GetTask(ctx, tenantID, id)
	if err != nil {
		return models.Task{}, err
	}
	all, err := s.repo.ListTasks(ctx, tenantID)
	if err != nil {
		return models.Task{}, errors.Wrap(err, "list tasks")
	}
	b := newBoard(all)
	b.put(t)

	now := s.now()
	next, err := fn(t, now, b.lookup)
	if err != nil {
		return models.Task{}, err
	}
	saved, err := s.saveTask(ctx, tenantID, next, b, now)
	if err != nil {
		return models.Task{}, err
	}
	s.refreshDependents(ctx, tenantID, saved.ID, b, now)
	return saved, nil
}

func (s *Service) StartTask(ctx context.Context, tenantID, id string) (models.Task, error) {
	return s.changeTask(ctx, tenantID, id, tasks.Start)
}

// CompleteTask completes the task and unblocks the tasks waiting on it.
func (s *Service) CompleteTask(ctx context.Context, tenantID, id string) (models.Task, error) {
	return s.changeTask(ctx, tenantID, id, tasks.Complete)
}

func (s *Service) CancelTask(ctx context.Context, tenantID, id string) (models.Task, error) {
	return s.changeTask(ctx, tenantID, id, func(t models.Task, now time.Time, _ tasks.Lookup) (models.Task, error) {
		return tasks.Cancel(t, now)
	})
}

func (s *Service) BlockTask(ctx context.Context, tenantID, id string) (models.Task, error) {
	return s.changeTask(ctx, tenantID, id, tasks.Block)
}

// DeleteTask removes the task. Its dependents become blocked since a missing
// blocker never clears.
func (s *Service) DeleteTask(ctx context.Context, tenantID, id string) error {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(id) == "" {
		return errors.Wrap(ErrInvalidArgument, "tenant and task id are required")
	}
	if err := s.repo.DeleteTask(ctx, tenantID, id); err != nil {
		return err
	}
	all, err := s.repo.ListTasks(ctx, tenantID)
	if err != nil {
		return errors.Wrap(err, "list tasks")
	}
	b := newBoard(all)
	b.drop(id)
	s.refreshDependents(ctx, tenantID, id, b, s.now())
	return nil
}

type TaskFilter struct {
	Status     models.TaskStatus
	EntityType string
	EntityID   string
}

func (f TaskFilter) match(t models.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.EntityType != "" && t.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && t.EntityID != f.EntityID {
		return false
	}
	return true
}

func (s *Service) ListTasks(ctx context.Context, tenantID string, f TaskFilter) ([]models.Task, error) {
	all, err := s.repo.ListTasks(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	out := make([]models.Task, 0, len(all))
	for _, t := range all {
		if f.match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Service) ListRules(ctx context.Context, tenantID string) ([]models.WorkflowRule, error) {
	rs, err := s.ruleSet(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return rs.Rules(), nil
}

func (s *Service) SetRuleEnabled(ctx context.Context, tenantID, ruleID string, enabled bool) ([]models.WorkflowRule, error) {
	rs, err := s.ruleSet(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if enabled {
		err = rs.Enable(ruleID)
	} else {
		err = rs.Disable(ruleID)
	}
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveRules(ctx, tenantID, rs.Rules()); err != nil {
		return nil, errors.Wrap(err, "save rules")
	}
	return rs.Rules(), nil
}

func (s *Service) ResetRules(ctx context.Context, tenantID string) ([]models.WorkflowRule, error) {
	rules := workflow.DefaultRules()
	if err := s.repo.SaveRules(ctx, tenantID, rules); err != nil {
		return nil, errors.Wrap(err, "save rules")
	}
	return rules, nil
}

// MarkInvoicePaid records the payment, announces it and runs the
// invoice.paid rules.
func (s *Service) MarkInvoicePaid(ctx context.Context, tenantID, id string, p invoicing.Payment) (models.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return models.Invoice{}, err
	}
	now := s.now()
	paid, upd, err := invoicing.MarkPaid(inv, p, now)
	if err != nil {
		return models.Invoice{}, err
	}
	if err := s.repo.UpdateInvoice(ctx, tenantID, paid, upd.From); err != nil {
		return models.Invoice{}, err
	}
	s.publish(ctx, tenantID, messages.LedgerInvoicePaid, models.EntityInvoice, paid.ID, now, paid)
	if _, err := s.HandleEvent(ctx, workflow.InvoiceEvent(tenantID, workflow.EventInvoicePaid, paid, now)); err != nil {
		return paid, err
	}
	s.invalidate(ctx, tenantID)
	return paid, nil
}

func (s *Service) CorrectInvoiceStatus(ctx context.Context, tenantID, id string, to models.InvoiceStatus) (models.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return models.Invoice{}, err
	}
	fixed, upd, err := invoicing.CorrectStatus(inv, to, s.now())
	if err != nil {
		return models.Invoice{}, err
	}
	if err := s.repo.UpdateInvoice(ctx, tenantID, fixed, upd.From); err != nil {
		return models.Invoice{}, err
	}
	s.invalidate(ctx, tenantID)
	return fixed, nil
}

func (s *Service) LoadChecklist(ctx context.Context, tenantID, loadID string) ([]workflow.ChecklistItem, error) {
	l, err := s.repo.GetLoad(ctx, tenantID, loadID)
	if err != nil {
		return nil, err
	}
	return workflow.Checklist(l), nil
}
