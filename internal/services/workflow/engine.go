// Package workflow turns record events into task creation requests according
// to a per-tenant rule set.
package workflow

import (
	"slices"
	"strings"

	"github.com/BearBump/HaulLedger/internal/ids"
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/pkg/errors"
)

var ErrRuleNotFound = errors.New("workflow rule not found")

// Matches reports whether the rule fires for the event.
func Matches(rule models.WorkflowRule, ev Event) bool {
	if !rule.IsEnabled || rule.EventType != ev.Type {
		return false
	}
	f := rule.Filter
	if f.Empty() {
		return true
	}
	if len(f.LoadStatuses) > 0 {
		if ev.Load == nil || !slices.Contains(f.LoadStatuses, ev.Load.Status) {
			return false
		}
	}
	if len(f.DocumentTypes) > 0 && !slices.Contains(f.DocumentTypes, ev.DocumentType) {
		return false
	}
	return true
}

// Evaluate materialises every action of every matching rule. The result
// depends only on its arguments: ids are derived from tenant, rule, action and
// entity, and due dates from the event time. existing supplies blocker
// statuses; a blocker absent from it counts as not completed.
func Evaluate(rules []models.WorkflowRule, ev Event, existing []models.Task) []models.Task {
	status := make(map[string]models.TaskStatus, len(existing))
	for _, t := range existing {
		status[t.ID] = t.Status
	}

	var out []models.Task
	for _, r := range rules {
		if !Matches(r, ev) {
			continue
		}
		for _, a := range r.Actions {
			out = append(out, materialise(r, a, ev, status))
		}
	}
	return out
}

// TaskID is the id Evaluate gives the task for the action on the event's entity.
func TaskID(ev Event, ruleID, actionKey string) string {
	return ids.Task(ev.TenantID, ruleID, actionKey, ev.EntityType, ev.EntityID)
}

func materialise(r models.WorkflowRule, a models.Action, ev Event, status map[string]models.TaskStatus) models.Task {
	blockers := resolveBlockers(r, a, ev)
	st := models.TaskPending
	for _, b := range blockers {
		if status[b] != models.TaskCompleted {
			st = models.TaskBlocked
			break
		}
	}
	prio := a.Priority
	if prio == "" {
		prio = models.PriorityMedium
	}
	render := titleRenderer(ev)
	return models.Task{
		ID:          TaskID(ev, r.ID, a.Key),
		TenantID:    ev.TenantID,
		Title:       render.Replace(a.Title),
		Description: render.Replace(a.Description),
		Status:      st,
		Priority:    prio,
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		DueAt:       ev.OccurredAt.Add(minutes(a.DueOffsetMinutes)),
		AssignTo:    a.AssignTo,
		Tags:        append([]string(nil), a.Tags...),
		Blockers:    blockers,
		RuleID:      r.ID,
		ActionKey:   a.Key,
		CreatedAt:   ev.OccurredAt,
		UpdatedAt:   ev.OccurredAt,
	}
}

// resolveBlockers maps blocker references to task ids. A reference is a
// sibling action key, "ruleID/actionKey", or a task id taken as is.
func resolveBlockers(r models.WorkflowRule, a models.Action, ev Event) []string {
	if len(a.Blockers) == 0 {
		return nil
	}
	out := make([]string, 0, len(a.Blockers))
	seen := make(map[string]struct{}, len(a.Blockers))
	for _, ref := range a.Blockers {
		ref = strings.TrimSpace(ref)
		if ref == "" || ref == a.Key {
			continue
		}
		var id string
		switch {
		case hasAction(r, ref):
			id = TaskID(ev, r.ID, ref)
		case strings.Contains(ref, "/"):
			ruleID, key, _ := strings.Cut(ref, "/")
			id = TaskID(ev, ruleID, key)
		default:
			id = ref
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func hasAction(r models.WorkflowRule, key string) bool {
	for _, a := range r.Actions {
		if a.Key == key {
			return true
		}
	}
	return false
}

func titleRenderer(ev Event) *strings.Replacer {
	loadNumber, customer := ev.EntityID, ""
	if ev.Load != nil {
		if ev.Load.LoadNumber != "" {
			loadNumber = ev.Load.LoadNumber
		}
		customer = ev.Load.CustomerName
	}
	invoiceNumber := ev.EntityID
	if ev.Invoice != nil {
		if ev.Invoice.InvoiceNumber != "" {
			invoiceNumber = ev.Invoice.InvoiceNumber
		}
		customer = ev.Invoice.CustomerName
	}
	return strings.NewReplacer(
		"{loadNumber}", loadNumber,
		"{invoiceNumber}", invoiceNumber,
		"{customer}", customer,
		"{entityId}", ev.EntityID,
	)
}
