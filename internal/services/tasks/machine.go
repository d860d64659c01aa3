// Package tasks owns task status transitions and blocker resolution.
package tasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrTerminalTask      = errors.New("task is completed or cancelled")
	ErrInvalidTransition = errors.New("invalid task transition")
)

// BlockedTaskError is returned when a task cannot leave blocked because some
// of its blockers are not completed.
type BlockedTaskError struct {
	TaskID  string
	Pending []string
}

func (e *BlockedTaskError) Error() string {
	return fmt.Sprintf("task %s is blocked by %s", e.TaskID, strings.Join(e.Pending, ", "))
}

// Lookup reports the status of a task by id.
type Lookup func(id string) (models.TaskStatus, bool)

// LookupFrom indexes tasks by id.
func LookupFrom(tasks []models.Task) Lookup {
	m := make(map[string]models.TaskStatus, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t.Status
	}
	return func(id string) (models.TaskStatus, bool) {
		st, ok := m[id]
		return st, ok
	}
}

// PendingBlockers lists blockers that are not completed. A blocker that is
// missing or cancelled never clears.
func PendingBlockers(t models.Task, lookup Lookup) []string {
	var out []string
	for _, b := range t.Blockers {
		var st models.TaskStatus
		ok := false
		if lookup != nil {
			st, ok = lookup(b)
		}
		if !ok || st != models.TaskCompleted {
			out = append(out, b)
		}
	}
	return out
}

func blocked(t models.Task, lookup Lookup) error {
	if p := PendingBlockers(t, lookup); len(p) > 0 {
		return &BlockedTaskError{TaskID: t.ID, Pending: p}
	}
	return nil
}

// Transition moves the task to status to. The returned task carries the new
// status with the transition appended to its history.
func Transition(t models.Task, to models.TaskStatus, now time.Time, lookup Lookup) (models.Task, error) {
	from := t.Status
	if from.Terminal() {
		return t, errors.Wrapf(ErrTerminalTask, "task %s is %s", t.ID, from)
	}
	invalid := errors.Wrapf(ErrInvalidTransition, "task %s: %s -> %s", t.ID, from, to)

	switch to {
	case models.TaskCancelled:
	case models.TaskCompleted:
		if from == models.TaskBlocked {
			if err := blocked(t, lookup); err != nil {
				return t, err
			}
		}
	case models.TaskInProgress:
		if from != models.TaskPending && from != models.TaskBlocked {
			return t, invalid
		}
		if err := blocked(t, lookup); err != nil {
			return t, err
		}
	case models.TaskPending:
		if from != models.TaskInProgress && from != models.TaskBlocked {
			return t, invalid
		}
		if err := blocked(t, lookup); err != nil {
			return t, err
		}
	case models.TaskBlocked:
		if from != models.TaskPending && from != models.TaskInProgress {
			return t, invalid
		}
		if len(PendingBlockers(t, lookup)) == 0 {
			return t, invalid
		}
	default:
		return t, invalid
	}
	return apply(t, to, now), nil
}

func apply(t models.Task, to models.TaskStatus, now time.Time) models.Task {
	now = now.UTC()
	t.History = append(append([]models.TaskTransition(nil), t.History...), models.TaskTransition{From: t.Status, To: to, At: now})
	t.Status = to
	t.UpdatedAt = now
	switch to {
	case models.TaskCompleted:
		t.CompletedAt = &now
	case models.TaskCancelled:
		t.CancelledAt = &now
	}
	return t
}

func Start(t models.Task, now time.Time, lookup Lookup) (models.Task, error) {
	return Transition(t, models.TaskInProgress, now, lookup)
}

// Complete succeeds from pending or in_progress. From blocked it fails with
// *BlockedTaskError until every blocker is completed.
func Complete(t models.Task, now time.Time, lookup Lookup) (models.Task, error) {
	return Transition(t, models.TaskCompleted, now, lookup)
}

func Cancel(t models.Task, now time.Time) (models.Task, error) {
	return Transition(t, models.TaskCancelled, now, nil)
}

func Block(t models.Task, now time.Time, lookup Lookup) (models.Task, error) {
	return Transition(t, models.TaskBlocked, now, lookup)
}

// Refresh re-derives blocked or pending from the current blocker statuses.
// It reports whether the task changed.
func Refresh(t models.Task, now time.Time, lookup Lookup) (models.Task, bool) {
	if t.Status.Terminal() {
		return t, false
	}
	pending := len(PendingBlockers(t, lookup)) > 0
	switch {
	case t.Status == models.TaskBlocked && !pending:
		return apply(t, models.TaskPending, now), true
	case t.Status != models.TaskBlocked && pending:
		return apply(t, models.TaskBlocked, now), true
	default:
		return t, false
	}
}

// Dependents returns the tasks that list id as a blocker.
func Dependents(id string, all []models.Task) []models.Task {
	var out []models.Task
	for _, t := range all {
		for _, b := range t.Blockers {
			if b == id {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
