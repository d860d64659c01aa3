package models

import "time"

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether no transition may leave the status.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// Entity types a task can be about.
const (
	EntityLoad    = "load"
	EntityInvoice = "invoice"
	EntityDriver  = "driver"
)

// EntityTask marks ledger events about tasks themselves.
const EntityTask = "task"

type TaskTransition struct {
	From TaskStatus `json:"from"`
	To   TaskStatus `json:"to"`
	At   time.Time  `json:"at"`
}

type Task struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenantId,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`

	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`

	DueAt    time.Time `json:"dueAt"`
	AssignTo string    `json:"assignTo,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	// Blockers are ids of tasks that must be completed first.
	Blockers []string `json:"blockers,omitempty"`

	RuleID    string `json:"ruleId,omitempty"`
	ActionKey string `json:"actionKey,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	History []TaskTransition `json:"history,omitempty"`

	// Version is the optimistic concurrency token maintained by storage.
	Version int64 `json:"version"`
}
