package models

type RuleFilter struct {
	// LoadStatuses is an allow-list on the subject load status. Empty matches any.
	LoadStatuses []LoadStatus `json:"loadStatuses,omitempty"`
	// DocumentTypes is an allow-list on the uploaded document type. Empty matches any.
	DocumentTypes []string `json:"documentTypes,omitempty"`
}

func (f *RuleFilter) Empty() bool {
	return f == nil || (len(f.LoadStatuses) == 0 && len(f.DocumentTypes) == 0)
}

type Action struct {
	// Key identifies the action within its rule and is what sibling blockers refer to.
	Key              string       `json:"key"`
	Priority         TaskPriority `json:"priority"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	DueOffsetMinutes int          `json:"dueOffsetMinutes"`
	AssignTo         string       `json:"assignTo,omitempty"`
	Tags             []string     `json:"tags,omitempty"`
	Blockers         []string     `json:"blockers,omitempty"`
}

type WorkflowRule struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	EventType string      `json:"eventType"`
	Filter    *RuleFilter `json:"filter,omitempty"`
	IsEnabled bool        `json:"isEnabled"`
	Actions   []Action    `json:"actions"`
}
