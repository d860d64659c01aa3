package workflow

import (
	"time"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/pkg/errors"
)

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

// Rule and action keys of the default rule set.
const (
	RuleDriverAssignment = "driver-assignment"
	RuleDispatch         = "dispatch"
	RuleBillOfLading     = "bill-of-lading"
	RuleInTransit        = "in-transit"
	RuleDelivered        = "delivered"
	RuleReviewPOD        = "review-pod"
	RuleOverdueInvoice   = "overdue-invoice"

	ActionAssignDriver     = "assign-driver"
	ActionDispatch         = "dispatch"
	ActionRateConfirmation = "rate-confirmation"
	ActionCollectBOL       = "collect-bol"
	ActionCheckCall        = "check-call"
	ActionCollectPOD       = "collect-pod"
	ActionCreateInvoice    = "create-invoice"
	ActionReviewPOD        = "review-pod"
	ActionFollowUpPayment  = "follow-up-payment"
)

const (
	hour = 60
	day  = 24 * hour
)

// DefaultRules drive the load lifecycle checklist.
func DefaultRules() []models.WorkflowRule {
	return []models.WorkflowRule{
		{
			ID: RuleDriverAssignment, Name: "Assign a driver", EventType: EventLoadCreated, IsEnabled: true,
			Actions: []models.Action{{
				Key: ActionAssignDriver, Priority: models.PriorityHigh, DueOffsetMinutes: hour,
				Title: "Assign driver to load {loadNumber}", AssignTo: "dispatch", Tags: []string{"dispatch"},
			}},
		},
		{
			ID: RuleDispatch, Name: "Dispatch the load", EventType: EventDriverAssigned, IsEnabled: true,
			Actions: []models.Action{
				{
					Key: ActionDispatch, Priority: models.PriorityHigh, DueOffsetMinutes: 2 * hour,
					Title: "Dispatch load {loadNumber}", AssignTo: "dispatch", Tags: []string{"dispatch"},
				},
				{
					Key: ActionRateConfirmation, Priority: models.PriorityHigh, DueOffsetMinutes: 4 * hour,
					Title: "Upload rate confirmation for load {loadNumber}", Tags: []string{"documents"},
				},
			},
		},
		{
			ID: RuleBillOfLading, Name: "Collect bill of lading", EventType: EventLoadStatusChanged, IsEnabled: true,
			Filter: &models.RuleFilter{LoadStatuses: []models.LoadStatus{models.LoadStatusDispatched}},
			Actions: []models.Action{{
				Key: ActionCollectBOL, Priority: models.PriorityMedium, DueOffsetMinutes: day,
				Title: "Collect BOL for load {loadNumber}", Tags: []string{"documents"},
			}},
		},
		{
			ID: RuleInTransit, Name: "In transit check call", EventType: EventLoadStatusChanged, IsEnabled: true,
			Filter: &models.RuleFilter{LoadStatuses: []models.LoadStatus{models.LoadStatusInTransit}},
			Actions: []models.Action{{
				Key: ActionCheckCall, Priority: models.PriorityMedium, DueOffsetMinutes: 4 * hour,
				Title: "Check call for load {loadNumber}", AssignTo: "dispatch",
			}},
		},
		{
			ID: RuleDelivered, Name: "Close out delivered load", EventType: EventLoadStatusChanged, IsEnabled: true,
			Filter: &models.RuleFilter{LoadStatuses: []models.LoadStatus{models.LoadStatusDelivered, models.LoadStatusCompleted}},
			Actions: []models.Action{
				{
					Key: ActionCollectPOD, Priority: models.PriorityUrgent, DueOffsetMinutes: day,
					Title: "Collect POD for load {loadNumber}", Tags: []string{"documents"},
				},
				{
					Key: ActionCreateInvoice, Priority: models.PriorityHigh, DueOffsetMinutes: 2 * day,
					Title: "Send invoice to {customer} for load {loadNumber}", AssignTo: "billing",
					Tags: []string{"billing"}, Blockers: []string{ActionCollectPOD},
				},
			},
		},
		{
			ID: RuleReviewPOD, Name: "Review uploaded POD", EventType: EventDocumentUploaded, IsEnabled: true,
			Filter: &models.RuleFilter{DocumentTypes: []string{models.DocumentProofOfDelivery}},
			Actions: []models.Action{{
				Key: ActionReviewPOD, Priority: models.PriorityHigh, DueOffsetMinutes: 4 * hour,
				Title: "Review POD for load {loadNumber}", AssignTo: "billing", Tags: []string{"documents"},
			}},
		},
		{
			ID: RuleOverdueInvoice, Name: "Follow up overdue invoice", EventType: EventInvoiceOverdue, IsEnabled: true,
			Actions: []models.Action{{
				Key: ActionFollowUpPayment, Priority: models.PriorityHigh, DueOffsetMinutes: day,
				Title: "Follow up payment of {invoiceNumber} with {customer}", AssignTo: "billing", Tags: []string{"billing", "collections"},
			}},
		},
	}
}

// Satisfies lists the default-rule tasks an event completes, such as an
// uploaded POD closing the POD collection task of the same load.
func Satisfies(ev Event) []string {
	if ev.Type != EventDocumentUploaded {
		return nil
	}
	var ruleID, key string
	switch ev.DocumentType {
	case models.DocumentProofOfDelivery:
		ruleID, key = RuleDelivered, ActionCollectPOD
	case models.DocumentBillOfLading:
		ruleID, key = RuleBillOfLading, ActionCollectBOL
	case models.DocumentRateConfirmation:
		ruleID, key = RuleDispatch, ActionRateConfirmation
	default:
		return nil
	}
	return []string{TaskID(ev, ruleID, key)}
}

// RuleSet is a tenant's rule configuration. It is loaded and saved by the caller.
type RuleSet struct {
	rules []models.WorkflowRule
}

// NewRuleSet wraps stored rules. A nil slice means the tenant never saved
// any and gets the defaults.
func NewRuleSet(rules []models.WorkflowRule) *RuleSet {
	if rules == nil {
		return &RuleSet{rules: DefaultRules()}
	}
	return &RuleSet{rules: append([]models.WorkflowRule(nil), rules...)}
}

func (s *RuleSet) set(id string, enabled bool) error {
	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules[i].IsEnabled = enabled
			return nil
		}
	}
	return errors.Wrapf(ErrRuleNotFound, "rule %q", id)
}

func (s *RuleSet) Enable(id string) error  { return s.set(id, true) }
func (s *RuleSet) Disable(id string) error { return s.set(id, false) }

// Reset restores the default rules.
func (s *RuleSet) Reset() { s.rules = DefaultRules() }

func (s *RuleSet) Rules() []models.WorkflowRule {
	return append([]models.WorkflowRule(nil), s.rules...)
}

func (s *RuleSet) Evaluate(ev Event, existing []models.Task) []models.Task {
	return Evaluate(s.rules, ev, existing)
}
