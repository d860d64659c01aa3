package workflow

import (
	"testing"
	"time"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type EngineSuite struct {
	suite.Suite
	at   time.Time
	load models.Load
}

func (s *EngineSuite) SetupTest() {
	s.at = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.load = models.Load{ID: "L1", LoadNumber: "LN-100", CustomerName: "Acme", Status: models.LoadStatusDelivered}
}

func (s *EngineSuite) delivered() Event {
	ev := LoadEvent("t1", EventLoadStatusChanged, s.load, s.at)
	ev.PreviousStatus = models.LoadStatusInTransit
	return ev
}

func (s *EngineSuite) TestDeliveredCreatesPODAndBlockedInvoiceTask() {
	tasks := Evaluate(DefaultRules(), s.delivered(), nil)
	s.Require().Len(tasks, 2)

	pod, inv := tasks[0], tasks[1]
	s.Equal(ActionCollectPOD, pod.ActionKey)
	s.Equal(models.TaskPending, pod.Status)
	s.Equal(models.PriorityUrgent, pod.Priority)
	s.Equal("Collect POD for load LN-100", pod.Title)
	s.Equal(s.at.Add(24*time.Hour), pod.DueAt)

	s.Equal(ActionCreateInvoice, inv.ActionKey)
	s.Equal(models.TaskBlocked, inv.Status)
	s.Equal([]string{pod.ID}, inv.Blockers)
	s.Equal("Send invoice to Acme for load LN-100", inv.Title)
	s.Equal(models.EntityLoad, inv.EntityType)
	s.Equal("L1", inv.EntityID)
}

func (s *EngineSuite) TestDeterministic() {
	a := Evaluate(DefaultRules(), s.delivered(), nil)
	b := Evaluate(DefaultRules(), s.delivered(), nil)
	s.Equal(a, b)

	// A later delivery of the same event keeps ids; due dates follow event time.
	later := s.delivered()
	later.OccurredAt = s.at.Add(time.Hour)
	c := Evaluate(DefaultRules(), later, nil)
	s.Equal(a[0].ID, c[0].ID)
	s.Equal(a[0].DueAt.Add(time.Hour), c[0].DueAt)
}

func (s *EngineSuite) TestBlockerCompletedMeansPending() {
	first := Evaluate(DefaultRules(), s.delivered(), nil)
	pod := first[0]
	pod.Status = models.TaskCompleted

	again := Evaluate(DefaultRules(), s.delivered(), []models.Task{pod})
	s.Equal(models.TaskPending, again[1].Status)
}

func (s *EngineSuite) TestFilterAndDisabledRules() {
	ev := s.delivered()
	ev.Load.Status = models.LoadStatusInTransit
	tasks := Evaluate(DefaultRules(), ev, nil)
	s.Require().Len(tasks, 1)
	s.Equal(ActionCheckCall, tasks[0].ActionKey)

	rs := NewRuleSet(nil)
	s.Require().NoError(rs.Disable(RuleInTransit))
	s.Empty(rs.Evaluate(ev, nil))

	s.Require().NoError(rs.Enable(RuleInTransit))
	s.Len(rs.Evaluate(ev, nil), 1)
}

func (s *EngineSuite) TestDocumentFilter() {
	ev := LoadEvent("t1", EventDocumentUploaded, s.load, s.at)
	ev.DocumentType = models.DocumentBillOfLading
	s.Empty(Evaluate(DefaultRules(), ev, nil))

	ev.DocumentType = models.DocumentProofOfDelivery
	tasks := Evaluate(DefaultRules(), ev, nil)
	s.Require().Len(tasks, 1)
	s.Equal(ActionReviewPOD, tasks[0].ActionKey)

	s.Equal([]string{TaskID(s.delivered(), RuleDelivered, ActionCollectPOD)}, Satisfies(ev))
}

func (s *EngineSuite) TestCrossRuleAndRawBlockers() {
	rules := []models.WorkflowRule{{
		ID: "custom", EventType: EventLoadStatusChanged, IsEnabled: true,
		Actions: []models.Action{{
			Key:      "audit",
			Title:    "Audit {entityId}",
			Blockers: []string{RuleDelivered + "/" + ActionCollectPOD, "raw-task", "raw-task", "audit", " "},
		}},
	}}

	tasks := Evaluate(rules, s.delivered(), []models.Task{{ID: "raw-task", Status: models.TaskCompleted}})
	s.Require().Len(tasks, 1)
	s.Equal([]string{TaskID(s.delivered(), RuleDelivered, ActionCollectPOD), "raw-task"}, tasks[0].Blockers)
	s.Equal(models.TaskBlocked, tasks[0].Status)
	s.Equal(models.PriorityMedium, tasks[0].Priority)
	s.Equal("Audit L1", tasks[0].Title)
}

func (s *EngineSuite) TestOverdueInvoiceRule() {
	inv := models.Invoice{ID: "I1", InvoiceNumber: "INV-2024-0001", CustomerName: "Acme"}
	tasks := Evaluate(DefaultRules(), InvoiceEvent("t1", EventInvoiceOverdue, inv, s.at), nil)
	s.Require().Len(tasks, 1)
	s.Equal("Follow up payment of INV-2024-0001 with Acme", tasks[0].Title)
	s.Equal(models.EntityInvoice, tasks[0].EntityType)
	s.Equal("billing", tasks[0].AssignTo)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func TestRuleSet(t *testing.T) {
	rs := NewRuleSet([]models.WorkflowRule{})
	require.Empty(t, rs.Rules())
	require.True(t, errors.Is(rs.Enable("missing"), ErrRuleNotFound))

	rs.Reset()
	require.Equal(t, DefaultRules(), rs.Rules())

	rules := rs.Rules()
	rules[0].IsEnabled = false
	require.True(t, rs.Rules()[0].IsEnabled, "Rules returns a copy")
}

func TestChecklist(t *testing.T) {
	load := models.Load{ID: "L1", Status: models.LoadStatusInTransit, DriverID: "D1",
		Documents: []models.Document{{Type: models.DocumentRateConfirmation}}}

	items := Checklist(load)
	byKey := map[string]ChecklistItem{}
	for _, it := range items {
		byKey[it.Key] = it
	}
	require.Len(t, items, 8)
	require.False(t, byKey["proof-of-delivery"].Required)
	require.False(t, byKey["invoiced"].Required)
	require.True(t, byKey["dispatch"].Done)
	require.True(t, byKey["in-transit"].Done)
	require.True(t, byKey["rate-confirmation"].Done)
	require.False(t, byKey["bill-of-lading"].Done)
	require.False(t, ChecklistComplete(items))

	load.Status = models.LoadStatusDelivered
	load.InvoiceID = "I1"
	load.Documents = append(load.Documents,
		models.Document{Type: models.DocumentBillOfLading},
		models.Document{Type: models.DocumentProofOfDelivery})
	items = Checklist(load)
	require.True(t, items[5].Required)
	require.True(t, items[7].Required)
	require.True(t, ChecklistComplete(items))

	cancelled := Checklist(models.Load{Status: models.LoadStatusCancelled})
	require.True(t, ChecklistComplete(cancelled))
}
