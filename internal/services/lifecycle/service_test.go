package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/HaulLedger/internal/broker/messages"
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/services/invoicing"
	"github.com/BearBump/HaulLedger/internal/services/tasks"
	"github.com/BearBump/HaulLedger/internal/services/workflow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

var errNotFound = errors.New("not found")

// memRepo keeps one tenant's records in memory with the storage semantics the
// service relies on: idempotent inserts and version-checked task updates.
type memRepo struct {
	mu       sync.Mutex
	loads    map[string]models.Load
	invoices map[string]models.Invoice
	tasks    map[string]models.Task
	rules    []models.WorkflowRule
}

func newMemRepo() *memRepo {
	return &memRepo{
		loads:    map[string]models.Load{},
		invoices: map[string]models.Invoice{},
		tasks:    map[string]models.Task{},
	}
}

func (r *memRepo) Snapshot(_ context.Context, _ string) (models.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var snap models.Snapshot
	for _, l := range r.loads {
		snap.Loads = append(snap.Loads, l)
	}
	for _, inv := range r.invoices {
		snap.Invoices = append(snap.Invoices, inv)
	}
	for _, t := range r.tasks {
		snap.Tasks = append(snap.Tasks, t)
	}
	snap.Rules = r.rules
	return snap, nil
}

func (r *memRepo) GetLoad(_ context.Context, _, id string) (models.Load, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loads[id]
	if !ok {
		return models.Load{}, errNotFound
	}
	return l, nil
}

func (r *memRepo) PutLoad(_ context.Context, _ string, l models.Load) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads[l.ID] = l
	return nil
}

func (r *memRepo) GetInvoice(_ context.Context, _, id string) (models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return models.Invoice{}, errNotFound
	}
	return inv, nil
}

func (r *memRepo) UpdateInvoice(_ context.Context, _ string, inv models.Invoice, from models.InvoiceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.invoices[inv.ID]
	if !ok {
		return errNotFound
	}
	if cur.Status != from {
		return errors.New("version conflict")
	}
	r.invoices[inv.ID] = inv
	return nil
}

func (r *memRepo) CreateInvoices(_ context.Context, _ string, invoices []models.Invoice, links []models.LoadInvoiceLink) ([]models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Invoice
	for _, inv := range invoices {
		if _, ok := r.invoices[inv.ID]; ok {
			continue
		}
		r.invoices[inv.ID] = inv
		out = append(out, inv)
	}
	for _, ln := range links {
		l := r.loads[ln.LoadID]
		l.InvoiceID = ln.InvoiceID
		r.loads[ln.LoadID] = l
	}
	return out, nil
}

func (r *memRepo) InsertTasks(_ context.Context, _ string, ts []models.Task) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range ts {
		if _, ok := r.tasks[t.ID]; ok {
			continue
		}
		t.Version = 1
		r.tasks[t.ID] = t
		out = append(out, t)
	}
	return out, nil
}

func (r *memRepo) GetTask(_ context.Context, _, id string) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return models.Task{}, errNotFound
	}
	return t, nil
}

func (r *memRepo) ListTasks(_ context.Context, _ string) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (r *memRepo) UpdateTask(_ context.Context, _ string, t models.Task) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tasks[t.ID]
	if !ok {
		return models.Task{}, errNotFound
	}
	if cur.Version != t.Version {
		return models.Task{}, errors.New("version conflict")
	}
	t.Version++
	r.tasks[t.ID] = t
	return t, nil
}

func (r *memRepo) DeleteTask(_ context.Context, _, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return errNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *memRepo) GetRules(_ context.Context, _ string) ([]models.WorkflowRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rules, nil
}

func (r *memRepo) SaveRules(_ context.Context, _ string, rules []models.WorkflowRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = rules
	return nil
}

type mockProducer struct {
	mock.Mock
}

func (m *mockProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	return m.Called(ctx, topic, key, value).Error(0)
}

func (m *mockProducer) types() []string {
	var out []string
	for _, c := range m.Calls {
		var ev messages.LedgerEvent
		if json.Unmarshal(c.Arguments.Get(3).([]byte), &ev) == nil {
			out = append(out, ev.Type)
		}
	}
	return out
}

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) InvalidateCache(ctx context.Context, tenantID string) error {
	return m.Called(ctx, tenantID).Error(0)
}

type LifecycleSuite struct {
	suite.Suite

	repo     *memRepo
	producer *mockProducer
	inval    *mockInvalidator
	svc      *Service
	at       time.Time
	load     models.Load
}

func (s *LifecycleSuite) SetupTest() {
	s.repo = newMemRepo()
	s.producer = &mockProducer{}
	s.producer.On("Publish", mock.Anything, "ledger", mock.Anything, mock.Anything).Return(nil)
	s.inval = &mockInvalidator{}
	s.inval.On("InvalidateCache", mock.Anything, "t1").Return(nil)

	s.at = time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)
	s.svc = New(s.repo, s.producer, "ledger").WithCacheInvalidator(s.inval)
	s.svc.now = func() time.Time { return s.at }

	delivered := s.at
	s.load = models.Load{
		ID: "L1", LoadNumber: "LN-1", CustomerName: "Acme", Status: models.LoadStatusDelivered,
		Rate: decimal.NewFromInt(2000), DeliveryDate: &delivered,
	}
}

func (s *LifecycleSuite) deliver() Outcome {
	out, err := s.svc.HandleLoadEvent(context.Background(), messages.LoadChanged{
		TenantID: "t1", Type: workflow.EventLoadStatusChanged, OccurredAt: s.at,
		Load: s.load, PreviousStatus: models.LoadStatusInTransit,
	})
	s.Require().NoError(err)
	return out
}

func (s *LifecycleSuite) task(key string) models.Task {
	ev := workflow.LoadEvent("t1", workflow.EventLoadStatusChanged, s.load, s.at)
	t, err := s.repo.GetTask(context.Background(), "t1", workflow.TaskID(ev, workflow.RuleDelivered, key))
	s.Require().NoError(err)
	return t
}

func (s *LifecycleSuite) TestDeliveredLoad_CreatesTasksAndInvoice() {
	out := s.deliver()

	s.Require().Len(out.Created, 2)
	s.Equal(models.TaskPending, s.task(workflow.ActionCollectPOD).Status)
	s.Equal(models.TaskBlocked, s.task(workflow.ActionCreateInvoice).Status)

	s.Require().NotNil(out.Invoice)
	s.Equal("INV-2024-0001", out.Invoice.InvoiceNumber)
	s.Equal("2000", out.Invoice.Amount.String())

	l, err := s.repo.GetLoad(context.Background(), "t1", "L1")
	s.Require().NoError(err)
	s.Equal(out.Invoice.ID, l.InvoiceID)

	s.ElementsMatch([]string{messages.LedgerTaskCreated, messages.LedgerTaskCreated, messages.LedgerInvoiceCreated}, s.producer.types())
	s.inval.AssertCalled(s.T(), "InvalidateCache", mock.Anything, "t1")
}

func (s *LifecycleSuite) TestRedelivery_IsIdempotent() {
	first := s.deliver()
	s.Require().NotNil(first.Invoice)

	// A redelivered message carries the load as it was before the invoice link.
	second := s.deliver()
	s.Empty(second.Created)
	s.Nil(second.Invoice)
	s.Len(s.repo.invoices, 1)
	s.Len(s.repo.tasks, 2)

	l, err := s.repo.GetLoad(context.Background(), "t1", "L1")
	s.Require().NoError(err)
	s.Equal(first.Invoice.ID, l.InvoiceID)
}

func (s *LifecycleSuite) TestPODUpload_CompletesAndUnblocks() {
	s.deliver()

	s.load.Documents = []models.Document{{ID: "D1", Type: models.DocumentProofOfDelivery, UploadedAt: s.at}}
	out, err := s.svc.HandleLoadEvent(context.Background(), messages.LoadChanged{
		TenantID: "t1", Type: workflow.EventDocumentUploaded, OccurredAt: s.at.Add(time.Hour),
		Load: s.load, DocumentType: models.DocumentProofOfDelivery,
	})
	s.Require().NoError(err)

	s.Equal(models.TaskCompleted, s.task(workflow.ActionCollectPOD).Status)
	inv := s.task(workflow.ActionCreateInvoice)
	s.Equal(models.TaskPending, inv.Status)
	s.Len(out.Updated, 2)
	// review-pod fires on the upload itself.
	s.Len(out.Created, 1)
	s.Equal(workflow.ActionReviewPOD, out.Created[0].ActionKey)
}

func (s *LifecycleSuite) TestDeliveredWithPODOnFile_CompletesImmediately() {
	s.load.Documents = []models.Document{{ID: "D1", Type: models.DocumentProofOfDelivery, UploadedAt: s.at}}
	s.deliver()

	s.Equal(models.TaskCompleted, s.task(workflow.ActionCollectPOD).Status)
	s.Equal(models.TaskPending, s.task(workflow.ActionCreateInvoice).Status)
}

func (s *LifecycleSuite) TestCompleteTask_BlockedThenUnblocked() {
	s.deliver()
	ctx := context.Background()

	_, err := s.svc.CompleteTask(ctx, "t1", s.task(workflow.ActionCreateInvoice).ID)
	var be *tasks.BlockedTaskError
	s.Require().ErrorAs(err, &be)
	s.Equal([]string{s.task(workflow.ActionCollectPOD).ID}, be.Pending)

	pod, err := s.svc.CompleteTask(ctx, "t1", s.task(workflow.ActionCollectPOD).ID)
	s.Require().NoError(err)
	s.Equal(models.TaskCompleted, pod.Status)
	s.Equal(models.TaskPending, s.task(workflow.ActionCreateInvoice).Status)

	done, err := s.svc.CompleteTask(ctx, "t1", s.task(workflow.ActionCreateInvoice).ID)
	s.Require().NoError(err)
	s.Equal(models.TaskCompleted, done.Status)
	s.Len(done.History, 2)

	_, err = s.svc.StartTask(ctx, "t1", done.ID)
	s.Require().ErrorIs(err, tasks.ErrTerminalTask)
}

func (s *LifecycleSuite) TestStartAndCancel() {
	s.deliver()
	ctx := context.Background()

	started, err := s.svc.StartTask(ctx, "t1", s.task(workflow.ActionCollectPOD).ID)
	s.Require().NoError(err)
	s.Equal(models.TaskInProgress, started.Status)

	cancelled, err := s.svc.CancelTask(ctx, "t1", started.ID)
	s.Require().NoError(err)
	s.Equal(models.TaskCancelled, cancelled.Status)
	// A cancelled blocker never clears.
	s.Equal(models.TaskBlocked, s.task(workflow.ActionCreateInvoice).Status)

	_, err = s.svc.StartTask(ctx, "t1", "missing")
	s.Require().ErrorIs(err, errNotFound)
}

func (s *LifecycleSuite) TestDeleteTask_ReblocksDependents() {
	s.deliver()
	ctx := context.Background()
	podID := s.task(workflow.ActionCollectPOD).ID

	_, err := s.svc.CompleteTask(ctx, "t1", podID)
	s.Require().NoError(err)
	s.Equal(models.TaskPending, s.task(workflow.ActionCreateInvoice).Status)

	s.Require().NoError(s.svc.DeleteTask(ctx, "t1", podID))
	s.Equal(models.TaskBlocked, s.task(workflow.ActionCreateInvoice).Status)

	s.Require().ErrorIs(s.svc.DeleteTask(ctx, "t1", podID), errNotFound)
}

func (s *LifecycleSuite) TestListTasks_Filter() {
	s.deliver()
	ts, err := s.svc.ListTasks(context.Background(), "t1", TaskFilter{Status: models.TaskBlocked})
	s.Require().NoError(err)
	s.Require().Len(ts, 1)
	s.Equal(workflow.ActionCreateInvoice, ts[0].ActionKey)

	ts, err = s.svc.ListTasks(context.Background(), "t1", TaskFilter{EntityType: models.EntityLoad, EntityID: "other"})
	s.Require().NoError(err)
	s.Empty(ts)
}

func (s *LifecycleSuite) TestRules_DisableEnableReset() {
	ctx := context.Background()

	rules, err := s.svc.ListRules(ctx, "t1")
	s.Require().NoError(err)
	s.Len(rules, len(workflow.DefaultRules()))

	_, err = s.svc.SetRuleEnabled(ctx, "t1", workflow.RuleDelivered, false)
	s.Require().NoError(err)
	out := s.deliver()
	s.Empty(out.Created)
	s.NotNil(out.Invoice)

	_, err = s.svc.SetRuleEnabled(ctx, "t1", "nope", true)
	s.Require().ErrorIs(err, workflow.ErrRuleNotFound)

	rules, err = s.svc.ResetRules(ctx, "t1")
	s.Require().NoError(err)
	s.Equal(workflow.DefaultRules(), rules)
	s.Equal(workflow.DefaultRules(), s.repo.rules)
}

func (s *LifecycleSuite) TestMarkInvoicePaid() {
	out := s.deliver()
	ctx := context.Background()

	paid, err := s.svc.MarkInvoicePaid(ctx, "t1", out.Invoice.ID, invoicing.Payment{Method: "ach", Reference: "R-1"})
	s.Require().NoError(err)
	s.Equal(models.InvoiceStatusPaid, paid.Status)
	s.Equal(s.at, *paid.PaidAt)
	s.Contains(s.producer.types(), messages.LedgerInvoicePaid)

	_, err = s.svc.MarkInvoicePaid(ctx, "t1", out.Invoice.ID, invoicing.Payment{})
	s.Require().ErrorIs(err, invoicing.ErrInvoiceAlreadyPaid)

	_, err = s.svc.CorrectInvoiceStatus(ctx, "t1", out.Invoice.ID, models.InvoiceStatusPending)
	s.Require().ErrorIs(err, invoicing.ErrInvoiceAlreadyPaid)
}

func (s *LifecycleSuite) TestHandleEvent_OverdueFollowUp() {
	out := s.deliver()
	inv := *out.Invoice
	inv.Status = models.InvoiceStatusOverdue

	created, err := s.svc.HandleEvent(context.Background(), workflow.InvoiceEvent("t1", workflow.EventInvoiceOverdue, inv, s.at))
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	s.Equal(workflow.ActionFollowUpPayment, created[0].ActionKey)
	s.Equal("Follow up payment of INV-2024-0001 with Acme", created[0].Title)

	again, err := s.svc.HandleEvent(context.Background(), workflow.InvoiceEvent("t1", workflow.EventInvoiceOverdue, inv, s.at))
	s.Require().NoError(err)
	s.Empty(again)
}

func (s *LifecycleSuite) TestNotInvoiceable_IsNoted() {
	s.load.CustomerName = ""
	out := s.deliver()
	s.Nil(out.Invoice)
	s.Len(out.SkipNotes, 1)
}

func (s *LifecycleSuite) TestValidation() {
	ctx := context.Background()
	_, err := s.svc.HandleLoadEvent(ctx, messages.LoadChanged{Type: workflow.EventLoadCreated, Load: s.load})
	s.Require().ErrorIs(err, ErrInvalidArgument)
	_, err = s.svc.HandleLoadEvent(ctx, messages.LoadChanged{TenantID: "t1", Type: workflow.EventLoadCreated})
	s.Require().ErrorIs(err, ErrInvalidArgument)
	_, err = s.svc.HandleLoadEvent(ctx, messages.LoadChanged{TenantID: "t1", Load: s.load})
	s.Require().ErrorIs(err, ErrInvalidArgument)
	_, err = s.svc.HandleEvent(ctx, workflow.Event{TenantID: "t1"})
	s.Require().ErrorIs(err, ErrInvalidArgument)
}

func (s *LifecycleSuite) TestPublishFailureDoesNotFail() {
	p := &mockProducer{}
	p.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("kafka down"))
	s.svc.producer = p

	out := s.deliver()
	s.Len(out.Created, 2)
	s.NotNil(out.Invoice)
}

func (s *LifecycleSuite) TestLoadChecklist() {
	s.deliver()
	items, err := s.svc.LoadChecklist(context.Background(), "t1", "L1")
	s.Require().NoError(err)
	s.False(workflow.ChecklistComplete(items))
	for _, it := range items {
		if it.Key == "invoiced" {
			s.True(it.Required)
			s.True(it.Done)
		}
	}
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}
