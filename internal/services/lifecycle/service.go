// Package lifecycle reacts to load and invoice transitions: it runs the
// workflow rules, auto-invoices delivered loads and applies task and invoice
// operations, persisting through the repository and announcing the results on
// the ledger topic.
package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/HaulLedger/internal/broker/messages"
	"github.com/BearBump/HaulLedger/internal/metrics"
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/services/invoicing"
	"github.com/BearBump/HaulLedger/internal/services/workflow"
	"github.com/pkg/errors"
)

var ErrInvalidArgument = errors.New("invalid argument")

type Repository interface {
	Snapshot(ctx context.Context, tenantID string) (models.Snapshot, error)
	GetLoad(ctx context.Context, tenantID, id string) (models.Load, error)
	PutLoad(ctx context.Context, tenantID string, l models.Load) error

	GetInvoice(ctx context.Context, tenantID, id string) (models.Invoice, error)
	UpdateInvoice(ctx context.Context, tenantID string, inv models.Invoice, from models.InvoiceStatus) error
	CreateInvoices(ctx context.Context, tenantID string, invoices []models.Invoice, links []models.LoadInvoiceLink) ([]models.Invoice, error)

	InsertTasks(ctx context.Context, tenantID string, tasks []models.Task) ([]models.Task, error)
	GetTask(ctx context.Context, tenantID, id string) (models.Task, error)
	ListTasks(ctx context.Context, tenantID string) ([]models.Task, error)
	UpdateTask(ctx context.Context, tenantID string, t models.Task) (models.Task, error)
	DeleteTask(ctx context.Context, tenantID, id string) error

	GetRules(ctx context.Context, tenantID string) ([]models.WorkflowRule, error)
	SaveRules(ctx context.Context, tenantID string, rules []models.WorkflowRule) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// CacheInvalidator drops derived data of a tenant after its records change.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context, tenantID string) error
}

type Service struct {
	repo     Repository
	producer Producer
	topic    string

	guard       *invoicing.Guard
	invalidator CacheInvalidator

	now func() time.Time
}

func New(repo Repository, producer Producer, topic string) *Service {
	return &Service{
		repo:     repo,
		producer: producer,
		topic:    topic,
		guard:    invoicing.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithGuard(g *invoicing.Guard) *Service {
	if g != nil {
		s.guard = g
	}
	return s
}

func (s *Service) WithCacheInvalidator(c CacheInvalidator) *Service {
	s.invalidator = c
	return s
}

// Outcome is what one event produced.
type Outcome struct {
	Created   []models.Task   `json:"created"`
	Updated   []models.Task   `json:"updated"`
	Invoice   *models.Invoice `json:"invoice,omitempty"`
	SkipNotes []string        `json:"skipNotes,omitempty"`
}

// HandleLoadEvent stores the load carried by msg and runs everything that
// the transition triggers. Redelivery of the same message is harmless: task
// and invoice ids are deterministic and inserts skip existing rows.
func (s *Service) HandleLoadEvent(ctx context.Context, msg messages.LoadChanged) (Outcome, error) {
	tenantID := strings.TrimSpace(msg.TenantID)
	if tenantID == "" {
		return Outcome{}, errors.Wrap(ErrInvalidArgument, "tenant is required")
	}
	if strings.TrimSpace(msg.Load.ID) == "" {
		return Outcome{}, errors.Wrap(ErrInvalidArgument, "load id is required")
	}
	if msg.Type == "" {
		return Outcome{}, errors.Wrap(ErrInvalidArgument, "event type is required")
	}
	at := msg.OccurredAt.UTC()
	if msg.OccurredAt.IsZero() {
		at = s.now()
	}

	snap, err := s.repo.Snapshot(ctx, tenantID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "load snapshot")
	}
	// Load owners do not know the invoice link the ledger set.
	if prev, ok := snap.LoadByID(msg.Load.ID); ok && msg.Load.InvoiceID == "" {
		msg.Load.InvoiceID = prev.InvoiceID
	}
	if err := s.repo.PutLoad(ctx, tenantID, msg.Load); err != nil {
		return Outcome{}, errors.Wrap(err, "put load")
	}
	rs, err := s.ruleSet(ctx, tenantID)
	if err != nil {
		return Outcome{}, err
	}

	ev := workflow.LoadEvent(tenantID, msg.Type, msg.Load, at)
	ev.PreviousStatus = msg.PreviousStatus
	ev.DocumentType = msg.DocumentType

	b := newBoard(snap.Tasks)
	var out Outcome

	created, err := s.createTasks(ctx, rs, ev, b)
	if err != nil {
		return out, err
	}
	out.Created = append(out.Created, created...)
	out.Updated = append(out.Updated, s.autoComplete(ctx, tenantID, satisfiedBy(ev), b, at)...)

	if msg.Load.Status.RevenueEligible() {
		inv, notes, err := s.invoiceLoad(ctx, tenantID, msg.Load, snap.Invoices, at)
		if err != nil {
			return out, err
		}
		out.SkipNotes = append(out.SkipNotes, notes...)
		if inv != nil {
			out.Invoice = inv
			created, err := s.createTasks(ctx, rs, workflow.InvoiceEvent(tenantID, workflow.EventInvoiceCreated, *inv, at), b)
			if err != nil {
				return out, err
			}
			out.Created = append(out.Created, created...)
		}
	}

	s.invalidate(ctx, tenantID)
	return out, nil
}

// HandleEvent runs the rules for an event that was not delivered as a load
// message, such as an invoice the sweeper moved to overdue.
func (s *Service) HandleEvent(ctx context.Context, ev workflow.Event) ([]models.Task, error) {
	if strings.TrimSpace(ev.TenantID) == "" || ev.Type == "" || ev.EntityID == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "event needs tenant, type and entity")
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	existing, err := s.repo.ListTasks(ctx, ev.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	rs, err := s.ruleSet(ctx, ev.TenantID)
	if err != nil {
		return nil, err
	}
	b := newBoard(existing)
	created, err := s.createTasks(ctx, rs, ev, b)
	if err != nil {
		return nil, err
	}
	s.autoComplete(ctx, ev.TenantID, satisfiedBy(ev), b, ev.OccurredAt)
	return created, nil
}

func (s *Service) ruleSet(ctx context.Context, tenantID string) (*workflow.RuleSet, error) {
	rules, err := s.repo.GetRules(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "get rules")
	}
	return workflow.NewRuleSet(rules), nil
}

func (s *Service) createTasks(ctx context.Context, rs *workflow.RuleSet, ev workflow.Event, b *board) ([]models.Task, error) {
	proposed := rs.Evaluate(ev, b.all())
	if len(proposed) == 0 {
		return nil, nil
	}
	inserted, err := s.repo.InsertTasks(ctx, ev.TenantID, proposed)
	if err != nil {
		return nil, errors.Wrap(err, "insert tasks")
	}
	for _, t := range inserted {
		b.put(t)
		metrics.TasksCreated.WithLabelValues(t.RuleID).Inc()
		s.publish(ctx, ev.TenantID, messages.LedgerTaskCreated, models.EntityTask, t.ID, ev.OccurredAt, t)
	}
	return inserted, nil
}

// satisfiedBy lists the tasks closed by the event itself and, for load
// events, by documents the load already carries.
func satisfiedBy(ev workflow.Event) []string {
	out := workflow.Satisfies(ev)
	if ev.Load == nil || ev.Type == workflow.EventDocumentUploaded {
		return out
	}
	for _, d := range ev.Load.Documents {
		docEv := ev
		docEv.Type = workflow.EventDocumentUploaded
		docEv.DocumentType = d.Type
		out = append(out, workflow.Satisfies(docEv)...)
	}
	return out
}

func (s *Service) invoiceLoad(ctx context.Context, tenantID string, load models.Load, existing []models.Invoice, at time.Time) (*models.Invoice, []string, error) {
	inv, err := s.guard.CreateForLoad(tenantID, load, existing, at)
	if err != nil {
		if errors.Is(err, invoicing.ErrDuplicateInvoice) || errors.Is(err, invoicing.ErrLoadNotInvoiceable) {
			slog.Info("load not auto-invoiced", "tenant_id", tenantID, "load_id", load.ID, "reason", err.Error())
			return nil, []string{err.Error()}, nil
		}
		return nil, nil, err
	}
	stored, err := s.repo.CreateInvoices(ctx, tenantID, []models.Invoice{inv}, []models.LoadInvoiceLink{{LoadID: load.ID, InvoiceID: inv.ID}})
	if err != nil {
		return nil, nil, errors.Wrap(err, "create invoice")
	}
	if len(stored) == 0 {
		// Конкурентный sweep уже выставил счёт или занял номер.
		return nil, []string{"invoice claimed concurrently"}, nil
	}
	metrics.InvoicesCreated.Inc()
	created := stored[0]
	s.publish(ctx, tenantID, messages.LedgerInvoiceCreated, models.EntityInvoice, created.ID, at, created)
	return &created, nil, nil
}

func (s *Service) publish(ctx context.Context, tenantID, typ, entityType, entityID string, at time.Time, payload any) {
	if s.producer == nil || s.topic == "" {
		return
	}
	ev, err := messages.NewLedgerEvent(tenantID, typ, entityType, entityID, at, payload)
	if err != nil {
		slog.Error("encode ledger event", "type", typ, "entity_id", entityID, "error", err.Error())
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal ledger event", "type", typ, "entity_id", entityID, "error", err.Error())
		return
	}
	if err := s.producer.Publish(ctx, s.topic, ev.Key(), b); err != nil {
		slog.Error("publish ledger event", "type", typ, "entity_id", entityID, "error", err.Error())
	}
}

func (s *Service) invalidate(ctx context.Context, tenantID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateCache(ctx, tenantID); err != nil {
		slog.Warn("invalidate cache", "tenant_id", tenantID, "error", err.Error())
	}
}
