// Package sweeper periodically reconciles every tenant: it auto-invoices
// delivered loads and moves past-due invoices to overdue.
package sweeper

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/HaulLedger/internal/broker/messages"
	"github.com/BearBump/HaulLedger/internal/metrics"
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/services/invoicing"
	"github.com/BearBump/HaulLedger/internal/services/workflow"
	"github.com/pkg/errors"
)

type Repository interface {
	ListTenants(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context, tenantID string) (models.Snapshot, error)
	CreateInvoices(ctx context.Context, tenantID string, invoices []models.Invoice, links []models.LoadInvoiceLink) ([]models.Invoice, error)
	ApplyInvoiceStatus(ctx context.Context, tenantID string, upd models.InvoiceStatusUpdate) (bool, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error)
}

// EventSink receives the invoice events a sweep produces.
type EventSink interface {
	HandleEvent(ctx context.Context, ev workflow.Event) ([]models.Task, error)
}

type CacheInvalidator interface {
	InvalidateCache(ctx context.Context, tenantID string) error
}

type Sweeper struct {
	repo     Repository
	producer Producer
	locker   Locker
	topic    string

	guard       *invoicing.Guard
	sink        EventSink
	invalidator CacheInvalidator

	interval    time.Duration
	concurrency int
	lockTTL     time.Duration

	now       func() time.Time
	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalSwept          atomic.Int64
	totalCreated        atomic.Int64
	totalOverdue        atomic.Int64
	totalLocked         atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, producer Producer, locker Locker, topic string) *Sweeper {
	return &Sweeper{
		repo: repo, producer: producer, locker: locker, topic: topic,
		guard:             invoicing.New(),
		interval:          time.Minute,
		concurrency:       4,
		lockTTL:           2 * time.Minute,
		now:               func() time.Time { return time.Now().UTC() },
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (s *Sweeper) WithSettings(interval time.Duration, concurrency int, lockTTL time.Duration) *Sweeper {
	if interval > 0 {
		s.interval = interval
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	if lockTTL > 0 {
		s.lockTTL = lockTTL
	}
	return s
}

func (s *Sweeper) WithGuard(g *invoicing.Guard) *Sweeper {
	if g != nil {
		s.guard = g
	}
	return s
}

func (s *Sweeper) WithEventSink(sink EventSink) *Sweeper {
	s.sink = sink
	return s
}

func (s *Sweeper) WithCacheInvalidator(c CacheInvalidator) *Sweeper {
	s.invalidator = c
	return s
}

// WithClock replaces the wall clock used to date invoices and judge overdue.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// Trigger forces an immediate sweep (best-effort, non-blocking).
func (s *Sweeper) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalSwept    int64      `json:"totalSwept"`
	TotalCreated  int64      `json:"totalInvoicesCreated"`
	TotalOverdue  int64      `json:"totalInvoicesOverdue"`
	TotalLocked   int64      `json:"totalLocked"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	LastError     string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalSwept:   s.totalSwept.Load(),
		TotalCreated: s.totalCreated.Load(),
		TotalOverdue: s.totalOverdue.Load(),
		TotalLocked:  s.totalLocked.Load(),
		TotalErrors:  s.totalErrors.Load(),
		InFlight:     s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Sweeper) setLastError(err error) {
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	s.lastCycleUnixNano.Store(s.now().UnixNano())

	tenants, err := s.repo.ListTenants(ctx)
	if err != nil {
		slog.Error("list tenants", "error", err.Error())
		s.totalErrors.Add(1)
		s.setLastError(err)
		return
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, tenantID := range tenants {
		tenantID := tenantID
		sem <- struct{}{}
		wg.Add(1)
		s.inFlight.Add(1)
		go func() {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if _, err := s.SweepTenant(ctx, tenantID); err != nil {
				s.totalErrors.Add(1)
				s.setLastError(err)
				slog.Error("sweep tenant", "tenant_id", tenantID, "error", err.Error())
			}
		}()
	}
	wg.Wait()
}

// Report is the outcome of one tenant sweep.
type Report struct {
	TenantID string           `json:"tenantId"`
	Locked   bool             `json:"locked,omitempty"`
	Created  []models.Invoice `json:"created,omitempty"`
	Overdue  []string         `json:"overdue,omitempty"`
	Skipped  []invoicing.Skip `json:"skipped,omitempty"`
}

func lockKey(tenantID string) string {
	return "lock:sweep:" + tenantID
}

// SweepTenant reconciles one tenant under its sweep lock. A tenant locked by
// another worker is reported as Locked and left alone.
func (s *Sweeper) SweepTenant(ctx context.Context, tenantID string) (Report, error) {
	rep := Report{TenantID: tenantID}
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, lockKey(tenantID), s.lockTTL)
		if err != nil {
			metrics.SweepRuns.WithLabelValues("error").Inc()
			return rep, err
		}
		if !ok {
			s.totalLocked.Add(1)
			metrics.SweepRuns.WithLabelValues("locked").Inc()
			rep.Locked = true
			return rep, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("release sweep lock", "tenant_id", tenantID, "error", err.Error())
			}
		}()
	}

	if err := s.sweep(ctx, tenantID, &rep); err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return rep, err
	}
	s.totalSwept.Add(1)
	metrics.SweepRuns.WithLabelValues("ok").Inc()
	if len(rep.Created) > 0 || len(rep.Overdue) > 0 {
		s.invalidate(ctx, tenantID)
	}
	return rep, nil
}

func (s *Sweeper) sweep(ctx context.Context, tenantID string, rep *Report) error {
	snap, err := s.repo.Snapshot(ctx, tenantID)
	if err != nil {
		return errors.Wrap(err, "load snapshot")
	}
	now := s.now()
	res := s.guard.Reconcile(tenantID, snap.Loads, snap.Invoices, now)
	rep.Skipped = res.Skipped
	for _, sk := range res.Skipped {
		slog.Warn("sweep skipped record", "tenant_id", tenantID, "load_id", sk.LoadID, "invoice_id", sk.InvoiceID, "reason", sk.Reason)
	}

	if len(res.NewInvoices) > 0 {
		created, err := s.repo.CreateInvoices(ctx, tenantID, res.NewInvoices, res.LoadLinks)
		if err != nil {
			return errors.Wrap(err, "create invoices")
		}
		rep.Created = created
		s.totalCreated.Add(int64(len(created)))
		metrics.InvoicesCreated.Add(float64(len(created)))
		for _, inv := range created {
			s.publish(ctx, tenantID, messages.LedgerInvoiceCreated, inv, now)
			s.notify(ctx, tenantID, workflow.EventInvoiceCreated, inv, now)
		}
	}

	var applied []models.InvoiceStatusUpdate
	for _, upd := range res.StatusUpdates {
		ok, err := s.repo.ApplyInvoiceStatus(ctx, tenantID, upd)
		if err != nil {
			return errors.Wrapf(err, "apply status of invoice %s", upd.InvoiceID)
		}
		// Another writer changed the invoice first; the next sweep re-evaluates it.
		if !ok {
			continue
		}
		applied = append(applied, upd)
	}
	if len(applied) == 0 {
		return nil
	}

	s.totalOverdue.Add(int64(len(applied)))
	metrics.InvoicesOverdue.Add(float64(len(applied)))
	touched := make(map[string]struct{}, len(applied))
	for _, u := range applied {
		touched[u.InvoiceID] = struct{}{}
	}
	for _, inv := range invoicing.Apply(snap.Invoices, applied) {
		if _, ok := touched[inv.ID]; !ok {
			continue
		}
		rep.Overdue = append(rep.Overdue, inv.ID)
		s.publish(ctx, tenantID, messages.LedgerInvoiceOverdue, inv, now)
		s.notify(ctx, tenantID, workflow.EventInvoiceOverdue, inv, now)
	}
	return nil
}

// notify runs tenant rules for an invoice event. A failing rule does not undo the sweep.
func (s *Sweeper) notify(ctx context.Context, tenantID, typ string, inv models.Invoice, at time.Time) {
	if s.sink == nil {
		return
	}
	if _, err := s.sink.HandleEvent(ctx, workflow.InvoiceEvent(tenantID, typ, inv, at)); err != nil {
		slog.Error("invoice event", "type", typ, "tenant_id", tenantID, "invoice_id", inv.ID, "error", err.Error())
	}
}

func (s *Sweeper) publish(ctx context.Context, tenantID, typ string, inv models.Invoice, at time.Time) {
	if s.producer == nil || s.topic == "" {
		return
	}
	ev, err := messages.NewLedgerEvent(tenantID, typ, models.EntityInvoice, inv.ID, at, inv)
	if err != nil {
		slog.Error("encode ledger event", "type", typ, "invoice_id", inv.ID, "error", err.Error())
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal ledger event", "type", typ, "invoice_id", inv.ID, "error", err.Error())
		return
	}
	if err := s.producer.Publish(ctx, s.topic, ev.Key(), b); err != nil {
		slog.Error("publish ledger event", "type", typ, "invoice_id", inv.ID, "error", err.Error())
	}
}

func (s *Sweeper) invalidate(ctx context.Context, tenantID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateCache(ctx, tenantID); err != nil {
		slog.Warn("invalidate cache", "tenant_id", tenantID, "error", err.Error())
	}
}
