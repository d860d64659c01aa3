// Package memledger is an in-process record store with the same contract as
// pgledger. ledgerctl runs sweeps over it and tests use it as a fake.
package memledger

import (
	"context"
	"sort"
	"sync"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/storage"
	"github.com/pkg/errors"
)

type tenantData struct {
	loads       map[string]models.Load
	drivers     map[string]models.Driver
	settlements map[string]models.Settlement
	expenses    map[string]models.Expense
	factoring   map[string]models.FactoringCompany
	invoices    map[string]models.Invoice
	tasks       map[string]models.Task
	rules       []models.WorkflowRule
	rulesSaved  bool
}

func newTenantData() *tenantData {
	return &tenantData{
		loads:       map[string]models.Load{},
		drivers:     map[string]models.Driver{},
		settlements: map[string]models.Settlement{},
		expenses:    map[string]models.Expense{},
		factoring:   map[string]models.FactoringCompany{},
		invoices:    map[string]models.Invoice{},
		tasks:       map[string]models.Task{},
	}
}

type Storage struct {
	mu      sync.Mutex
	tenants map[string]*tenantData
}

func New() *Storage {
	return &Storage{tenants: map[string]*tenantData{}}
}

// FromSnapshot seeds a store with one tenant's records.
func FromSnapshot(tenantID string, snap models.Snapshot) *Storage {
	s := New()
	t := s.tenant(tenantID)
	for _, v := range snap.Loads {
		t.loads[v.ID] = v
	}
	for _, v := range snap.Drivers {
		t.drivers[v.ID] = v
	}
	for _, v := range snap.Settlements {
		t.settlements[v.ID] = v
	}
	for _, v := range snap.Expenses {
		t.expenses[v.ID] = v
	}
	for _, v := range snap.FactoringCompanies {
		t.factoring[v.ID] = v
	}
	for _, v := range snap.Invoices {
		t.invoices[v.ID] = v
	}
	for _, v := range snap.Tasks {
		if v.Version == 0 {
			v.Version = 1
		}
		t.tasks[v.ID] = v
	}
	if snap.Rules != nil {
		t.rules = snap.Rules
		t.rulesSaved = true
	}
	return s
}

// tenant must be called with mu held, or before the store is shared.
func (s *Storage) tenant(id string) *tenantData {
	t, ok := s.tenants[id]
	if !ok {
		t = newTenantData()
		s.tenants[id] = t
	}
	return t
}

func sortedValues[T any](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func (s *Storage) ListTenants(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Storage) Snapshot(ctx context.Context, tenantID string) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(tenantID)
	snap := models.Snapshot{
		Loads:              sortedValues(t.loads),
		Drivers:            sortedValues(t.drivers),
		Settlements:        sortedValues(t.settlements),
		Expenses:           sortedValues(t.expenses),
		Invoices:           sortedValues(t.invoices),
		FactoringCompanies: sortedValues(t.factoring),
		Tasks:              sortedValues(t.tasks),
	}
	if t.rulesSaved {
		snap.Rules = append([]models.WorkflowRule{}, t.rules...)
	}
	return snap, nil
}

func (s *Storage) PutLoad(ctx context.Context, tenantID string, l models.Load) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant(tenantID).loads[l.ID] = l
	return nil
}

func (s *Storage) PutDriver(ctx context.Context, tenantID string, d models.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant(tenantID).drivers[d.ID] = d
	return nil
}

func (s *Storage) PutSettlement(ctx context.Context, tenantID string, st models.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant(tenantID).settlements[st.ID] = st
	return nil
}

func (s *Storage) PutExpense(ctx context.Context, tenantID string, e models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant(tenantID).expenses[e.ID] = e
	return nil
}

func (s *Storage) PutFactoringCompany(ctx context.Context, tenantID string, f models.FactoringCompany) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant(tenantID).factoring[f.ID] = f
	return nil
}

func (s *Storage) PutInvoice(ctx context.Context, tenantID string, inv models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant(tenantID).invoices[inv.ID] = inv
	return nil
}

func (s *Storage) GetLoad(ctx context.Context, tenantID, id string) (models.Load, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tenant(tenantID).loads[id]
	if !ok {
		return models.Load{}, errors.Wrapf(storage.ErrNotFound, "load %s", id)
	}
	return l, nil
}

func (s *Storage) GetInvoice(ctx context.Context, tenantID, id string) (models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.tenant(tenantID).invoices[id]
	if !ok {
		return models.Invoice{}, errors.Wrapf(storage.ErrNotFound, "invoice %s", id)
	}
	return inv, nil
}

// CreateInvoices skips an invoice whose id or number exists or whose loads
// another invoice already lists.
func (s *Storage) CreateInvoices(ctx context.Context, tenantID string, invoices []models.Invoice, links []models.LoadInvoiceLink) ([]models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(tenantID)

	claimedLoads := map[string]struct{}{}
	numbers := map[string]struct{}{}
	for _, inv := range t.invoices {
		numbers[inv.InvoiceNumber] = struct{}{}
		for _, id := range inv.LoadIDs {
			claimedLoads[id] = struct{}{}
		}
	}

	var created []models.Invoice
	stored := map[string]struct{}{}
	for _, inv := range invoices {
		if _, ok := t.invoices[inv.ID]; ok {
			continue
		}
		if _, ok := numbers[inv.InvoiceNumber]; ok {
			continue
		}
		taken := false
		for _, id := range inv.LoadIDs {
			if _, ok := claimedLoads[id]; ok {
				taken = true
				break
			}
		}
		if taken {
			continue
		}
		t.invoices[inv.ID] = inv
		numbers[inv.InvoiceNumber] = struct{}{}
		for _, id := range inv.LoadIDs {
			claimedLoads[id] = struct{}{}
		}
		stored[inv.ID] = struct{}{}
		created = append(created, inv)
	}
	for _, ln := range links {
		if _, ok := stored[ln.InvoiceID]; !ok {
			continue
		}
		if l, ok := t.loads[ln.LoadID]; ok && l.InvoiceID == "" {
			l.InvoiceID = ln.InvoiceID
			t.loads[ln.LoadID] = l
		}
	}
	return created, nil
}

func (s *Storage) ApplyInvoiceStatus(ctx context.Context, tenantID string, upd models.InvoiceStatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(tenantID)
	inv, ok := t.invoices[upd.InvoiceID]
	if !ok || inv.Status != upd.From {
		return false, nil
	}
	inv.Status = upd.To
	inv.UpdatedAt = upd.At
	t.invoices[inv.ID] = inv
	return true, nil
}

func (s *Storage) UpdateInvoice(ctx context.Context, tenantID string, inv models.Invoice, from models.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(tenantID)
	cur, ok := t.invoices[inv.ID]
	if !ok {
		return errors.Wrapf(storage.ErrNotFound, "invoice %s", inv.ID)
	}
	if cur.Status != from {
		return errors.Wrapf(storage.ErrVersionConflict, "invoice %s is %s", inv.ID, cur.Status)
	}
	t.invoices[inv.ID] = inv
	return nil
}

func (s *Storage) InsertTasks(ctx context.Context, tenantID string, tasks []models.Task) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(tenantID)
	var inserted []models.Task
	for _, task := range tasks {
		if _, ok := t.tasks[task.ID]; ok {
			continue
		}
		task.Version = 1
		t.tasks[task.ID] = task
		inserted = append(inserted, task)
	}
	return inserted, nil
}

func (s *Storage) GetTask(ctx context.Context, tenantID, id string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tenant(tenantID).tasks[id]
	if !ok {
		return models.Task{}, errors.Wrapf(storage.ErrNotFound, "task %s", id)
	}
	return task, nil
}

func (s *Storage) ListTasks(ctx context.Context, tenantID string) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.tenant(tenantID).tasks), nil
}

func (s *Storage) UpdateTask(ctx context.Context, tenantID string, task models.Task) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(tenantID)
	cur, ok := t.tasks[task.ID]
	if !ok {
		return models.Task{}, errors.Wrapf(storage.ErrNotFound, "task %s", task.ID)
	}
	if cur.Version != task.Version {
		return models.Task{}, errors.Wrapf(storage.ErrVersionConflict, "task %s version %d", task.ID, task.Version)
	}
	task.Version++
	t.tasks[task.ID] = task
	return task, nil
}

func (s *Storage) DeleteTask(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(tenantID)
	if _, ok := t.tasks[id]; !ok {
		return errors.Wrapf(storage.ErrNotFound, "task %s", id)
	}
	delete(t.tasks, id)
	return nil
}

func (s *Storage) GetRules(ctx context.Context, tenantID string) ([]models.WorkflowRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(tenantID)
	if !t.rulesSaved {
		return nil, nil
	}
	return append([]models.WorkflowRule{}, t.rules...), nil
}

func (s *Storage) SaveRules(ctx context.Context, tenantID string, rules []models.WorkflowRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(tenantID)
	t.rules = append([]models.WorkflowRule{}, rules...)
	t.rulesSaved = true
	return nil
}
