// Package invoicing decides which invoices to create and which status
// transitions to apply. It proposes changes; callers persist them.
package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/HaulLedger/internal/ids"
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/money"
	"github.com/pkg/errors"
)

var (
	ErrDuplicateInvoice         = errors.New("load already invoiced")
	ErrLoadNotInvoiceable       = errors.New("load is not invoiceable")
	ErrInvoiceAlreadyPaid       = errors.New("invoice already paid")
	ErrInvalidInvoiceTransition = errors.New("invalid invoice status transition")
)

const (
	DefaultPrefix  = "INV"
	DefaultDueDays = 30
)

type Guard struct {
	prefix  string
	dueDays int
}

func New() *Guard {
	return &Guard{prefix: DefaultPrefix, dueDays: DefaultDueDays}
}

func (g *Guard) WithSettings(prefix string, dueDays int) *Guard {
	if p := strings.TrimSpace(prefix); p != "" {
		g.prefix = p
	}
	if dueDays > 0 {
		g.dueDays = dueDays
	}
	return g
}

// Skip is a record a sweep left untouched, with the reason.
type Skip struct {
	LoadID    string `json:"loadId,omitempty"`
	InvoiceID string `json:"invoiceId,omitempty"`
	Reason    string `json:"reason"`
}

type Result struct {
	NewInvoices   []models.Invoice             `json:"newInvoices"`
	StatusUpdates []models.InvoiceStatusUpdate `json:"statusUpdates"`
	// LoadLinks must be applied only after the matching invoice is stored.
	LoadLinks []models.LoadInvoiceLink `json:"loadLinks"`
	Skipped   []Skip                   `json:"skipped,omitempty"`
}

// Eligible returns nil when the load may be auto-invoiced.
func Eligible(load models.Load, invoices []models.Invoice) error {
	if !load.Status.RevenueEligible() {
		return errors.Wrapf(ErrLoadNotInvoiceable, "load %s status %s", load.ID, load.Status)
	}
	if strings.TrimSpace(load.CustomerName) == "" {
		return errors.Wrapf(ErrLoadNotInvoiceable, "load %s has no customer", load.ID)
	}
	if !load.Rate.IsPositive() {
		return errors.Wrapf(ErrLoadNotInvoiceable, "load %s has no rate", load.ID)
	}
	// invoiceId ставится один раз, даже если сам счёт не попал в выборку.
	if load.InvoiceID != "" {
		return errors.Wrapf(ErrDuplicateInvoice, "load %s invoice %s", load.ID, load.InvoiceID)
	}
	for _, inv := range invoices {
		if inv.References(load.ID) {
			return errors.Wrapf(ErrDuplicateInvoice, "load %s invoice %s", load.ID, inv.ID)
		}
	}
	return nil
}

// CreateForLoad builds the invoice for a single load.
func (g *Guard) CreateForLoad(tenantID string, load models.Load, invoices []models.Invoice, now time.Time) (models.Invoice, error) {
	if err := Eligible(load, invoices); err != nil {
		return models.Invoice{}, err
	}
	now = now.UTC()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return models.Invoice{
		ID:                 ids.Invoice(tenantID, load.ID),
		InvoiceNumber:      NextNumber(g.prefix, now.Year(), invoices),
		CustomerName:       strings.TrimSpace(load.CustomerName),
		LoadIDs:            []string{load.ID},
		Amount:             money.Round(load.GrandTotal()),
		Status:             models.InvoiceStatusPending,
		Date:               date,
		DueDate:            date.AddDate(0, 0, g.dueDays),
		IsFactored:         load.IsFactored,
		FactoringCompanyID: load.FactoringCompanyID,
		UpdatedAt:          now,
	}, nil
}

// Reconcile invoices every eligible load and runs the overdue sweep.
// Invoices created earlier in the batch count as existing for later loads.
func (g *Guard) Reconcile(tenantID string, loads []models.Load, invoices []models.Invoice, now time.Time) Result {
	res := Result{}
	all := append([]models.Invoice(nil), invoices...)
	for _, l := range loads {
		inv, err := g.CreateForLoad(tenantID, l, all, now)
		if err != nil {
			if errors.Is(err, ErrDuplicateInvoice) || !l.Status.RevenueEligible() {
				continue
			}
			res.Skipped = append(res.Skipped, Skip{LoadID: l.ID, Reason: err.Error()})
			continue
		}
		all = append(all, inv)
		res.NewInvoices = append(res.NewInvoices, inv)
		res.LoadLinks = append(res.LoadLinks, models.LoadInvoiceLink{LoadID: l.ID, InvoiceID: inv.ID})
	}
	updates, skipped := SweepOverdue(invoices, now)
	res.StatusUpdates = updates
	res.Skipped = append(res.Skipped, skipped...)
	return res
}

// NextNumber returns the first free PREFIX-YEAR-NNNN number, starting from the
// count of invoices already numbered in that prefix and year.
func NextNumber(prefix string, year int, invoices []models.Invoice) string {
	stem := fmt.Sprintf("%s-%d-", prefix, year)
	used := make(map[string]struct{}, len(invoices))
	count := 0
	for _, inv := range invoices {
		used[inv.InvoiceNumber] = struct{}{}
		if strings.HasPrefix(inv.InvoiceNumber, stem) {
			count++
		}
	}
	for seq := count + 1; ; seq++ {
		n := fmt.Sprintf("%s%04d", stem, seq)
		if _, ok := used[n]; !ok {
			return n
		}
	}
}
