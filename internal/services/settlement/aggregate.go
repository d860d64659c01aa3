// Package settlement produces the period profit and loss summary.
package settlement

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/money"
	"github.com/BearBump/HaulLedger/internal/services/pay"
	"github.com/shopspring/decimal"
)

// DefaultFactoringPercent applies when neither the load nor its factoring
// company carries a rate.
var DefaultFactoringPercent = decimal.RequireFromString("2.5")

type Options struct {
	// DispatcherCommissionPercent is on the 0-100 scale, applied to total revenue.
	DispatcherCommissionPercent decimal.Decimal `json:"dispatcherCommissionPercent" yaml:"dispatcher_commission_percent"`
	// FactoringPercent overrides DefaultFactoringPercent when positive.
	FactoringPercent decimal.Decimal `json:"factoringPercent" yaml:"factoring_percent"`
}

func (o Options) factoringPercent() decimal.Decimal {
	if o.FactoringPercent.IsPositive() {
		return o.FactoringPercent
	}
	return DefaultFactoringPercent
}

type aggregator struct {
	period   Period
	snap     models.Snapshot
	opts     Options
	drivers  map[string]models.Driver
	selected []models.Load
	splits   map[string]pay.Split
	sum      Summary
}

// Aggregate computes the summary for the period. It never fails: records it
// cannot interpret are skipped and reported in Summary.Warnings.
func Aggregate(period Period, snap models.Snapshot, opts Options) Summary {
	a := &aggregator{
		period:  period,
		snap:    snap,
		opts:    opts,
		drivers: snap.DriversByID(),
		splits:  make(map[string]pay.Split),
	}
	a.sum.Period = period
	a.selectLoads()
	a.revenue()
	a.driverPay()
	a.expenses()
	a.factoring()
	a.totals()
	return a.sum
}

func (a *aggregator) warn(format string, args ...any) {
	a.sum.Warnings = append(a.sum.Warnings, fmt.Sprintf(format, args...))
}

func (a *aggregator) driver(id string) *models.Driver {
	if id == "" {
		return nil
	}
	d, ok := a.drivers[id]
	if !ok {
		return nil
	}
	return &d
}

func (a *aggregator) selectLoads() {
	for _, l := range a.snap.Loads {
		if !l.Status.RevenueEligible() {
			continue
		}
		date, ok := l.ReportDate()
		if !ok {
			a.warn("load %s has no delivery or pickup date", l.ID)
			continue
		}
		if a.period.Contains(date) {
			a.selected = append(a.selected, l)
		}
	}
}

func (a *aggregator) revenue() {
	r := Revenue{}
	customers := make(map[string]struct{})
	drivers := make(map[string]struct{})
	miles := decimal.Zero

	for _, l := range a.selected {
		drv := a.driver(l.DriverID)
		if l.DriverID != "" && drv == nil {
			a.warn("load %s references unknown driver %s", l.ID, l.DriverID)
		}
		s := pay.Calculate(l, drv)
		if s.Degraded {
			a.warn("driver %s has an unusable pay configuration, load %s counted as unassigned", l.DriverID, l.ID)
		}
		a.splits[l.ID] = s

		r.Total = r.Total.Add(s.Gross)
		r.Company = r.Company.Add(s.CompanyRevenue)
		switch {
		case drv == nil || s.Degraded:
			r.UnassignedGross = r.UnassignedGross.Add(s.Gross)
		case drv.IsOwnerOperator():
			r.OwnerOperatorGross = r.OwnerOperatorGross.Add(s.Gross)
			r.OwnerOperatorNet = r.OwnerOperatorNet.Add(s.CompanyRevenue)
		default:
			r.CompanyDriverGross = r.CompanyDriverGross.Add(s.Gross)
			r.CompanyDriverNet = r.CompanyDriverNet.Add(s.CompanyRevenue)
		}

		if s.CompanyRevenue.IsNegative() {
			a.sum.NegativeMarginLoads = append(a.sum.NegativeMarginLoads, NegativeMarginLoad{
				LoadID:         l.ID,
				LoadNumber:     l.LoadNumber,
				DriverID:       l.DriverID,
				Gross:          s.Gross,
				CompanyRevenue: s.CompanyRevenue,
			})
		}

		if c := strings.ToLower(strings.TrimSpace(l.CustomerName)); c != "" {
			customers[c] = struct{}{}
		}
		if l.DriverID != "" {
			drivers[l.DriverID] = struct{}{}
		}
		miles = miles.Add(l.Miles)
	}

	a.sum.Revenue = r
	a.sum.Counts = Counts{
		LoadsCompleted:  len(a.selected),
		TotalMiles:      miles,
		UniqueCustomers: len(customers),
		UniqueDrivers:   len(drivers),
		RevenuePerLoad:  money.Round(money.Ratio(r.Total, decimal.NewFromInt(int64(len(a.selected))))),
		RevenuePerMile:  money.Round(money.Ratio(r.Total, miles)),
	}
}

// settledAmount is the cash the driver is entitled to under a settlement.
func settledAmount(s models.Settlement, drv *models.Driver) decimal.Decimal {
	switch {
	case drv != nil && drv.IsOwnerOperator():
		return s.GrossPay
	case drv != nil:
		return s.NetPay
	case !s.NetPay.IsZero():
		return s.NetPay
	default:
		return s.GrossPay
	}
}

func (a *aggregator) driverPay() {
	selected := models.NewLoadSet()
	for _, l := range a.selected {
		selected.Add(l.ID)
	}

	settlements := append([]models.Settlement(nil), a.snap.Settlements...)
	sort.SliceStable(settlements, func(i, j int) bool { return settlements[i].ID < settlements[j].ID })

	lines := make(map[string]*DriverPayLine)
	line := func(driverID string) *DriverPayLine {
		if ln, ok := lines[driverID]; ok {
			return ln
		}
		ln := &DriverPayLine{DriverID: driverID}
		if drv := a.driver(driverID); drv != nil {
			ln.DriverName = drv.Name
			ln.DriverType = drv.Type
		}
		lines[driverID] = ln
		return ln
	}

	covered := models.NewLoadSet()
	for _, s := range settlements {
		if len(s.Loads) == 0 {
			a.warn("settlement %s has no readable load references", s.ID)
			continue
		}
		if !s.Loads.SubsetOf(selected) {
			continue
		}
		overlap := false
		for id := range s.Loads {
			if covered.Has(id) {
				overlap = true
				break
			}
		}
		if overlap {
			a.warn("settlement %s overlaps loads already settled, skipped", s.ID)
			continue
		}
		drv := a.driver(s.DriverID)
		if drv == nil {
			a.warn("settlement %s references unknown driver %q", s.ID, s.DriverID)
		}
		amount := settledAmount(s, drv)
		ln := line(s.DriverID)
		ln.Settled = ln.Settled.Add(amount)
		ln.SettlementIDs = append(ln.SettlementIDs, s.ID)
		for _, id := range s.Loads.Sorted() {
			covered.Add(id)
			ln.LoadIDs = append(ln.LoadIDs, id)
		}
	}

	estimated := make(map[string]bool)
	for _, l := range a.selected {
		if covered.Has(l.ID) || l.DriverID == "" {
			continue
		}
		drv := a.driver(l.DriverID)
		if drv == nil {
			continue
		}
		ln := line(l.DriverID)
		ln.Estimated = ln.Estimated.Add(a.splits[l.ID].DriverPay)
		ln.LoadIDs = append(ln.LoadIDs, l.ID)
		if drv.IsOwnerOperator() && drv.Deductions != nil {
			ln.Deductions = drv.Deductions
		}
		estimated[l.DriverID] = true
	}

	out := DriverPay{Lines: make([]DriverPayLine, 0, len(lines))}
	ids := make([]string, 0, len(lines))
	for id := range lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ln := lines[id]
		ln.Total = ln.Settled.Add(ln.Estimated)
		ln.Basis = basisOf(len(ln.SettlementIDs) > 0, estimated[id])
		out.Settled = out.Settled.Add(ln.Settled)
		out.Estimated = out.Estimated.Add(ln.Estimated)
		out.Lines = append(out.Lines, *ln)
	}
	out.Total = out.Settled.Add(out.Estimated)
	out.IsEstimated = len(estimated) > 0
	out.Basis = basisOf(len(covered) > 0, out.IsEstimated)
	a.sum.DriverPay = out
}

func (a *aggregator) expenses() {
	loads := make(map[string]models.Load, len(a.snap.Loads))
	for _, l := range a.snap.Loads {
		loads[l.ID] = l
	}

	e := Expenses{ByCategory: make(map[models.ExpenseCategory]decimal.Decimal)}
	for _, x := range a.snap.Expenses {
		if x.Date.IsZero() {
			a.warn("expense %s has no date", x.ID)
			continue
		}
		if !a.period.Contains(x.Date) {
			continue
		}
		if x.PaidBy == models.PaidByTrackedOnly {
			e.TrackedOnly = e.TrackedOnly.Add(x.Amount)
			continue
		}
		driverID := x.DriverID
		if driverID == "" && x.LoadID != "" {
			driverID = loads[x.LoadID].DriverID
		}
		if drv := a.driver(driverID); drv != nil && drv.IsOwnerOperator() && x.IsPassThroughCategory() {
			e.PassThrough = e.PassThrough.Add(x.Amount)
			continue
		}
		cat := x.NormalizedCategory()
		if cat == "" {
			cat = models.ExpenseOther
		}
		e.Company = e.Company.Add(x.Amount)
		e.ByCategory[cat] = e.ByCategory[cat].Add(x.Amount)
	}
	a.sum.Expenses = e
}

func (a *aggregator) factoring() {
	companies := a.snap.FactoringByID()
	total := decimal.Zero
	for _, l := range a.selected {
		if !l.IsFactored {
			continue
		}
		if l.FactoringFee != nil {
			total = total.Add(*l.FactoringFee)
			continue
		}
		pct := a.opts.factoringPercent()
		if fc, ok := companies[l.FactoringCompanyID]; ok && fc.FeePercentage != nil {
			pct = *fc.FeePercentage
		}
		if l.FactoringFeePercent != nil {
			pct = *l.FactoringFeePercent
		}
		total = total.Add(money.Round(money.PercentOf(l.GrandTotal(), pct)))
	}
	a.sum.Factoring = money.Round(total)
}

func (a *aggregator) totals() {
	s := &a.sum
	s.DispatcherCommission = money.Round(money.PercentOf(s.Revenue.Total, a.opts.DispatcherCommissionPercent))
	s.TotalCosts = s.Expenses.Company.Add(s.Factoring).Add(s.DispatcherCommission)
	s.NetProfit = s.Revenue.Total.Sub(s.TotalCosts).Sub(s.DriverPay.Total)
	s.ProfitMargin = money.Ratio(s.NetProfit, s.Revenue.Total)
	if s.NegativeMarginLoads == nil {
		s.NegativeMarginLoads = []NegativeMarginLoad{}
	}
}
