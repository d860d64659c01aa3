// Package ledger_api exposes reports, load events, invoices, tasks and
// workflow rules over HTTP.
package ledger_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/HaulLedger/internal/broker/messages"
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/services/invoicing"
	"github.com/BearBump/HaulLedger/internal/services/lifecycle"
	"github.com/BearBump/HaulLedger/internal/services/reports"
	"github.com/BearBump/HaulLedger/internal/services/settlement"
	"github.com/BearBump/HaulLedger/internal/services/tasks"
	"github.com/BearBump/HaulLedger/internal/services/workflow"
	"github.com/BearBump/HaulLedger/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type LedgerAPI struct {
	lc      *lifecycle.Service
	reports *reports.Service

	rl              RateLimiter
	eventsPerMinute int64

	now func() time.Time
}

func New(lc *lifecycle.Service, rep *reports.Service) *LedgerAPI {
	return &LedgerAPI{lc: lc, reports: rep, now: func() time.Time { return time.Now().UTC() }}
}

// WithRateLimit caps load events per tenant per minute.
func (a *LedgerAPI) WithRateLimit(rl RateLimiter, perMinute int64) *LedgerAPI {
	a.rl = rl
	a.eventsPerMinute = perMinute
	return a
}

// Routes mounts the tenant API under /v1/tenants/{tenant}.
func (a *LedgerAPI) Routes(r chi.Router) {
	r.Route("/v1/tenants/{tenant}", func(r chi.Router) {
		r.Get("/reports/summary", a.handleSummary)

		r.Post("/loads/events", a.handleLoadEvent)
		r.Get("/loads/{id}/checklist", a.handleChecklist)

		r.Post("/invoices/{id}/pay", a.handlePayInvoice)
		r.Post("/invoices/{id}/status", a.handleCorrectInvoice)

		r.Get("/tasks", a.handleListTasks)
		r.Post("/tasks/{id}/start", a.taskAction(a.lc.StartTask))
		r.Post("/tasks/{id}/complete", a.taskAction(a.lc.CompleteTask))
		r.Post("/tasks/{id}/cancel", a.taskAction(a.lc.CancelTask))
		r.Post("/tasks/{id}/block", a.taskAction(a.lc.BlockTask))
		r.Delete("/tasks/{id}", a.handleDeleteTask)

		r.Get("/rules", a.handleListRules)
		r.Post("/rules/reset", a.handleResetRules)
		r.Post("/rules/{id}/enable", a.ruleToggle(true))
		r.Post("/rules/{id}/disable", a.ruleToggle(false))
	})
}

func tenant(r *http.Request) string { return chi.URLParam(r, "tenant") }

func (a *LedgerAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := settlement.Month(a.now())
	if q.Get("from") != "" || q.Get("to") != "" {
		p, err := settlement.ParsePeriod(q.Get("from"), q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		period = p
	}
	sum, err := a.reports.Summary(r.Context(), tenant(r), period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "summary": sum})
}

func (a *LedgerAPI) handleLoadEvent(w http.ResponseWriter, r *http.Request) {
	t := tenant(r)
	if a.rl != nil && a.eventsPerMinute > 0 {
		allowed, _, err := a.rl.Allow(r.Context(), "events:"+t, a.eventsPerMinute, time.Minute)
		if err != nil {
			// Лимитер недоступен: не блокируем приём событий.
			slog.Warn("rate limiter", "tenant_id", t, "error", err.Error())
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "too many load events")
			return
		}
	}

	var msg messages.LoadChanged
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	msg.TenantID = t
	out, err := a.lc.HandleLoadEvent(r.Context(), msg)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *LedgerAPI) handleChecklist(w http.ResponseWriter, r *http.Request) {
	items, err := a.lc.LoadChecklist(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "complete": workflow.ChecklistComplete(items)})
}

func (a *LedgerAPI) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	var p invoicing.Payment
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
	}
	inv, err := a.lc.MarkInvoicePaid(r.Context(), tenant(r), chi.URLParam(r, "id"), p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *LedgerAPI) handleCorrectInvoice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.InvoiceStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	inv, err := a.lc.CorrectInvoiceStatus(r.Context(), tenant(r), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *LedgerAPI) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := lifecycle.TaskFilter{
		Status:     models.TaskStatus(q.Get("status")),
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
	}
	ts, err := a.lc.ListTasks(r.Context(), tenant(r), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": ts})
}

type taskOp func(ctx context.Context, tenantID, id string) (models.Task, error)

func (a *LedgerAPI) taskAction(op taskOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := op(r.Context(), tenant(r), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func (a *LedgerAPI) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := a.lc.DeleteTask(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *LedgerAPI) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.lc.ListRules(r.Context(), tenant(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (a *LedgerAPI) handleResetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.lc.ResetRules(r.Context(), tenant(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (a *LedgerAPI) ruleToggle(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := a.lc.SetRuleEnabled(r.Context(), tenant(r), chi.URLParam(r, "id"), enabled)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"message": msg}})
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	var blocked *tasks.BlockedTaskError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, workflow.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.As(err, &blocked),
		errors.Is(err, storage.ErrVersionConflict),
		errors.Is(err, invoicing.ErrDuplicateInvoice),
		errors.Is(err, invoicing.ErrInvoiceAlreadyPaid):
		return http.StatusConflict
	case errors.Is(err, tasks.ErrInvalidTransition),
		errors.Is(err, tasks.ErrTerminalTask),
		errors.Is(err, invoicing.ErrInvalidInvoiceTransition),
		errors.Is(err, invoicing.ErrLoadNotInvoiceable),
		errors.Is(err, lifecycle.ErrInvalidArgument):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err.Error())
		writeError(w, status, "internal error")
		return
	}
	var blocked *tasks.BlockedTaskError
	if errors.As(err, &blocked) {
		writeJSON(w, status, map[string]any{"error": map[string]any{"message": err.Error(), "pending": blocked.Pending}})
		return
	}
	writeError(w, status, err.Error())
}
