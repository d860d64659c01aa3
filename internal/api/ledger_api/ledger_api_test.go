package ledger_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/services/lifecycle"
	"github.com/BearBump/HaulLedger/internal/services/reports"
	"github.com/BearBump/HaulLedger/internal/services/tasks"
	"github.com/BearBump/HaulLedger/internal/services/workflow"
	"github.com/BearBump/HaulLedger/internal/storage"
	"github.com/BearBump/HaulLedger/internal/storage/memledger"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type denyLimiter struct{ allowed bool }

func (d denyLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return d.allowed, 1, nil
}

func newServer(t *testing.T) (*httptest.Server, *memledger.Storage) {
	t.Helper()
	st := memledger.New()
	api := New(lifecycle.New(st, nil, ""), reports.New(st, nil, 0))
	api.now = func() time.Time { return time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	api.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func deliveredEvent() map[string]any {
	return map[string]any{
		"type":        workflow.EventLoadStatusChanged,
		"occurred_at": "2024-03-09T14:00:00Z",
		"load": map[string]any{
			"id": "L1", "loadNumber": "LN-1", "status": "delivered", "customerName": "Acme",
			"rate": "1500", "deliveryDate": "2024-03-09T00:00:00Z",
		},
	}
}

func TestLedgerAPI_Flow(t *testing.T) {
	srv, st := newServer(t)
	base := srv.URL + "/v1/tenants/t1"

	resp, out := do(t, http.MethodPost, base+"/loads/events", deliveredEvent())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["created"], 2)
	inv := out["invoice"].(map[string]any)
	invoiceID := inv["id"].(string)

	resp, out = do(t, http.MethodGet, base+"/reports/summary?from=2024-03-01&to=2024-03-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sum := out["summary"].(map[string]any)
	require.Equal(t, "1500", sum["revenue"].(map[string]any)["total"])

	// Without a period the current month is used.
	resp, _ = do(t, http.MethodGet, base+"/reports/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, base+"/reports/summary?from=bad&to=2024-03-31", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = do(t, http.MethodGet, base+"/tasks?status=blocked", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["tasks"], 1)
	blockedID := out["tasks"].([]any)[0].(map[string]any)["id"].(string)

	resp, out = do(t, http.MethodPost, base+"/tasks/"+blockedID+"/complete", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Len(t, out["error"].(map[string]any)["pending"], 1)

	resp, _ = do(t, http.MethodPost, base+"/tasks/missing/start", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, out = do(t, http.MethodGet, base+"/loads/L1/checklist", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, out["complete"])

	resp, out = do(t, http.MethodPost, base+"/invoices/"+invoiceID+"/pay", map[string]any{"method": "ach"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "paid", out["status"])
	resp, _ = do(t, http.MethodPost, base+"/invoices/"+invoiceID+"/pay", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	ts, err := st.ListTasks(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, ts, 2)
}

func TestLedgerAPI_Rules(t *testing.T) {
	srv, _ := newServer(t)
	base := srv.URL + "/v1/tenants/t1"

	resp, out := do(t, http.MethodGet, base+"/rules", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["rules"], len(workflow.DefaultRules()))

	resp, out = do(t, http.MethodPost, base+"/rules/"+workflow.RuleDelivered+"/disable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, r := range out["rules"].([]any) {
		rule := r.(map[string]any)
		if rule["id"] == workflow.RuleDelivered {
			require.Equal(t, false, rule["isEnabled"])
		}
	}

	resp, _ = do(t, http.MethodPost, base+"/rules/nope/enable", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, base+"/rules/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLedgerAPI_DeleteTask(t *testing.T) {
	srv, st := newServer(t)
	base := srv.URL + "/v1/tenants/t1"
	require.NoError(t, st.PutLoad(context.Background(), "t1", models.Load{ID: "L1"}))
	_, err := st.InsertTasks(context.Background(), "t1", []models.Task{{ID: "task-1", Status: models.TaskPending}})
	require.NoError(t, err)

	resp, _ := do(t, http.MethodDelete, base+"/tasks/task-1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, base+"/tasks/task-1", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLedgerAPI_BadInput(t *testing.T) {
	srv, _ := newServer(t)
	base := srv.URL + "/v1/tenants/t1"

	req, err := http.NewRequest(http.MethodPost, base+"/loads/events", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, base+"/loads/events", map[string]any{"type": "load.created"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestLedgerAPI_RateLimited(t *testing.T) {
	st := memledger.New()
	api := New(lifecycle.New(st, nil, ""), reports.New(st, nil, 0)).WithRateLimit(denyLimiter{}, 10)
	r := chi.NewRouter()
	api.Routes(r)

	rec := httptest.NewRecorder()
	b, _ := json.Marshal(deliveredEvent())
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tenants/t1/loads/events", bytes.NewReader(b)))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusNotFound, StatusFor(errors.Wrap(storage.ErrNotFound, "load")))
	require.Equal(t, http.StatusConflict, StatusFor(errors.Wrap(storage.ErrVersionConflict, "task")))
	require.Equal(t, http.StatusConflict, StatusFor(&tasks.BlockedTaskError{TaskID: "a", Pending: []string{"b"}}))
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(errors.Wrap(tasks.ErrInvalidTransition, "x")))
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(errors.Wrap(lifecycle.ErrInvalidArgument, "x")))
	require.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
