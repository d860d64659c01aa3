package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const snapshotJSON = `{
  "loads": [
    {"id": "L0", "loadNumber": "LN-0", "status": "completed", "customerName": "Acme",
     "rate": "500", "deliveryDate": "2024-02-01T00:00:00Z", "invoiceId": "I-old"},
    {"id": "L1", "loadNumber": "LN-1", "status": "delivered", "customerName": "Acme",
     "rate": "1000", "deliveryDate": "2024-03-05T00:00:00Z"}
  ],
  "drivers": [],
  "settlements": [],
  "expenses": [],
  "factoringCompanies": [],
  "invoices": [
    {"id": "I-old", "invoiceNumber": "INV-2024-0001", "customerName": "Acme", "loadIds": ["L0"],
     "amount": "500", "status": "pending", "date": "2024-02-01T00:00:00Z", "dueDate": "2024-03-01T00:00:00Z"}
  ]
}`

func writeSnapshot(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(p, []byte(snapshotJSON), 0o600))
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decimalAt(t *testing.T, m map[string]any, key string) decimal.Decimal {
	t.Helper()
	s, ok := m[key].(string)
	require.True(t, ok, key)
	return decimal.RequireFromString(s)
}

func TestSummaryCommand(t *testing.T) {
	snap := writeSnapshot(t)

	out, err := execute(t, "summary", "--snapshot", snap, "--from", "2024-03-01", "--to", "2024-03-31", "--dispatcher-percent", "10")
	require.NoError(t, err)

	var res struct {
		Period  string         `json:"period"`
		Summary map[string]any `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, "2024-03-01..2024-03-31", res.Period)

	rev := res.Summary["revenue"].(map[string]any)
	require.True(t, decimalAt(t, rev, "total").Equal(decimal.NewFromInt(1000)))
	require.True(t, decimalAt(t, res.Summary, "dispatcherCommission").Equal(decimal.NewFromInt(100)))
}

func TestSummaryCommand_BadInput(t *testing.T) {
	snap := writeSnapshot(t)

	_, err := execute(t, "summary", "--snapshot", snap, "--from", "2024-03-31", "--to", "2024-03-01")
	require.Error(t, err)

	_, err = execute(t, "summary", "--snapshot", snap, "--from", "2024-03-01", "--to", "2024-03-31", "--dispatcher-percent", "150")
	require.ErrorContains(t, err, "0..100")

	_, err = execute(t, "summary", "--from", "2024-03-01", "--to", "2024-03-31")
	require.ErrorContains(t, err, "--snapshot is required")

	_, err = execute(t, "summary", "--snapshot", filepath.Join(t.TempDir(), "missing.json"), "--from", "2024-03-01", "--to", "2024-03-31")
	require.Error(t, err)
}

func TestReconcileCommand(t *testing.T) {
	snap := writeSnapshot(t)
	outPath := filepath.Join(t.TempDir(), "updated.json")

	out, err := execute(t, "reconcile", "--snapshot", snap, "--tenant", "t1", "--today", "2024-03-10", "--out", outPath)
	require.NoError(t, err)

	var rep struct {
		TenantID string           `json:"tenantId"`
		Created  []models.Invoice `json:"created"`
		Overdue  []string         `json:"overdue"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Equal(t, "t1", rep.TenantID)
	require.Len(t, rep.Created, 1)
	require.Equal(t, "INV-2024-0002", rep.Created[0].InvoiceNumber)
	require.Equal(t, []string{"L1"}, rep.Created[0].LoadIDs)
	require.Equal(t, []string{"I-old"}, rep.Overdue)

	b, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var updated models.Snapshot
	require.NoError(t, json.Unmarshal(b, &updated))
	require.Len(t, updated.Invoices, 2)

	statuses := map[string]models.InvoiceStatus{}
	for _, inv := range updated.Invoices {
		statuses[inv.ID] = inv.Status
	}
	require.Equal(t, models.InvoiceStatusOverdue, statuses["I-old"])
	require.Equal(t, models.InvoiceStatusPending, statuses[rep.Created[0].ID])

	load, ok := updated.LoadByID("L1")
	require.True(t, ok)
	require.Equal(t, rep.Created[0].ID, load.InvoiceID)

	// Просрочка порождает задачу на follow-up.
	require.NotEmpty(t, updated.Tasks)

	// Повторный прогон по обновлённому снимку ничего не меняет.
	out, err = execute(t, "reconcile", "--snapshot", outPath, "--tenant", "t1", "--today", "2024-03-10")
	require.NoError(t, err)
	rep.Created, rep.Overdue = nil, nil
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Empty(t, rep.Created)
	require.Empty(t, rep.Overdue)
}

func TestReconcileCommand_BadToday(t *testing.T) {
	_, err := execute(t, "reconcile", "--snapshot", writeSnapshot(t), "--today", "10.03.2024")
	require.ErrorContains(t, err, "--today")
}
