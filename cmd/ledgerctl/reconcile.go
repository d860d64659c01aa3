package main

import (
	"os"
	"time"

	"github.com/BearBump/HaulLedger/internal/services/invoicing"
	"github.com/BearBump/HaulLedger/internal/services/lifecycle"
	"github.com/BearBump/HaulLedger/internal/services/sweeper"
	"github.com/BearBump/HaulLedger/internal/storage/memledger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Invoice eligible loads and mark overdue invoices",
		Long: `Run one invoice sweep over the snapshot: create invoices for delivered
and completed loads, move pending invoices past due to overdue and create
the follow-up tasks. Prints the sweep report; --out writes the updated
snapshot.`,
		Args: cobra.NoArgs,
		RunE: runReconcile,
	}
	cmd.Flags().String("tenant", "default", "Tenant id the snapshot belongs to")
	cmd.Flags().String("today", "", "Date to sweep as, YYYY-MM-DD (default: today, UTC)")
	cmd.Flags().StringP("out", "o", "", "Write the updated snapshot to this file")
	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	snap, err := readSnapshot(cmd)
	if err != nil {
		return err
	}
	tenantID, _ := cmd.Flags().GetString("tenant")

	today := time.Now().UTC()
	if raw, _ := cmd.Flags().GetString("today"); raw != "" {
		if today, err = time.Parse("2006-01-02", raw); err != nil {
			return errors.Wrap(err, "--today")
		}
	}
	clock := func() time.Time { return today }

	st := memledger.FromSnapshot(tenantID, snap)
	guard := invoicing.New().WithSettings(settings.InvoicePrefix, settings.InvoiceDueDays)
	sink := lifecycle.New(st, nil, "").WithGuard(guard)
	sw := sweeper.New(st, nil, nil, "").
		WithGuard(guard).
		WithEventSink(sink).
		WithClock(clock)

	rep, err := sw.SweepTenant(cmd.Context(), tenantID)
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return nil
	}
	updated, err := st.Snapshot(cmd.Context(), tenantID)
	if err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return errors.Wrap(err, "create snapshot file")
	}
	defer f.Close()
	return writeJSON(f, updated)
}
