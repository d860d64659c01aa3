package main

import (
	"github.com/BearBump/HaulLedger/internal/services/settlement"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the P&L summary of a period",
		Long: `Aggregate revenue, driver pay, expenses, factoring and margin for the
loads of the snapshot that fall into the period. Both dates are inclusive.`,
		Args: cobra.NoArgs,
		RunE: runSummary,
	}
	cmd.Flags().String("from", "", "First day of the period, YYYY-MM-DD")
	cmd.Flags().String("to", "", "Last day of the period, YYYY-MM-DD")
	cmd.Flags().String("dispatcher-percent", "", "Dispatcher commission on revenue, 0-100")
	cmd.Flags().String("factoring-percent", "", "Factoring fee when neither load nor company sets one, 0-100")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runSummary(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	snap, err := readSnapshot(cmd)
	if err != nil {
		return err
	}

	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	period, err := settlement.ParsePeriod(from, to)
	if err != nil {
		return err
	}

	opts := settlement.Options{
		DispatcherCommissionPercent: decimal.NewFromFloat(settings.DispatcherCommissionPercent),
		FactoringPercent:            decimal.NewFromFloat(settings.DefaultFactoringPercent),
	}
	if opts.DispatcherCommissionPercent, err = percentFlag(cmd, "dispatcher-percent", opts.DispatcherCommissionPercent); err != nil {
		return err
	}
	if opts.FactoringPercent, err = percentFlag(cmd, "factoring-percent", opts.FactoringPercent); err != nil {
		return err
	}

	sum := settlement.Aggregate(period, snap, opts)
	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"period":  period.String(),
		"summary": sum,
	})
}

func percentFlag(cmd *cobra.Command, name string, def decimal.Decimal) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return def, errors.Wrapf(err, "--%s", name)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return def, errors.Errorf("--%s must be within 0..100", name)
	}
	return d, nil
}
