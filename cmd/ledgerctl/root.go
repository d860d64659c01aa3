// Command ledgerctl runs the settlement and invoicing engines over a JSON
// snapshot of one tenant, without Postgres, Redis or Kafka.
package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/BearBump/HaulLedger/config"
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Offline settlement and invoice tooling",
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("config", "", "YAML config to take haulledger defaults from")
	root.PersistentFlags().StringP("snapshot", "s", "", "Path to the tenant snapshot JSON")

	root.AddCommand(newSummaryCmd(), newReconcileCmd())
	return root
}

// loadSettings returns the haulledger section of --config, or zero values.
func loadSettings(cmd *cobra.Command) (config.HaulLedgerConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.HaulLedgerConfig{}, nil
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.HaulLedgerConfig{}, err
	}
	return cfg.HaulLedger, nil
}

func readSnapshot(cmd *cobra.Command) (models.Snapshot, error) {
	path, _ := cmd.Flags().GetString("snapshot")
	if path == "" {
		return models.Snapshot{}, errors.New("--snapshot is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return models.Snapshot{}, errors.Wrap(err, "read snapshot")
	}
	var snap models.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return models.Snapshot{}, errors.Wrapf(err, "decode snapshot %s", path)
	}
	return snap, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
