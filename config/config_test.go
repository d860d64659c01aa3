package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  load_events_topic_name: "loads.changed"
  ledger_events_topic_name: "ledger.events"
redis:
  host: "localhost"
  port: 6379
haulledger:
  http_addr: ":8080"
  kafka_consumer_group: "ledger-api"
  summary_cache_ttl_seconds: 300
  invoice_prefix: "HL"
  invoice_due_days: 45
  dispatcher_commission_percent: 7.5
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable", cfg.Database.ConnString())
	require.Equal(t, "loads.changed", cfg.Kafka.LoadEventsTopicName)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.BrokerList())
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, ":8080", cfg.HaulLedger.HTTPAddr)
	require.Equal(t, 45, cfg.HaulLedger.InvoiceDueDays)
	require.Equal(t, 7.5, cfg.HaulLedger.DispatcherCommissionPercent)
}

func TestKafkaBrokerListOverride(t *testing.T) {
	k := KafkaConfig{Host: "ignored", Port: 1, Brokers: " k1:9092, ,k2:9092 "}
	require.Equal(t, []string{"k1:9092", "k2:9092"}, k.BrokerList())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("database: [unterminated"), 0o600))
	_, err = LoadConfig(p)
	require.Error(t, err)
}
