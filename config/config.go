package config

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	HaulLedger HaulLedgerConfig `yaml:"haulledger"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString builds the postgres URL, defaulting sslmode to disable.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Brokers overrides host:port when set, e.g. "k1:9092,k2:9092".
	Brokers               string `yaml:"brokers"`
	LoadEventsTopicName   string `yaml:"load_events_topic_name"`
	LedgerEventsTopicName string `yaml:"ledger_events_topic_name"`
}

func (k KafkaConfig) BrokerList() []string {
	if strings.TrimSpace(k.Brokers) != "" {
		var out []string
		for _, b := range strings.Split(k.Brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
		return out
	}
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type HaulLedgerConfig struct {
	HTTPAddr               string `yaml:"http_addr"`
	KafkaConsumerGroup     string `yaml:"kafka_consumer_group"`
	SummaryCacheTTLSeconds int    `yaml:"summary_cache_ttl_seconds"`
	LoadEventsPerMinute    int    `yaml:"load_events_per_minute"`

	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds"`
	WorkerConcurrency         int    `yaml:"worker_concurrency"`
	WorkerLockTTLSeconds      int    `yaml:"worker_lock_ttl_seconds"`
	WorkerHTTPAddr            string `yaml:"worker_http_addr"`

	InvoicePrefix  string `yaml:"invoice_prefix"`
	InvoiceDueDays int    `yaml:"invoice_due_days"`

	// Percentages on the 0..100 scale.
	DefaultFactoringPercent     float64 `yaml:"default_factoring_percent"`
	DispatcherCommissionPercent float64 `yaml:"dispatcher_commission_percent"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
