package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/HaulLedger/config"
	ledgerapi "github.com/BearBump/HaulLedger/internal/api/ledger_api"
	"github.com/BearBump/HaulLedger/internal/broker/kafka"
	"github.com/BearBump/HaulLedger/internal/cache/rediscache"
	"github.com/BearBump/HaulLedger/internal/services/invoicing"
	"github.com/BearBump/HaulLedger/internal/services/lifecycle"
	"github.com/BearBump/HaulLedger/internal/services/reports"
	"github.com/BearBump/HaulLedger/internal/services/settlement"
	"github.com/BearBump/HaulLedger/internal/storage/pgledger"
	"github.com/shopspring/decimal"
)

type ledgerAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     ledgerAPIOpts
	api      *ledgerapi.LedgerAPI
	lc       *lifecycle.Service
	consumer *kafka.Consumer
	producer *kafka.Producer
	cache    *rediscache.RedisCache
	closeDB  func()
}

func mustBootstrapLedgerAPI() *ledgerAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.HaulLedger.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.HaulLedger.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "ledger-api"
	}
	loadTopic := cfg.Kafka.LoadEventsTopicName
	if loadTopic == "" {
		loadTopic = "loads.changed"
	}
	ledgerTopic := cfg.Kafka.LedgerEventsTopicName
	if ledgerTopic == "" {
		ledgerTopic = "ledger.events"
	}
	cacheTTL := time.Duration(cfg.HaulLedger.SummaryCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)

	rc := rediscache.New(cfg.Redis.Addr())
	rl := rediscache.NewRateLimiter(cfg.Redis.Addr())

	brokers := cfg.Kafka.BrokerList()
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, loadTopic, consumerGroup)

	rep := reports.New(st, rc, cacheTTL).WithOptions(settlementOptions(cfg))
	guard := invoicing.New().WithSettings(cfg.HaulLedger.InvoicePrefix, cfg.HaulLedger.InvoiceDueDays)
	lc := lifecycle.New(st, producer, ledgerTopic).
		WithGuard(guard).
		WithCacheInvalidator(rep)
	api := ledgerapi.New(lc, rep).WithRateLimit(rl, int64(cfg.HaulLedger.LoadEventsPerMinute))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &ledgerAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: ledgerAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         loadTopic,
			consumerGroup: consumerGroup,
		},
		api:      api,
		lc:       lc,
		consumer: consumer,
		producer: producer,
		cache:    rc,
		closeDB:  st.Close,
	}
}

func settlementOptions(cfg *config.Config) settlement.Options {
	return settlement.Options{
		DispatcherCommissionPercent: decimal.NewFromFloat(cfg.HaulLedger.DispatcherCommissionPercent),
		FactoringPercent:            decimal.NewFromFloat(cfg.HaulLedger.DefaultFactoringPercent),
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgledger.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgledger.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *ledgerAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *ledgerAPIApp) Run() error {
	return runLedgerAPI(a.ctx, a.opts, a.api, a.lc, a.consumer)
}
