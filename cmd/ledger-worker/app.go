package main

import (
	"context"
	"time"

	"github.com/BearBump/HaulLedger/config"
	"github.com/BearBump/HaulLedger/internal/broker/kafka"
	"github.com/BearBump/HaulLedger/internal/cache"
	"github.com/BearBump/HaulLedger/internal/cache/rediscache"
	"github.com/BearBump/HaulLedger/internal/services/invoicing"
	"github.com/BearBump/HaulLedger/internal/services/lifecycle"
	"github.com/BearBump/HaulLedger/internal/services/reports"
	"github.com/BearBump/HaulLedger/internal/services/sweeper"
	"github.com/BearBump/HaulLedger/internal/storage/pgledger"
)

// workerStore is what the sweeper and the overdue task rules need from storage.
type workerStore interface {
	sweeper.Repository
	lifecycle.Repository
}

type workerFactories struct {
	newStorage  func(cfg *config.Config) (repo workerStore, closeFn func(), err error)
	newProducer func(cfg *config.Config) sweeper.Producer
	newLocker   func(cfg *config.Config) sweeper.Locker
	newCache    func(cfg *config.Config) cache.BytesCache
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			st, err := pgledger.New(cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) sweeper.Producer {
			return kafka.NewProducer(cfg.Kafka.BrokerList())
		},
		newLocker: func(cfg *config.Config) sweeper.Locker {
			return rediscache.NewLocker(cfg.Redis.Addr())
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			return rediscache.New(cfg.Redis.Addr())
		},
	}
}

func newSweeper(cfg *config.Config, repo workerStore, producer sweeper.Producer, locker sweeper.Locker, c cache.BytesCache) *sweeper.Sweeper {
	topic := cfg.Kafka.LedgerEventsTopicName
	if topic == "" {
		topic = "ledger.events"
	}
	interval := time.Duration(cfg.HaulLedger.WorkerPollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	concurrency := cfg.HaulLedger.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	lockTTL := time.Duration(cfg.HaulLedger.WorkerLockTTLSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	cacheTTL := time.Duration(cfg.HaulLedger.SummaryCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	guard := invoicing.New().WithSettings(cfg.HaulLedger.InvoicePrefix, cfg.HaulLedger.InvoiceDueDays)
	rep := reports.New(repo, c, cacheTTL)
	// Просроченные счета создают задачи через те же правила, что и API.
	lc := lifecycle.New(repo, producer, topic).WithGuard(guard).WithCacheInvalidator(rep)

	return sweeper.New(repo, producer, locker, topic).
		WithSettings(interval, concurrency, lockTTL).
		WithGuard(guard).
		WithEventSink(lc).
		WithCacheInvalidator(rep)
}

// RunLedgerWorker runs the invoice sweeper until ctx ends. The operational
// HTTP server starts alongside it when httpOpts carries a swagger path.
func RunLedgerWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts workerHTTPOpts) error {
	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	var c cache.BytesCache
	if f.newCache != nil {
		c = f.newCache(cfg)
	}
	sw := newSweeper(cfg, repo, f.newProducer(cfg), f.newLocker(cfg), c)

	if httpOpts.swaggerPath == "" {
		return sw.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpOpts.sweeper = sw
	httpOpts.cfg = cfg
	httpErr := make(chan error, 1)
	go func() { httpErr <- runWorkerHTTPServer(ctx, httpOpts) }()

	runErr := make(chan error, 1)
	go func() { runErr <- sw.Run(ctx) }()

	select {
	case err := <-runErr:
		return err
	case err := <-httpErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cancel()
		<-runErr
		return err
	}
}
