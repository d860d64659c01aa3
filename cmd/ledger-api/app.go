package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	ledgerapi "github.com/BearBump/HaulLedger/internal/api/ledger_api"
	"github.com/BearBump/HaulLedger/internal/broker/messages"
	"github.com/BearBump/HaulLedger/internal/metrics"
	"github.com/BearBump/HaulLedger/internal/services/lifecycle"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type ledgerAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	// consumerRetry is the pause before consuming again after a failure.
	consumerRetry time.Duration

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error
}

type loadEventHandler interface {
	HandleLoadEvent(ctx context.Context, msg messages.LoadChanged) (lifecycle.Outcome, error)
}

func runLedgerAPI(ctx context.Context, opts ledgerAPIOpts, api *ledgerapi.LedgerAPI, lc loadEventHandler, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, newRouter(api, opts.swaggerPath))
	}()

	go runConsumer(ctx, opts, consumer, handleLoadMessage(lc))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// runConsumer keeps consuming until ctx ends. Consume returns on the first
// handler error; the uncommitted message comes back after the group rebalances.
func runConsumer(ctx context.Context, opts ledgerAPIOpts, consumer kafkaConsumer, handler func(ctx context.Context, key, value []byte) error) {
	retry := opts.consumerRetry
	if retry <= 0 {
		retry = 2 * time.Second
	}
	slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
	for {
		err := consumer.Consume(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		slog.Error("kafka consumer stopped", "topic", opts.topic, "error", fmt.Sprint(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

// handleLoadMessage decodes a LoadChanged message and applies it. Messages
// that can never succeed are logged and skipped so they do not block the
// partition.
func handleLoadMessage(lc loadEventHandler) func(ctx context.Context, key, value []byte) error {
	return func(ctx context.Context, key, value []byte) error {
		var m messages.LoadChanged
		if err := json.Unmarshal(value, &m); err != nil {
			metrics.EventsConsumed.WithLabelValues("unknown", "malformed").Inc()
			slog.Warn("skip malformed load event", "key", string(key), "error", err.Error())
			return nil
		}

		out, err := lc.HandleLoadEvent(ctx, m)
		switch {
		case errors.Is(err, lifecycle.ErrInvalidArgument):
			metrics.EventsConsumed.WithLabelValues(m.Type, "invalid").Inc()
			slog.Warn("skip invalid load event", "tenant_id", m.TenantID, "load_id", m.Load.ID, "error", err.Error())
			return nil
		case err != nil:
			metrics.EventsConsumed.WithLabelValues(m.Type, "error").Inc()
			return errors.Wrapf(err, "handle %s for load %s", m.Type, m.Load.ID)
		}

		metrics.EventsConsumed.WithLabelValues(m.Type, "ok").Inc()
		slog.Info("load event applied",
			"tenant_id", m.TenantID, "load_id", m.Load.ID, "type", m.Type,
			"tasks_created", len(out.Created), "tasks_updated", len(out.Updated), "invoiced", out.Invoice != nil)
		return nil
	}
}

func newRouter(api *ledgerapi.LedgerAPI, swaggerPath string) http.Handler {
	metrics.RegisterDefault()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	api.Routes(r)
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
