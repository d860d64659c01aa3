package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/HaulLedger/internal/cache"
	"github.com/BearBump/HaulLedger/internal/models"
	"github.com/BearBump/HaulLedger/internal/services/settlement"
	"github.com/pkg/errors"
)

type Repository interface {
	Snapshot(ctx context.Context, tenantID string) (models.Snapshot, error)
}

type Service struct {
	repo  Repository
	cache cache.BytesCache
	ttl   time.Duration
	opts  settlement.Options
}

func New(repo Repository, c cache.BytesCache, ttl time.Duration) *Service {
	return &Service{repo: repo, cache: c, ttl: ttl}
}

func (s *Service) WithOptions(opts settlement.Options) *Service {
	s.opts = opts
	return s
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

// Summary returns the period summary, served from cache when possible.
func (s *Service) Summary(ctx context.Context, tenantID string, period settlement.Period) (settlement.Summary, error) {
	if strings.TrimSpace(tenantID) == "" {
		return settlement.Summary{}, errors.New("tenant is required")
	}
	key := summaryKey(tenantID, period)

	if s.cacheEnabled() {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var sum settlement.Summary
			if json.Unmarshal(b, &sum) == nil {
				return sum, nil
			}
		}
	}

	snap, err := s.repo.Snapshot(ctx, tenantID)
	if err != nil {
		return settlement.Summary{}, errors.Wrap(err, "load snapshot")
	}
	sum := settlement.Aggregate(period, snap, s.opts)
	if len(sum.Warnings) > 0 {
		slog.Warn("summary built from degraded data", "tenant_id", tenantID, "period", period.String(), "warnings", len(sum.Warnings))
	}

	if s.cacheEnabled() {
		if b, err := json.Marshal(sum); err == nil {
			_ = s.cache.Set(ctx, key, b, s.ttl)
		}
	}
	return sum, nil
}

// InvalidateCache drops every cached summary of the tenant.
func (s *Service) InvalidateCache(ctx context.Context, tenantID string) error {
	if !s.cacheEnabled() {
		return nil
	}
	return s.cache.DeletePrefix(ctx, tenantPrefix(tenantID))
}

func tenantPrefix(tenantID string) string {
	return fmt.Sprintf("summary:%s:", tenantID)
}

func summaryKey(tenantID string, p settlement.Period) string {
	return tenantPrefix(tenantID) + p.String()
}
