package service

import (
	"context"
	"fmt"
	"time"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
)

const (
	defaultLowStockLimit = 20
	defaultRecentLimit   = 10
	maxDashboardLimit    = 100
)

// TodaySummary totals the live sales of the current reporting day. Results
// are cached until the next commit or void in the store, or the TTL. A summary
// read before a concurrent commit is never left in the cache by this process;
// commits made by other processes sharing a redis cache show up within the TTL.
func (s *Service) TodaySummary(ctx context.Context, storeID string) (domain.TodaySummary, error) {
	if _, err := s.requireStoreAccess(ctx, storeID); err != nil {
		return domain.TodaySummary{}, err
	}
	return s.computeSummary(ctx, storeID, true)
}

func (s *Service) computeSummary(ctx context.Context, storeID string, useCache bool) (domain.TodaySummary, error) {
	now := s.now()
	key := cache.SummaryKey(storeID, s.sequencer.DateKey(now))
	if useCache {
		cached, ok, err := s.summaries.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("store_id", storeID).Msg("summary cache read failed")
		}
		if ok {
			return *cached, nil
		}
	}

	gen := s.summaryGeneration(key)
	from, to := s.dayBounds(now)
	total, count, err := s.repo.SummarizeSales(ctx, storeID, from, to)
	if err != nil {
		return domain.TodaySummary{}, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	summary := domain.TodaySummary{
		StoreID:          storeID,
		Date:             now.In(s.settings.Location).Format("2006-01-02"),
		TotalSalesCents:  total,
		TransactionCount: count,
	}
	if s.summaryGeneration(key) != gen {
		return summary, nil
	}
	if err := s.summaries.Set(ctx, key, &summary, s.settings.SummaryTTL); err != nil {
		s.log.Warn().Err(err).Str("store_id", storeID).Msg("summary cache write failed")
	}
	// An invalidation that slipped in between the check and Set drops the entry.
	if s.summaryGeneration(key) != gen {
		if err := s.summaries.Delete(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("store_id", storeID).Msg("failed to invalidate summary cache")
		}
	}
	return summary, nil
}

// LowStock lists active products at or below their minimum stock, lowest first.
func (s *Service) LowStock(ctx context.Context, storeID string, limit int) ([]domain.Product, error) {
	if _, err := s.requireStoreAccess(ctx, storeID); err != nil {
		return nil, err
	}
	return s.repo.ListLowStock(ctx, storeID, clampLimit(limit, defaultLowStockLimit, maxDashboardLimit))
}

func (s *Service) RecentTransactions(ctx context.Context, storeID string, limit int) ([]domain.Transaction, error) {
	resp, err := s.ListTransactions(ctx, storeID, time.Time{}, time.Time{}, clampLimit(limit, defaultRecentLimit, maxDashboardLimit))
	if err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

// LowStockReport is one store's result from ScanLowStock.
type LowStockReport struct {
	StoreID  string
	Products []domain.Product
	Summary  domain.TodaySummary
}

// ScanLowStock walks every store, collecting low-stock products and
// refreshing the cached daily summary. It runs without a caller identity.
func (s *Service) ScanLowStock(ctx context.Context) ([]LowStockReport, error) {
	storeIDs, err := s.repo.ListStoreIDs(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]LowStockReport, 0, len(storeIDs))
	for _, storeID := range storeIDs {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		products, err := s.repo.ListLowStock(ctx, storeID, defaultLowStockLimit)
		if err != nil {
			return reports, err
		}
		summary, err := s.computeSummary(ctx, storeID, false)
		if err != nil {
			return reports, err
		}
		reports = append(reports, LowStockReport{StoreID: storeID, Products: products, Summary: summary})
	}
	return reports, nil
}
