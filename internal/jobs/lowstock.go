// Package jobs runs scheduled background work.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"retailpos/backend/internal/logger"
	"retailpos/backend/internal/service"
)

// Scanner is the part of the service the watcher drives.
type Scanner interface {
	ScanLowStock(ctx context.Context) ([]service.LowStockReport, error)
}

// LowStockWatcher periodically logs low-stock products per store and
// refreshes each store's cached daily summary.
type LowStockWatcher struct {
	scanner Scanner
	cron    *cron.Cron
	timeout time.Duration
	log     zerolog.Logger
}

func NewLowStockWatcher(scanner Scanner, spec string, loc *time.Location) (*LowStockWatcher, error) {
	if loc == nil {
		loc = time.UTC
	}
	w := &LowStockWatcher{
		scanner: scanner,
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: time.Minute,
		log:     logger.WithComponent("jobs"),
	}
	if _, err := w.cron.AddFunc(spec, func() { w.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid low stock schedule %q: %w", spec, err)
	}
	return w, nil
}

func (w *LowStockWatcher) Start() {
	w.cron.Start()
	w.log.Info().Msg("low stock watcher started")
}

// Stop halts scheduling and waits for a running scan, bounded by ctx.
func (w *LowStockWatcher) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		w.log.Warn().Msg("low stock watcher stop timed out")
	}
}

// RunOnce performs a single scan and returns the number of low-stock products found.
func (w *LowStockWatcher) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	started := time.Now()
	reports, err := w.scanner.ScanLowStock(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("low stock scan failed")
	}

	total := 0
	for _, r := range reports {
		total += len(r.Products)
		if len(r.Products) == 0 {
			continue
		}
		skus := make([]string, 0, len(r.Products))
		for _, p := range r.Products {
			skus = append(skus, p.SKU)
		}
		w.log.Warn().
			Str("store_id", r.StoreID).
			Int("count", len(r.Products)).
			Strs("skus", skus).
			Int64("today_sales_cents", r.Summary.TotalSalesCents).
			Msg("products at or below minimum stock")
	}
	w.log.Debug().Int("stores", len(reports)).Int("low_stock", total).Dur("took", time.Since(started)).Msg("low stock scan finished")
	return total
}
