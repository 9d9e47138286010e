// Package sequence allocates per-store, per-day invoice numbers.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"retailpos/backend/internal/logger"
	"retailpos/backend/internal/store"
)

var ErrSequenceAllocationFailed = errors.New("sequence allocation failed")

const (
	DefaultMaxAttempts = 5
	dateKeyLayout      = "20060102"
)

type Generator struct {
	counter     store.CounterStore
	loc         *time.Location
	maxAttempts int
	backoff     time.Duration
	log         zerolog.Logger
}

func NewGenerator(counter store.CounterStore, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{
		counter:     counter,
		loc:         loc,
		maxAttempts: DefaultMaxAttempts,
		backoff:     5 * time.Millisecond,
		log:         logger.WithComponent("sequence"),
	}
}

func (g *Generator) Location() *time.Location {
	return g.loc
}

// DateKey formats t as YYYYMMDD in the generator's reporting timezone.
func (g *Generator) DateKey(t time.Time) string {
	return DateKey(t, g.loc)
}

func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dateKeyLayout)
}

// Next returns the next sequence value for the key. Only store.ErrConflict is
// retried, and at most maxAttempts times.
func (g *Generator) Next(ctx context.Context, storeID string, dateKey string) (int64, error) {
	if strings.TrimSpace(storeID) == "" || dateKey == "" {
		return 0, fmt.Errorf("%w: store id and date key are required", ErrSequenceAllocationFailed)
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		seq, err := g.counter.NextSequence(ctx, storeID, dateKey)
		if err == nil {
			return seq, nil
		}
		lastErr = err
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		g.log.Debug().Str("store_id", storeID).Str("date_key", dateKey).Int("attempt", attempt).Msg("sequence conflict, retrying")

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %v", ErrSequenceAllocationFailed, ctx.Err())
		case <-time.After(time.Duration(attempt) * g.backoff):
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrSequenceAllocationFailed, lastErr)
}

// NextInvoiceNumber allocates a sequence for the day containing at and
// formats it as an invoice number.
func (g *Generator) NextInvoiceNumber(ctx context.Context, storeID string, at time.Time) (string, error) {
	dateKey := g.DateKey(at)
	seq, err := g.Next(ctx, storeID, dateKey)
	if err != nil {
		return "", err
	}
	return FormatInvoiceNumber(storeID, dateKey, seq), nil
}

// FormatInvoiceNumber renders INV-{last 4 of storeID, upper}-{YYYYMMDD}-{seq, 4 digits}.
func FormatInvoiceNumber(storeID string, dateKey string, seq int64) string {
	suffix := storeID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return fmt.Sprintf("INV-%s-%s-%04d", strings.ToUpper(suffix), dateKey, seq)
}
