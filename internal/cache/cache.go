package cache

import (
	"context"
	"sync"
	"time"

	"retailpos/backend/internal/domain"
)

// SummaryCache holds computed dashboard summaries keyed by store and day.
type SummaryCache interface {
	Get(ctx context.Context, key string) (*domain.TodaySummary, bool, error)
	Set(ctx context.Context, key string, value *domain.TodaySummary, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func SummaryKey(storeID string, dateKey string) string {
	return "summary:" + storeID + ":" + dateKey
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.TodaySummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *domain.TodaySummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Delete(_ context.Context, _ string) error {
	return nil
}

type memoryEntry struct {
	value     domain.TodaySummary
	expiresAt time.Time
}

// MemorySummaryCache is an in-process cache used when Redis is not configured.
type MemorySummaryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemorySummaryCache() *MemorySummaryCache {
	return &MemorySummaryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemorySummaryCache) Get(_ context.Context, key string) (*domain.TodaySummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	value := entry.value
	return &value, true, nil
}

func (c *MemorySummaryCache) Set(_ context.Context, key string, value *domain.TodaySummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	entry := memoryEntry{value: *value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemorySummaryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}
