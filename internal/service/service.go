package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/logger"
	"retailpos/backend/internal/sequence"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Settings holds the business knobs the service reads from configuration.
type Settings struct {
	Location           *time.Location
	SummaryTTL         time.Duration
	RejectUnderpayment bool
}

type Service struct {
	repo      store.Repository
	sequencer *sequence.Generator
	summaries cache.SummaryCache
	settings  Settings
	now       func() time.Time
	log       zerolog.Logger

	genMu      sync.Mutex
	summaryGen map[string]uint64
}

func New(repo store.Repository, sequencer *sequence.Generator, summaries cache.SummaryCache, settings Settings) *Service {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if sequencer == nil {
		sequencer = sequence.NewGenerator(repo, settings.Location)
	}
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}

	return &Service{
		repo:      repo,
		sequencer: sequencer,
		summaries: summaries,
		settings:  settings,
		now:        time.Now,
		log:        logger.WithComponent("service"),
		summaryGen: make(map[string]uint64),
	}
}

// requireStoreAccess returns the caller when it may operate on storeID.
func (s *Service) requireStoreAccess(ctx context.Context, storeID string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: no authenticated caller", ErrForbidden)
	}
	if strings.TrimSpace(storeID) == "" {
		return domain.Actor{}, fmt.Errorf("%w: store_id is required", ErrInvalidRequest)
	}
	if !actor.CanAccessStore(storeID) {
		return domain.Actor{}, fmt.Errorf("%w: no access to store %s", ErrForbidden, storeID)
	}
	return actor, nil
}

// requireManager is requireStoreAccess restricted to OWNER and ADMIN.
func (s *Service) requireManager(ctx context.Context, storeID string) (domain.Actor, error) {
	actor, err := s.requireStoreAccess(ctx, storeID)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleOwner && actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("%w: owner or admin role required", ErrForbidden)
	}
	return actor, nil
}

// dayBounds returns the [start, end) instants of the reporting-timezone day containing t.
func (s *Service) dayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(s.settings.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.settings.Location)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// summaryGeneration counts invalidations of a summary key in this process.
func (s *Service) summaryGeneration(key string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.summaryGen[key]
}

func (s *Service) invalidateSummary(ctx context.Context, storeID string, at time.Time) {
	key := cache.SummaryKey(storeID, s.sequencer.DateKey(at))
	s.genMu.Lock()
	s.summaryGen[key]++
	s.genMu.Unlock()
	if err := s.summaries.Delete(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("store_id", storeID).Msg("failed to invalidate summary cache")
	}
}

const defaultAuditLimit = 100

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireManager(ctx, storeID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, defaultAuditLimit, maxHistoryLimit)

	var from, to time.Time
	if strings.TrimSpace(date) == "" {
		to = s.now().UTC()
		from = to.Add(-24 * time.Hour)
	} else {
		parsed, err := time.ParseInLocation("2006-01-02", date, s.settings.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest)
		}
		from, to = s.dayBounds(parsed)
	}

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.log.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("failed to write audit log")
	}
}

func clampLimit(limit int, fallback int, max int) int {
	if limit < 1 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

// Location is the reporting timezone used for day boundaries.
func (s *Service) Location() *time.Location {
	return s.settings.Location
}
