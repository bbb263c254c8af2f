package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/slotbook-api/internal/models"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

type policyLoader interface {
	LoadPolicy(ctx context.Context, eventTypeID string) (*models.SchedulePolicy, error)
}

// PolicyService resolves event types into schedule policies, caching the normalised form.
type PolicyService struct {
	repo   policyLoader
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewPolicyService constructs a PolicyService. cache may be nil.
func NewPolicyService(repo policyLoader, cache *CacheService, ttl time.Duration, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func policyCacheKey(eventTypeID string) string {
	return fmt.Sprintf("policy:%s", eventTypeID)
}

// Get returns the policy of an active event type with its location resolved.
func (s *PolicyService) Get(ctx context.Context, eventTypeID string) (*models.SchedulePolicy, error) {
	if eventTypeID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event type id is required")
	}

	key := policyCacheKey(eventTypeID)
	policy, hit, err := Fetch(ctx, s.cache, key, s.ttl, s.load(eventTypeID))
	if err != nil {
		return nil, err
	}
	if _, err := policy.Loc(); err != nil {
		if !hit {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "event type has an invalid timezone")
		}
		s.logger.Warn("cached policy has an unknown timezone, reloading", zap.String("event_type_id", eventTypeID), zap.Error(err))
		s.Invalidate(ctx, eventTypeID)
		return s.load(eventTypeID)(ctx)
	}
	return policy, nil
}

func (s *PolicyService) load(eventTypeID string) func(context.Context) (*models.SchedulePolicy, error) {
	return func(ctx context.Context) (*models.SchedulePolicy, error) {
		policy, err := s.repo.LoadPolicy(ctx, eventTypeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "event type not found")
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, appErrors.Clone(appErrors.ErrTimeout, "loading event type timed out")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event type")
		}
		if _, err := policy.Loc(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "event type has an invalid timezone")
		}
		return policy, nil
	}
}

// Invalidate drops the cached policy of an event type.
func (s *PolicyService) Invalidate(ctx context.Context, eventTypeID string) {
	if err := s.cache.Invalidate(ctx, policyCacheKey(eventTypeID)); err != nil {
		s.logger.Debug("policy cache invalidation failed", zap.String("event_type_id", eventTypeID), zap.Error(err))
	}
}
