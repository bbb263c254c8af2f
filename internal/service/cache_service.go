package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheService is a read-through cache in front of Redis. Failures never
// surface to callers as anything but a miss.
type CacheService struct {
	repo        CacheRepository
	metrics     *MetricsService
	defaultTTL  time.Duration
	logger      *zap.Logger
	enabled     bool
	loads       singleflight.Group
	loadTimeout time.Duration
}

const defaultLoadTimeout = 10 * time.Second

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled, loadTimeout: defaultLoadTimeout}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
// Only transport failures are returned as errors; a miss is (false, nil).
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes the cached value for key.
func (s *CacheService) Invalidate(ctx context.Context, key string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Fetch returns the cached value of key or, on a miss, the result of load,
// which is then stored for ttl. Concurrent misses on one key share a single
// load. The returned value may be shared between callers and must not be mutated.
func Fetch[T any](ctx context.Context, s *CacheService, key string, ttl time.Duration, load func(context.Context) (*T, error)) (*T, bool, error) {
	if !s.Enabled() {
		value, err := load(ctx)
		return value, false, err
	}

	var cached T
	if hit, _ := s.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	// The shared load runs detached from whichever caller started it under its
	// own timeout. Each caller waits until its own ctx ends.
	results := s.loads.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		_ = s.Set(loadCtx, key, value, ttl)
		return value, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*T), false, nil
	}
}
