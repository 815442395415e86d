package insight

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/compounding/growth-backend/internal/metrics"
	"github.com/compounding/growth-backend/pkg/logger"
)

// Cache stores insights keyed by request.
type Cache interface {
	// Get returns ok == false on a miss.
	Get(ctx context.Context, key string) (ins Insight, ok bool, err error)
	Set(ctx context.Context, key string, ins Insight) error
}

// CacheKey derives the cache key for a request.
func CacheKey(req Request) string {
	return fmt.Sprintf("insight:%d:%s:%s",
		req.TotalDays,
		strconv.FormatFloat(req.DailyRate, 'g', -1, 64),
		strconv.FormatFloat(req.FinalValue, 'f', 6, 64))
}

// CachingProvider serves repeated requests from a cache and only stores
// successful insights. Cache failures are logged and treated as misses.
type CachingProvider struct {
	next    Provider
	cache   Cache
	logger  *logger.Logger
	metrics *metrics.Collector
}

// NewCachingProvider wraps next with cache
func NewCachingProvider(next Provider, cache Cache, log *logger.Logger, m *metrics.Collector) *CachingProvider {
	return &CachingProvider{
		next:    next,
		cache:   cache,
		logger:  log,
		metrics: m,
	}
}

// RequestInsight implements Provider
func (p *CachingProvider) RequestInsight(ctx context.Context, req Request) (Insight, error) {
	key := CacheKey(req)

	ins, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn("Insight cache read failed", logger.F("key", key), logger.F("error", err.Error()))
	}
	if ok {
		p.metrics.RecordCacheHit()
		return ins, nil
	}
	p.metrics.RecordCacheMiss()

	ins, err = p.next.RequestInsight(ctx, req)
	if err != nil {
		return Insight{}, err
	}

	// The caller's context may already be near its deadline; give the write its own budget.
	setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.cache.Set(setCtx, key, ins); err != nil {
		p.logger.Warn("Insight cache write failed", logger.F("key", key), logger.F("error", err.Error()))
	}

	return ins, nil
}
