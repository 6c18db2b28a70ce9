package providers

import (
	"tokcache/internal/models"
	"tokcache/internal/structures"
)

// MetricsCacheProvider counts page hits, misses and scope invalidations of
// the response cache. Generation lookups are not counted.
type MetricsCacheProvider struct {
	inner   CacheProviderInterface
	metrics MetricsProviderInterface
}

func (c *MetricsCacheProvider) Get(key string) ([]byte, bool) {
	val, ok := c.inner.Get(key)
	if ok {
		c.metrics.IncCacheHits()
	} else {
		c.metrics.IncCacheMisses()
	}
	return val, ok
}

func (c *MetricsCacheProvider) Set(key string, value []byte) {
	c.inner.Set(key, value)
}

func (c *MetricsCacheProvider) PageKey(scope models.Scope, q models.ListQuery) string {
	return c.inner.PageKey(scope, q)
}

func (c *MetricsCacheProvider) InvalidateScope(scope models.Scope) {
	c.inner.InvalidateScope(scope)
	c.metrics.IncCacheInvalidations(string(scope.Kind))
}

// NewInstrumentedCacheProvider wraps the response cache with metrics. A
// disabled cache is returned bare so it does not report a miss per request.
func NewInstrumentedCacheProvider(conf *structures.Config, logger Logger, metrics MetricsProviderInterface) CacheProviderInterface {
	inner := NewCacheProvider(conf, logger)
	if _, disabled := inner.(*noopCache); disabled {
		return inner
	}
	return &MetricsCacheProvider{
		inner:   inner,
		metrics: metrics,
	}
}
