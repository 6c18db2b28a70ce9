package providers

import (
	"strconv"
	"unsafe"

	"github.com/coocood/freecache"
	"github.com/google/uuid"

	"tokcache/internal/models"
	"tokcache/internal/structures"
)

// CacheProviderInterface is the listing response cache. Pages are keyed by
// scope generation: InvalidateScope retires every page key handed out for the
// scope before the call.
type CacheProviderInterface interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	PageKey(scope models.Scope, q models.ListQuery) string
	InvalidateScope(scope models.Scope)
}

func GenerationKey(scope models.Scope) string {
	return "gen:" + scope.String()
}

// FormatPageKey builds the key of one listing page cached under generation gen.
func FormatPageKey(scope models.Scope, gen string, q models.ListQuery) string {
	return "list:" + scope.String() + ":" + gen + ":" + q.Tag + ":" +
		strconv.Itoa(q.Limit) + ":" + strconv.Itoa(q.Offset)
}

type CacheProvider struct {
	cache *freecache.Cache
	ttl   int
}

func NewCacheProvider(conf *structures.Config, logger Logger) CacheProviderInterface {
	if !conf.Cache.Enabled || conf.Cache.Size <= 0 {
		logger.Infof(TypeApp, "Response cache disabled")
		return &noopCache{}
	}

	sizeBytes := conf.Cache.Size * 1024 * 1024
	ttl := max(int(conf.Cache.TTL.Seconds()), 1)

	logger.Infof(TypeApp, "Response cache: %dMB, page TTL=%ds", conf.Cache.Size, ttl)

	return &CacheProvider{
		cache: freecache.NewCache(sizeBytes),
		ttl:   ttl,
	}
}

// keyBytes views s as bytes without copying. freecache copies keys on Set
// and never writes to them.
func keyBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func (c *CacheProvider) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get(keyBytes(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *CacheProvider) Set(key string, value []byte) {
	_ = c.cache.Set(keyBytes(key), value, c.ttl)
}

func (c *CacheProvider) PageKey(scope models.Scope, q models.ListQuery) string {
	return FormatPageKey(scope, c.generation(scope), q)
}

func (c *CacheProvider) InvalidateScope(scope models.Scope) {
	_ = c.cache.Set(keyBytes(GenerationKey(scope)), []byte(uuid.NewString()), 0)
}

// generation returns the current generation of scope, starting a new one when
// none is stored. Generations do not expire; an evicted one is replaced, which
// only orphans the pages cached under it.
func (c *CacheProvider) generation(scope models.Scope) string {
	key := keyBytes(GenerationKey(scope))
	if gen, err := c.cache.Get(key); err == nil {
		return string(gen)
	}
	gen := uuid.NewString()
	_ = c.cache.Set(key, []byte(gen), 0)
	return gen
}

type noopCache struct{}

func (n *noopCache) Get(_ string) ([]byte, bool)    { return nil, false }
func (n *noopCache) Set(_ string, _ []byte)         {}
func (n *noopCache) InvalidateScope(_ models.Scope) {}
func (n *noopCache) PageKey(scope models.Scope, q models.ListQuery) string {
	return FormatPageKey(scope, "", q)
}
