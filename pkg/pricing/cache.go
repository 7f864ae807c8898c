package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// TariffCache caches tariffs per provider and region
type TariffCache struct {
	data  map[string]*cacheEntry
	ttl   time.Duration
	now   func() time.Time
	mutex sync.Mutex
}

type cacheEntry struct {
	tariff    *models.Tariff
	expiresAt time.Time
}

func NewTariffCache(ttl time.Duration) *TariffCache {
	return &TariffCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (c *TariffCache) Get(key string) *models.Tariff {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.data[key]
	if !exists {
		return nil
	}

	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil
	}

	return entry.tariff
}

func (c *TariffCache) Set(key string, tariff *models.Tariff) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = &cacheEntry{
		tariff:    tariff,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *TariffCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[string]*cacheEntry)
}

// cachedProvider serves repeated lookups from a TariffCache
type cachedProvider struct {
	inner Provider
	cache *TariffCache
}

// WithCache wraps p so tariffs are fetched at most once per ttl and region
func WithCache(p Provider, ttl time.Duration) Provider {
	return &cachedProvider{inner: p, cache: NewTariffCache(ttl)}
}

func (c *cachedProvider) Name() string {
	return c.inner.Name()
}

func (c *cachedProvider) GetTariff(ctx context.Context, region string) (*models.Tariff, error) {
	key := c.inner.Name() + "-" + region
	if cached := c.cache.Get(key); cached != nil {
		return cached, nil
	}
	t, err := c.inner.GetTariff(ctx, region)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, t)
	return t, nil
}
