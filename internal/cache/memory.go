package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache 进程内 TTL 缓存
type MemoryCache struct {
	cache      *sync.Map
	defaultTTL time.Duration
}

// memoryEntry 缓存条目
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &MemoryCache{
		cache:      &sync.Map{},
		defaultTTL: defaultTTL,
	}
}

// Get 获取缓存
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	val, found := c.cache.Load(key)
	if !found {
		return nil, false
	}

	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		// 已过期,删除
		c.cache.Delete(key)
		return nil, false
	}

	return entry.value, true
}

// Set 设置缓存
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.cache.Store(key, &memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
}

// Delete 删除缓存条目
func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.cache.Delete(key)
}

// Clear 清空缓存
func (c *MemoryCache) Clear(_ context.Context) {
	c.cache.Range(func(key, value interface{}) bool {
		c.cache.Delete(key)
		return true
	})
}
