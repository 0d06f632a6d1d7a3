package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisCache 基于 Redis 的缓存实现
// 任何 Redis 故障都按缓存未命中处理,正确性不依赖缓存可用
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     *logrus.Logger
}

// NewRedisCache 创建 Redis 缓存
func NewRedisCache(client *redis.Client, defaultTTL time.Duration, logger *logrus.Logger) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &RedisCache{
		client:     client,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Ping 检查 Redis 连通性
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get 获取缓存
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.WithError(err).WithField("key", key).Warn("redis cache get failed, treating as miss")
		}
		return nil, false
	}
	return val, true
}

// Set 设置缓存
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil && c.logger != nil {
		c.logger.WithError(err).WithField("key", key).Warn("redis cache set failed")
	}
}

// Delete 删除缓存条目
func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil && c.logger != nil {
		c.logger.WithError(err).WithField("key", key).Warn("redis cache delete failed")
	}
}

// Clear 清空缓存
// 只清理本服务前缀下的键,不做全库 FLUSH
func (c *RedisCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, "timeline:*", 0).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}
