// Package cache 提供 Schema/主体查询的读穿缓存
//
// 缓存只是加速器: 激活状态变更时同步失效,命中失败或后端故障都
// 退化为数据库读取;账本写路径读取链尾永远不经过缓存。
package cache

import (
	"context"
	"time"
)

// Cache 缓存接口
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
}
