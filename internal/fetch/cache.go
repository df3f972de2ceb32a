package fetch

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"cooling-towers/internal/logger"
	"cooling-towers/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Cache：瓦片字节缓存；missing 表示上次请求得到 404
type Cache interface {
	Get(ctx context.Context, url string) (data []byte, missing bool, ok bool)
	Put(ctx context.Context, url string, data []byte)
	PutMissing(ctx context.Context, url string)
}

// 文档注释：基于 Redis 的瓦片缓存
// 背景：持久化失败或被取消的格子会在下一轮重新下载同一组瓦片，缓存避免重复打到影像源。
// 约束：键为 URL 的 FNV64a 摘要，URL 中的访问口令不落入 Redis；空值表示 404 标记；Redis 异常视为未命中，不阻断下载。
type RedisCache struct {
	rc  *redis.Client
	ttl time.Duration
}

// NewRedisCache：rc 为 nil 时返回 nil，调用方据此关闭缓存
func NewRedisCache(rc *redis.Client, ttl time.Duration) *RedisCache {
	if rc == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{rc: rc, ttl: ttl}
}

func cacheKey(url string) string {
	h := fnv.New64a()
	h.Write([]byte(url))
	return fmt.Sprintf("tile:%x", h.Sum64())
}

func (c *RedisCache) Get(ctx context.Context, url string) ([]byte, bool, bool) {
	b, err := c.rc.Get(ctx, cacheKey(url)).Bytes()
	if err == redis.Nil {
		metrics.TileCacheTotal.WithLabelValues("miss").Inc()
		return nil, false, false
	}
	if err != nil {
		metrics.TileCacheTotal.WithLabelValues("error").Inc()
		logger.L().Debug("tile_cache_error", "err", err)
		return nil, false, false
	}
	metrics.TileCacheTotal.WithLabelValues("hit").Inc()
	return b, len(b) == 0, true
}

func (c *RedisCache) Put(ctx context.Context, url string, data []byte) {
	if len(data) == 0 {
		return
	}
	if err := c.rc.Set(ctx, cacheKey(url), data, c.ttl).Err(); err != nil {
		logger.L().Debug("tile_cache_set_error", "err", err)
	}
}

func (c *RedisCache) PutMissing(ctx context.Context, url string) {
	if err := c.rc.Set(ctx, cacheKey(url), "", c.ttl).Err(); err != nil {
		logger.L().Debug("tile_cache_set_error", "err", err)
	}
}
