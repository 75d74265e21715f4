package cache

import (
	"context"
	"errors"
	"time"

	"openhowl/logger"

	"github.com/redis/go-redis/v9"
)

const renderKeyPrefix = "openhowl:render:"

// RenderCache stores encoded previews in Redis, keyed by sound id and the
// fingerprint of the parameters they were rendered with. Redis failures are
// logged and treated as misses.
type RenderCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRenderCache wraps client. A ttl <= 0 means entries do not expire.
func NewRenderCache(client *redis.Client, ttl time.Duration) *RenderCache {
	return &RenderCache{client: client, ttl: ttl}
}

func renderKey(id, fingerprint string) string {
	return renderKeyPrefix + id + ":" + fingerprint
}

// Get 获取渲染缓存
func (c *RenderCache) Get(ctx context.Context, id, fingerprint string) ([]byte, bool) {
	data, err := c.client.Get(ctx, renderKey(id, fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Warn("获取渲染缓存失败", logger.String("id", id), logger.ErrorField(err))
		return nil, false
	}
	return data, true
}

// Set 设置渲染缓存
func (c *RenderCache) Set(ctx context.Context, id, fingerprint string, data []byte) {
	if err := c.client.Set(ctx, renderKey(id, fingerprint), data, c.ttl).Err(); err != nil {
		logger.Warn("设置渲染缓存失败",
			logger.String("id", id),
			logger.Int("dataSize", len(data)),
			logger.ErrorField(err))
		return
	}
	logger.Debug("渲染缓存设置成功",
		logger.String("id", id),
		logger.Int("dataSize", len(data)),
		logger.Duration("expiration", c.ttl))
}

// EvictSound drops every cached render of id.
func (c *RenderCache) EvictSound(ctx context.Context, id string) {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, renderKeyPrefix+id+":*", 100).Result()
		if err != nil {
			logger.Warn("扫描渲染缓存失败", logger.String("id", id), logger.ErrorField(err))
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				logger.Warn("删除渲染缓存失败", logger.String("id", id), logger.ErrorField(err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
