package embedding

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

type cachedClient struct {
	next  Client
	cache *cache.Cache
}

// NewCachedClient 在 next 之前加一层进程内缓存，同一文本在 ttl 内只调用一次 API。
func NewCachedClient(next Client, ttl time.Duration) Client {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &cachedClient{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *cachedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := normalize(text)
	if v, found := c.cache.Get(key); found {
		return v.([]float32), nil
	}
	vec, err := c.next.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec, cache.DefaultExpiration)
	return vec, nil
}
