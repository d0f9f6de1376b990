package ynab

import (
	"context"
	"sync"
	"time"

	logx "ynabot/pkg/logx"
)

// categorySource is the fetch the cache fronts. *Client satisfies it.
type categorySource interface {
	CategoryGroups(ctx context.Context) ([]CategoryGroup, error)
}

const DefaultCategoryTTL = 30 * time.Minute

// CategoryCache is a time-boxed cache in front of the category-tree fetch.
// The monitor forces a refresh whenever new entries are found, trading one
// extra call for up-to-date budget figures in the outgoing notification.
type CategoryCache struct {
	src categorySource
	ttl time.Duration
	log logx.Logger

	mu        sync.Mutex
	groups    []CategoryGroup
	fetchedAt time.Time

	now func() time.Time
}

func NewCategoryCache(src categorySource, ttl time.Duration, log logx.Logger) *CategoryCache {
	if ttl <= 0 {
		ttl = DefaultCategoryTTL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CategoryCache{src: src, ttl: ttl, log: log, now: time.Now}
}

// Get returns the cached tree while it is younger than the TTL, unless force
// is set. A fetch failure leaves any previous value untouched.
func (c *CategoryCache) Get(ctx context.Context, force bool) ([]CategoryGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.groups != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.groups, nil
	}

	groups, err := c.src.CategoryGroups(ctx)
	if err != nil {
		return nil, err
	}
	c.groups = groups
	c.fetchedAt = c.now()
	c.log.Debug("category tree refreshed", logx.Int("groups", len(groups)), logx.Bool("forced", force))
	return groups, nil
}
