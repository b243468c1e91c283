package publish

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/rf2bridge/internal/snapshot"
)

const latestKey = "latest"

// DefaultLatestTTL is how long the last message stays available after the
// bridge stops emitting.
const DefaultLatestTTL = 5 * time.Second

// LatestCache keeps the most recent message for polling clients. It expires
// so a stopped simulator does not leave stale data behind.
type LatestCache struct {
	cache *cache.Cache
}

// NewLatestCache returns a cache whose entry expires after ttl. No janitor
// goroutine is started; Get checks expiry itself.
func NewLatestCache(ttl time.Duration) *LatestCache {
	if ttl <= 0 {
		ttl = DefaultLatestTTL
	}
	return &LatestCache{cache: cache.New(ttl, 0)}
}

// Name implements Named
func (c *LatestCache) Name() string { return "cache" }

// Publish implements Publisher
func (c *LatestCache) Publish(_ context.Context, msg *snapshot.Message) error {
	stored := *msg
	c.cache.SetDefault(latestKey, &stored)
	return nil
}

// Latest returns the last message if it has not expired.
func (c *LatestCache) Latest() (*snapshot.Message, bool) {
	v, ok := c.cache.Get(latestKey)
	if !ok {
		return nil, false
	}
	msg, ok := v.(*snapshot.Message)
	return msg, ok
}

// Flush drops the cached message.
func (c *LatestCache) Flush() { c.cache.Flush() }
