package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// defaultBundleTTL bounds staleness if invalidation is ever missed.
const defaultBundleTTL = 30 * time.Minute

// BundleCache caches completed segment bundles on the read path.  Only
// terminal results are cached; in-flight progress always goes to the
// database.  Cache failures degrade to misses so Redis outages never
// break reads.
type BundleCache struct {
	client *Client
	prefix string
	ttl    time.Duration
	log    logging.Logger
}

// NewBundleCache builds the cache.  Empty prefix and zero TTL fall back
// to sane defaults.
func NewBundleCache(client *Client, prefix string, ttl time.Duration, log logging.Logger) *BundleCache {
	if prefix == "" {
		prefix = "stratlens:"
	}
	if ttl <= 0 {
		ttl = defaultBundleTTL
	}
	if log == nil {
		log = logging.Default()
	}
	return &BundleCache{client: client, prefix: prefix, ttl: ttl, log: log.Named("bundle_cache")}
}

func (c *BundleCache) key(sessionID common.SessionID, segment results.Segment) string {
	return fmt.Sprintf("%sbundle:%s:%s", c.prefix, sessionID, segment)
}

// Get returns the cached bundle and whether it was present.  Transport
// and decode failures are logged and reported as misses.
func (c *BundleCache) Get(ctx context.Context, sessionID common.SessionID, segment results.Segment) (*results.SegmentBundle, bool) {
	raw, err := c.client.rdb.Get(ctx, c.key(sessionID, segment)).Bytes()
	if err == goredis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn("bundle cache read failed", logging.Err(err))
		return nil, false
	}
	var bundle results.SegmentBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		c.log.Warn("bundle cache entry corrupt, dropping",
			logging.String("session_id", string(sessionID)),
			logging.Err(err),
		)
		_ = c.client.rdb.Del(ctx, c.key(sessionID, segment)).Err()
		return nil, false
	}
	return &bundle, true
}

// Set stores the bundle with the configured TTL.
func (c *BundleCache) Set(ctx context.Context, bundle *results.SegmentBundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal bundle for cache")
	}
	if err := c.client.rdb.Set(ctx, c.key(bundle.SessionID, bundle.Segment), raw, c.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to cache bundle")
	}
	return nil
}

// InvalidateSession drops every segment bundle for the session.  Called
// on regeneration and on clear.
func (c *BundleCache) InvalidateSession(ctx context.Context, sessionID common.SessionID) error {
	keys := make([]string, 0, results.SegmentCount)
	for _, segment := range results.AllSegments() {
		keys = append(keys, c.key(sessionID, segment))
	}
	if err := c.client.rdb.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to invalidate session bundles")
	}
	return nil
}
