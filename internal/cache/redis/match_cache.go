package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
	"github.com/redis/go-redis/v9"
)

// defaultMatchTTL bounds how long a fixture the feed stopped reporting stays
// listed.
const defaultMatchTTL = 6 * time.Hour

// MatchCache implements domain.MatchCache.
//
// Key schema:
//
//	match:{fixtureID} - string, JSON MatchSnapshot, expires after ttl
//	matches:index     - sorted set of fixture ids scored by kickoff unix time
type MatchCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMatchCache creates a MatchCache. A zero ttl uses six hours.
func NewMatchCache(c *Client, ttl time.Duration) *MatchCache {
	if ttl <= 0 {
		ttl = defaultMatchTTL
	}
	return &MatchCache{rdb: c.Underlying(), ttl: ttl}
}

const matchIndexKey = "matches:index"

func matchKey(id int64) string { return "match:" + strconv.FormatInt(id, 10) }

// Set stores the snapshot and indexes it by kickoff time.
func (mc *MatchCache) Set(ctx context.Context, snap domain.MatchSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal match %d: %w", snap.FixtureID, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Set(ctx, matchKey(snap.FixtureID), data, mc.ttl)
	pipe.ZAdd(ctx, matchIndexKey, redis.Z{
		Score:  float64(snap.KickoffAt.Unix()),
		Member: strconv.FormatInt(snap.FixtureID, 10),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set match %d: %w", snap.FixtureID, err)
	}
	return nil
}

// Get returns the cached snapshot or domain.ErrNotFound.
func (mc *MatchCache) Get(ctx context.Context, fixtureID int64) (domain.MatchSnapshot, error) {
	data, err := mc.rdb.Get(ctx, matchKey(fixtureID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MatchSnapshot{}, domain.ErrNotFound
		}
		return domain.MatchSnapshot{}, fmt.Errorf("redis: get match %d: %w", fixtureID, err)
	}
	var snap domain.MatchSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MatchSnapshot{}, fmt.Errorf("redis: unmarshal match %d: %w", fixtureID, err)
	}
	return snap, nil
}

// List returns every cached snapshot ordered by kickoff. Index entries whose
// snapshot expired are pruned on the way.
func (mc *MatchCache) List(ctx context.Context) ([]domain.MatchSnapshot, error) {
	ids, err := mc.rdb.ZRange(ctx, matchIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list matches: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = "match:" + id
	}
	vals, err := mc.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list matches: %w", err)
	}

	out := make([]domain.MatchSnapshot, 0, len(vals))
	var expired []any
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var snap domain.MatchSnapshot
		if err := json.Unmarshal([]byte(s), &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	if len(expired) > 0 {
		_ = mc.rdb.ZRem(ctx, matchIndexKey, expired...).Err()
	}
	return out, nil
}

// Invalidate removes a fixture from the cache.
func (mc *MatchCache) Invalidate(ctx context.Context, fixtureID int64) error {
	pipe := mc.rdb.TxPipeline()
	pipe.Del(ctx, matchKey(fixtureID))
	pipe.ZRem(ctx, matchIndexKey, strconv.FormatInt(fixtureID, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate match %d: %w", fixtureID, err)
	}
	return nil
}

var _ domain.MatchCache = (*MatchCache)(nil)
