package domain

import (
	"context"
	"strconv"
	"time"
)

// MatchCache stores the latest fixture metadata seen by the feed so the API can
// list upcoming and live matches without hitting the provider.
type MatchCache interface {
	Set(ctx context.Context, snap MatchSnapshot) error
	Get(ctx context.Context, fixtureID int64) (MatchSnapshot, error)
	List(ctx context.Context) ([]MatchSnapshot, error)
	Invalidate(ctx context.Context, fixtureID int64) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Pub/sub channel names shared by the publisher and the websocket hub.
const (
	ChannelMatches = "matches"
	ChannelStatus  = "status"
)

// MarketsChannel is the per-fixture channel carrying MarketsView updates.
func MarketsChannel(fixtureID int64) string { return "markets:" + strconv.FormatInt(fixtureID, 10) }

// BetsChannel is the per-user channel carrying placement and settlement events.
func BetsChannel(userID string) string { return "bets:" + userID }
