package warmup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// WindowCounter tracks sends in true rolling 1h/24h windows using one
// sorted set per account (member = send ID, score = send time). Fixed
// calendar buckets would let an account burst across a boundary, so the
// windows slide. All mutations run as pre-compiled Lua for atomicity.
type WindowCounter struct {
	redis *redis.Client
	now   func() time.Time

	recordScript *redis.Script
	countScript  *redis.Script
}

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
	// Keys expire a little past the day window so idle accounts cost nothing.
	keyTTLSeconds = 25 * 60 * 60
)

// recordLua trims expired members, adds the send, refreshes the TTL, and
// returns the new day count.
const recordLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local dayWindow = tonumber(ARGV[2])
local member = ARGV[3]
local ttl = tonumber(ARGV[4])

redis.call("ZREMRANGEBYSCORE", key, 0, now - dayWindow)
redis.call("ZADD", key, now, member)
redis.call("EXPIRE", key, ttl)
return redis.call("ZCARD", key)
`

// countLua trims expired members and returns {hourly, daily} counts.
const countLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local hourWindow = tonumber(ARGV[2])
local dayWindow = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, 0, now - dayWindow)
local daily = redis.call("ZCARD", key)
local hourly = redis.call("ZCOUNT", key, now - hourWindow, "+inf")
return {hourly, daily}
`

// NewWindowCounter creates the counter over an existing Redis client.
func NewWindowCounter(client *redis.Client) *WindowCounter {
	return &WindowCounter{
		redis:        client,
		now:          time.Now,
		recordScript: redis.NewScript(recordLua),
		countScript:  redis.NewScript(countLua),
	}
}

func windowKey(accountID string) string {
	return fmt.Sprintf("warmup:sends:%s", accountID)
}

// Record registers one send at the current instant.
func (w *WindowCounter) Record(ctx context.Context, accountID string) error {
	nowMillis := w.now().UnixMilli()
	member := fmt.Sprintf("%d:%s", nowMillis, uuid.NewString())

	err := w.recordScript.Run(ctx, w.redis,
		[]string{windowKey(accountID)},
		nowMillis,
		dayWindow.Milliseconds(),
		member,
		keyTTLSeconds,
	).Err()
	if err != nil {
		return fmt.Errorf("window record for %s: %w", accountID, err)
	}
	return nil
}

// Counts returns the rolling hourly and daily send counts.
func (w *WindowCounter) Counts(ctx context.Context, accountID string) (hourly, daily int, err error) {
	res, err := w.countScript.Run(ctx, w.redis,
		[]string{windowKey(accountID)},
		w.now().UnixMilli(),
		hourWindow.Milliseconds(),
		dayWindow.Milliseconds(),
	).Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("window counts for %s: %w", accountID, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("window counts for %s: unexpected reply %v", accountID, res)
	}

	h, _ := res[0].(int64)
	d, _ := res[1].(int64)
	return int(h), int(d), nil
}
