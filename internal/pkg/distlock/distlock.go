// Package distlock provides distributed locks for serialization points the
// engine must hold across processes: most importantly the per-account send
// lock (at most one in-flight send per sending account, platform-wide).
package distlock

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a single-owner, non-blocking distributed lock. A Lock value is
// not safe for concurrent use; create one per critical section.
type Lock interface {
	// TryAcquire attempts to take the lock without blocking.
	TryAcquire(ctx context.Context) (bool, error)
	// Release frees the lock if this instance still owns it.
	Release(ctx context.Context) error
}

// Factory builds locks on the best available backend: Redis when configured
// (cross-host, TTL crash-safety), else Postgres advisory locks
// (session-scoped, released on connection drop).
type Factory struct {
	redis *redis.Client
	db    *sql.DB
	ttl   time.Duration
}

// NewFactory creates a lock factory. Either client may be nil, but not both.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *Factory {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Factory{redis: redisClient, db: db, ttl: ttl}
}

// ForAccount returns the send lock for one sending account.
func (f *Factory) ForAccount(accountID string) Lock {
	return f.forKey("send:account:" + accountID)
}

// ForCampaign returns the lock guarding a campaign's engine run, so two
// workers never execute the same campaign concurrently.
func (f *Factory) ForCampaign(campaignID string) Lock {
	return f.forKey("run:campaign:" + campaignID)
}

func (f *Factory) forKey(key string) Lock {
	if f.redis != nil {
		return newRedisLock(f.redis, key, f.ttl)
	}
	return newAdvisoryLock(f.db, key)
}

// redisLock implements Lock with SET NX plus a random owner token; release
// and extend verify ownership via Lua so one process can never drop a lock
// another process has since acquired.
type redisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

func newRedisLock(client *redis.Client, key string, ttl time.Duration) *redisLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &redisLock{
		client: client,
		key:    "lock:" + key,
		owner:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

func (l *redisLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *redisLock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Result()
	return err
}

var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Extend renews the TTL for long sends (browser automation can exceed the
// default lock window).
func (l *redisLock) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := extendScript.Run(ctx, l.client, []string{l.key}, l.owner, ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if n, _ := res.(int64); n == 0 {
		return fmt.Errorf("extend %s: lock no longer owned", l.key)
	}
	return nil
}
