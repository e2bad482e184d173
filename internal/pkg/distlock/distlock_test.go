package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		client.Close()
		mr.Close()
	}
}

func TestAccountLockMutualExclusion(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	factory := NewFactory(client, nil, time.Minute)

	first := factory.ForAccount("acct-1")
	ok, err := first.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	// A second holder for the same account must be refused.
	second := factory.ForAccount("acct-1")
	ok, err = second.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire should fail while lock is held")
	}

	// A different account is unaffected.
	other := factory.ForAccount("acct-2")
	ok, err = other.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("other acquire: %v", err)
	}
	if !ok {
		t.Fatal("different account should lock independently")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if !ok {
		t.Fatal("acquire should succeed after release")
	}
}

func TestReleaseDoesNotStealForeignLock(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	factory := NewFactory(client, nil, time.Minute)

	holder := factory.ForAccount("acct-1")
	if ok, _ := holder.TryAcquire(ctx); !ok {
		t.Fatal("setup: acquire failed")
	}

	// A lock instance that never acquired must not release the holder's lock.
	stranger := factory.ForAccount("acct-1")
	if err := stranger.Release(ctx); err != nil {
		t.Fatalf("stranger release errored: %v", err)
	}

	ok, err := stranger.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Fatal("holder's lock was released by a non-owner")
	}
}

func TestCampaignLockSeparateNamespace(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	factory := NewFactory(client, nil, time.Minute)

	if ok, _ := factory.ForAccount("x").TryAcquire(ctx); !ok {
		t.Fatal("account lock acquire failed")
	}
	// Same ID under the campaign namespace must not collide.
	if ok, _ := factory.ForCampaign("x").TryAcquire(ctx); !ok {
		t.Fatal("campaign lock should not collide with account lock of same ID")
	}
}

func TestExtendKeepsOwnership(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	lock := newRedisLock(client, "send:account:acct-1", time.Minute)
	if ok, _ := lock.TryAcquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	if err := lock.Extend(ctx, 2*time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}

	// After release, extend must report lost ownership.
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := lock.Extend(ctx, time.Minute); err == nil {
		t.Fatal("extend after release should fail")
	}
}
