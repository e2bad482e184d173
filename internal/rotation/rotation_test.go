package rotation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/socialforge/outreach/internal/domain"
)

var rotNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeSource serves copies, like a row scan would.
type fakeSource struct {
	accounts map[string]*domain.SendingAccount
	err      error
}

func (f *fakeSource) Get(_ context.Context, id string) (*domain.SendingAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s not found", id)
	}
	cp := *a
	return &cp, nil
}

// fakeCapacity marks specific accounts as at their warm-up limit.
type fakeCapacity struct {
	full map[string]bool
	err  error
}

func (f *fakeCapacity) CheckCapacity(_ context.Context, acct *domain.SendingAccount, _ *domain.WarmupOverrides) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return !f.full[acct.ID], nil
}

func poolOf(ids ...string) (map[string]*domain.SendingAccount, []string) {
	accounts := make(map[string]*domain.SendingAccount, len(ids))
	for _, id := range ids {
		accounts[id] = &domain.SendingAccount{
			ID:          id,
			TenantID:    "t1",
			Username:    "user_" + id,
			Stage:       domain.StageReady,
			BlockStatus: domain.BlockNone,
		}
	}
	return accounts, ids
}

func newTestRotator(t *testing.T, ids []string, source *fakeSource, capacity *fakeCapacity, opts ...Option) *Rotator {
	t.Helper()
	r := NewRotator(ids, source, capacity, opts...)
	r.now = func() time.Time { return rotNow }
	return r
}

func nextID(t *testing.T, r *Rotator) string {
	t.Helper()
	acct, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return acct.ID
}

func TestStrictRoundRobin(t *testing.T) {
	accounts, ids := poolOf("a", "b", "c")
	r := newTestRotator(t, ids, &fakeSource{accounts: accounts}, &fakeCapacity{})

	want := []string{"a", "b", "c", "a", "b", "c"}
	for i, w := range want {
		if got := nextID(t, r); got != w {
			t.Fatalf("call %d: got %s, want %s", i, got, w)
		}
	}
}

func TestSkipsHardBlocked(t *testing.T) {
	accounts, ids := poolOf("a", "b", "c")
	accounts["b"].BlockStatus = domain.BlockHard
	r := newTestRotator(t, ids, &fakeSource{accounts: accounts}, &fakeCapacity{})

	want := []string{"a", "c", "a", "c"}
	for i, w := range want {
		if got := nextID(t, r); got != w {
			t.Fatalf("call %d: got %s, want %s", i, got, w)
		}
	}
}

func TestSoftBlockExpires(t *testing.T) {
	accounts, ids := poolOf("a", "b")
	until := rotNow.Add(30 * time.Minute)
	accounts["b"].BlockStatus = domain.BlockSoft
	accounts["b"].BlockedUntil = &until

	r := newTestRotator(t, ids, &fakeSource{accounts: accounts}, &fakeCapacity{})
	for i, w := range []string{"a", "a"} {
		if got := nextID(t, r); got != w {
			t.Fatalf("call %d: got %s, want %s", i, got, w)
		}
	}

	// Past the cool-down the account is back in rotation.
	r.now = func() time.Time { return until.Add(time.Minute) }
	if got := nextID(t, r); got != "b" {
		t.Fatalf("after cool-down: got %s, want b", got)
	}
}

func TestSkipsAtCapacityWithoutRemoving(t *testing.T) {
	accounts, ids := poolOf("a", "b", "c")
	capacity := &fakeCapacity{full: map[string]bool{"b": true}}
	r := newTestRotator(t, ids, &fakeSource{accounts: accounts}, capacity)

	for i, w := range []string{"a", "c", "a"} {
		if got := nextID(t, r); got != w {
			t.Fatalf("call %d: got %s, want %s", i, got, w)
		}
	}
	if r.Remaining() != 3 {
		t.Fatalf("Remaining() = %d, capacity skips must not exclude", r.Remaining())
	}

	// Once the window frees up, b resumes its slot in order.
	capacity.full = nil
	if got := nextID(t, r); got != "b" {
		t.Fatalf("after capacity freed: got %s, want b", got)
	}
}

func TestExcludeIsPermanent(t *testing.T) {
	accounts, ids := poolOf("a", "b", "c")
	r := newTestRotator(t, ids, &fakeSource{accounts: accounts}, &fakeCapacity{})

	r.Exclude("b")
	for i, w := range []string{"a", "c", "a", "c"} {
		if got := nextID(t, r); got != w {
			t.Fatalf("call %d: got %s, want %s", i, got, w)
		}
	}
	if r.Remaining() != 2 {
		t.Errorf("Remaining() = %d, want 2", r.Remaining())
	}
}

func TestExcludeUnknownIDIgnored(t *testing.T) {
	accounts, ids := poolOf("a", "b")
	r := newTestRotator(t, ids, &fakeSource{accounts: accounts}, &fakeCapacity{})

	r.Exclude("nope")
	if r.Remaining() != 2 {
		t.Errorf("Remaining() = %d, want 2", r.Remaining())
	}
}

func TestPoolExhaustedAllExcluded(t *testing.T) {
	accounts, ids := poolOf("a", "b")
	r := newTestRotator(t, ids, &fakeSource{accounts: accounts}, &fakeCapacity{})

	r.Exclude("a")
	r.Exclude("b")
	_, err := r.Next(context.Background())
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
}

func TestPoolExhaustedAllAtCapacity(t *testing.T) {
	accounts, ids := poolOf("a", "b")
	r := newTestRotator(t, ids, &fakeSource{accounts: accounts},
		&fakeCapacity{full: map[string]bool{"a": true, "b": true}})

	_, err := r.Next(context.Background())
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
	if r.Remaining() != 2 {
		t.Errorf("Remaining() = %d, exhaustion by capacity must not exclude", r.Remaining())
	}
}

func TestEmptyPool(t *testing.T) {
	r := newTestRotator(t, nil, &fakeSource{}, &fakeCapacity{})
	_, err := r.Next(context.Background())
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
}

func TestSourceErrorIsNotExhaustion(t *testing.T) {
	boom := errors.New("connection refused")
	_, ids := poolOf("a")
	r := newTestRotator(t, ids, &fakeSource{err: boom}, &fakeCapacity{})

	_, err := r.Next(context.Background())
	if err == nil || errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("err = %v, want wrapped source error", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want to wrap %v", err, boom)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	accounts, ids := poolOf("a", "b", "c")
	source := &fakeSource{accounts: accounts}
	r := newTestRotator(t, ids, source, &fakeCapacity{})

	if got := nextID(t, r); got != "a" {
		t.Fatalf("got %s, want a", got)
	}
	r.Exclude("c")

	snap := r.Snapshot()
	if snap.Cursor != 1 {
		t.Errorf("snapshot cursor = %d, want 1", snap.Cursor)
	}
	if len(snap.Excluded) != 1 || snap.Excluded[0] != "c" {
		t.Errorf("snapshot excluded = %v, want [c]", snap.Excluded)
	}

	// A resumed run picks up exactly where the paused one stood.
	restored := newTestRotator(t, ids, source, &fakeCapacity{}, WithSnapshot(snap))
	for i, w := range []string{"b", "a", "b"} {
		if got := nextID(t, restored); got != w {
			t.Fatalf("resumed call %d: got %s, want %s", i, got, w)
		}
	}
}
