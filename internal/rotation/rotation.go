// Package rotation cycles a campaign's fixed account pool in strict
// round-robin order. The pool order is the campaign's insertion order and
// never changes for the life of a run; the cursor and the exclusion set are
// the only moving parts, and both survive pause/resume through Snapshot.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/socialforge/outreach/internal/domain"
)

// ErrPoolExhausted is the terminal signal: a full sweep of the pool found
// no account that is selectable and under its warm-up limits. The
// orchestrator stops the campaign on it.
var ErrPoolExhausted = errors.New("rotation: no eligible account in pool")

// AccountSource loads fresh account state. Rotation never trusts a cached
// copy across calls; block status and warm-up fields change underneath it.
// *postgres.AccountRepo satisfies it.
type AccountSource interface {
	Get(ctx context.Context, id string) (*domain.SendingAccount, error)
}

// CapacityChecker reports whether an account may send right now.
// *warmup.Manager satisfies it.
type CapacityChecker interface {
	CheckCapacity(ctx context.Context, acct *domain.SendingAccount, ov *domain.WarmupOverrides) (bool, error)
}

// Snapshot is the persistable rotation state for pause/resume.
type Snapshot struct {
	Cursor   int      `json:"cursor"`
	Excluded []string `json:"excluded"`
}

// Rotator hands out accounts A→B→C→A, skipping members that are blocked,
// cooling down, or at capacity. Safe for concurrent use, though a campaign
// run drives it from a single goroutine.
type Rotator struct {
	mu       sync.Mutex
	pool     []string
	excluded map[string]struct{}
	cursor   int

	source    AccountSource
	capacity  CapacityChecker
	overrides *domain.WarmupOverrides
	now       func() time.Time
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithOverrides applies the tenant's warm-up overrides to capacity checks.
func WithOverrides(ov *domain.WarmupOverrides) Option {
	return func(r *Rotator) { r.overrides = ov }
}

// WithSnapshot restores cursor and exclusions from a paused run.
func WithSnapshot(s Snapshot) Option {
	return func(r *Rotator) {
		if s.Cursor >= 0 && s.Cursor < len(r.pool) {
			r.cursor = s.Cursor
		}
		for _, id := range s.Excluded {
			r.excluded[id] = struct{}{}
		}
	}
}

// NewRotator builds a rotator over the campaign's account pool, in the
// order given.
func NewRotator(pool []string, source AccountSource, capacity CapacityChecker, opts ...Option) *Rotator {
	r := &Rotator{
		pool:     append([]string(nil), pool...),
		excluded: make(map[string]struct{}),
		source:   source,
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next eligible account, advancing the cursor past it.
// A member that is merely at capacity is skipped this sweep but stays in
// rotation; an excluded member never comes back. When a full sweep yields
// nothing, Next returns ErrPoolExhausted. Load and capacity-check errors
// are returned as-is for the caller's transient-retry policy.
func (r *Rotator) Next(ctx context.Context) (*domain.SendingAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.pool)
	if n == 0 || len(r.excluded) == n {
		return nil, ErrPoolExhausted
	}

	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		id := r.pool[idx]
		if _, out := r.excluded[id]; out {
			continue
		}

		acct, err := r.source.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load account %s: %w", id, err)
		}
		if !acct.Selectable(r.now()) {
			continue
		}
		ok, err := r.capacity.CheckCapacity(ctx, acct, r.overrides)
		if err != nil {
			return nil, fmt.Errorf("capacity check for %s: %w", id, err)
		}
		if !ok {
			continue
		}

		r.cursor = (idx + 1) % n
		return acct, nil
	}
	return nil, ErrPoolExhausted
}

// Exclude permanently removes an account from this run's rotation. Used
// after a block event with switch-account semantics. IDs outside the pool
// are ignored.
func (r *Rotator) Exclude(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.pool {
		if id == accountID {
			r.excluded[accountID] = struct{}{}
			return
		}
	}
}

// Remaining is the number of pool members not yet excluded. Zero means the
// next call to Next is guaranteed to return ErrPoolExhausted.
func (r *Rotator) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pool) - len(r.excluded)
}

// Snapshot captures cursor and exclusions for run persistence.
func (r *Rotator) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	excluded := make([]string, 0, len(r.excluded))
	for id := range r.excluded {
		excluded = append(excluded, id)
	}
	sort.Strings(excluded)
	return Snapshot{Cursor: r.cursor, Excluded: excluded}
}
