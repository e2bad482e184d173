package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/distlock"
)

type fakeLister struct {
	mu        sync.Mutex
	campaigns []domain.Campaign
}

func (f *fakeLister) Running(_ context.Context) ([]domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Campaign(nil), f.campaigns...), nil
}

func (f *fakeLister) clear() {
	f.mu.Lock()
	f.campaigns = nil
	f.mu.Unlock()
}

type engineRunner struct {
	mu    sync.Mutex
	calls map[string]int
	block chan struct{}
	after func(id string)
	err   error
}

func newEngineRunner() *engineRunner {
	return &engineRunner{calls: make(map[string]int)}
}

func (f *engineRunner) Run(ctx context.Context, id string) error {
	f.mu.Lock()
	f.calls[id]++
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.after != nil {
		f.after(id)
	}
	return f.err
}

func (f *engineRunner) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *engineRunner) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeClaimLock struct {
	mu       sync.Mutex
	held     bool
	acquires int
	releases int
}

func (l *fakeClaimLock) TryAcquire(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeClaimLock) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.releases++
	return nil
}

// extendableClaimLock also offers TTL renewal, like the Redis backend.
type extendableClaimLock struct {
	fakeClaimLock
	extends int
}

func (l *extendableClaimLock) Extend(_ context.Context, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extends++
	return nil
}

type fakeClaimLocks struct {
	mu         sync.Mutex
	heldByPeer map[string]bool
	extendable bool
	locks      map[string]distlock.Lock
}

func (f *fakeClaimLocks) ForCampaign(id string) distlock.Lock {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks == nil {
		f.locks = make(map[string]distlock.Lock)
	}
	if l, ok := f.locks[id]; ok {
		return l
	}
	var l distlock.Lock
	if f.extendable {
		l = &extendableClaimLock{fakeClaimLock: fakeClaimLock{held: f.heldByPeer[id]}}
	} else {
		l = &fakeClaimLock{held: f.heldByPeer[id]}
	}
	f.locks[id] = l
	return l
}

func (f *fakeClaimLocks) lock(id string) *fakeClaimLock {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch l := f.locks[id].(type) {
	case *fakeClaimLock:
		return l
	case *extendableClaimLock:
		return &l.fakeClaimLock
	}
	return nil
}

func runningCampaigns(ids ...string) []domain.Campaign {
	out := make([]domain.Campaign, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Campaign{ID: id, TenantID: "t1", Status: domain.CampaignRunning})
	}
	return out
}

func TestEngineStartStopGuards(t *testing.T) {
	e := NewEngine(&fakeLister{}, newEngineRunner(), &fakeClaimLocks{}, EngineConfig{
		PollInterval: time.Hour,
	})

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(); err == nil {
		t.Fatal("second Start should fail while running")
	}

	e.Stop()
	e.Stop() // second Stop is a no-op

	if err := e.Start(); err != nil {
		t.Fatalf("restart after Stop: %v", err)
	}
	e.Stop()
}

func TestEngineBoundsConcurrentCampaigns(t *testing.T) {
	lister := &fakeLister{campaigns: runningCampaigns("c1", "c2", "c3")}
	runner := newEngineRunner()
	runner.block = make(chan struct{})
	locks := &fakeClaimLocks{}

	e := NewEngine(lister, runner, locks, EngineConfig{
		PollInterval:  time.Hour,
		MaxConcurrent: 2,
	})
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if got := e.Stats()["in_flight"]; got != 2 {
		t.Errorf("in_flight = %d, want 2", got)
	}
	if got := runner.totalCalls(); got != 2 {
		t.Errorf("runner calls = %d, want 2", got)
	}

	lister.clear()
	close(runner.block)
	time.Sleep(20 * time.Millisecond)
	e.Stop()

	stats := e.Stats()
	if stats["completed"] != 2 {
		t.Errorf("completed = %d, want 2", stats["completed"])
	}
	if stats["in_flight"] != 0 {
		t.Errorf("in_flight after stop = %d, want 0", stats["in_flight"])
	}
}

func TestEngineSkipsCampaignsHeldByPeers(t *testing.T) {
	lister := &fakeLister{campaigns: runningCampaigns("c1", "c2")}
	runner := newEngineRunner()
	runner.after = func(string) { lister.clear() }
	locks := &fakeClaimLocks{heldByPeer: map[string]bool{"c1": true}}

	e := NewEngine(lister, runner, locks, EngineConfig{PollInterval: time.Hour})
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	e.Stop()

	if got := runner.callCount("c1"); got != 0 {
		t.Errorf("peer-held campaign executed %d times", got)
	}
	if got := runner.callCount("c2"); got != 1 {
		t.Errorf("free campaign executed %d times, want 1", got)
	}
	if l := locks.lock("c1"); l.releases != 0 {
		t.Errorf("engine released a lock it never acquired (%d)", l.releases)
	}
}

func TestEngineNeverDoubleClaimsActiveCampaign(t *testing.T) {
	lister := &fakeLister{campaigns: runningCampaigns("c1")}
	runner := newEngineRunner()
	runner.block = make(chan struct{})
	runner.after = func(string) { lister.clear() }
	locks := &fakeClaimLocks{}

	e := NewEngine(lister, runner, locks, EngineConfig{PollInterval: 10 * time.Millisecond})
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Several sweeps pass while the run is in flight.
	time.Sleep(80 * time.Millisecond)
	if got := runner.callCount("c1"); got != 1 {
		t.Fatalf("campaign claimed %d times while active, want 1", got)
	}

	close(runner.block)
	e.Stop()

	if got := runner.callCount("c1"); got != 1 {
		t.Errorf("campaign re-claimed after runs = %d, want 1", got)
	}
}

func TestEngineReleasesClaimAfterRun(t *testing.T) {
	lister := &fakeLister{campaigns: runningCampaigns("c1")}
	runner := newEngineRunner()
	runner.after = func(string) { lister.clear() }
	locks := &fakeClaimLocks{}

	e := NewEngine(lister, runner, locks, EngineConfig{PollInterval: time.Hour})
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	e.Stop()

	l := locks.lock("c1")
	if l == nil {
		t.Fatal("campaign lock never built")
	}
	if l.acquires != 1 || l.releases != 1 {
		t.Errorf("lock acquires=%d releases=%d, want 1/1", l.acquires, l.releases)
	}
	if got := e.Stats()["completed"]; got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
}

func TestEngineCountsFailedRuns(t *testing.T) {
	lister := &fakeLister{campaigns: runningCampaigns("c1")}
	runner := newEngineRunner()
	runner.err = errors.New("transport offline")
	runner.after = func(string) { lister.clear() }

	e := NewEngine(lister, runner, &fakeClaimLocks{}, EngineConfig{PollInterval: time.Hour})
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	e.Stop()

	stats := e.Stats()
	if stats["failed"] != 1 {
		t.Errorf("failed = %d, want 1", stats["failed"])
	}
	if stats["completed"] != 0 {
		t.Errorf("completed = %d, want 0", stats["completed"])
	}
}

func TestEngineExtendsClaimWhileRunning(t *testing.T) {
	lister := &fakeLister{campaigns: runningCampaigns("c1")}
	runner := newEngineRunner()
	runner.block = make(chan struct{})
	runner.after = func(string) { lister.clear() }
	locks := &fakeClaimLocks{extendable: true}

	e := NewEngine(lister, runner, locks, EngineConfig{
		PollInterval: time.Hour,
		LockTTL:      30 * time.Millisecond,
	})
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	close(runner.block)
	e.Stop()

	locks.mu.Lock()
	ext := locks.locks["c1"].(*extendableClaimLock)
	locks.mu.Unlock()

	ext.mu.Lock()
	extends := ext.extends
	ext.mu.Unlock()
	if extends < 1 {
		t.Errorf("claim never renewed during a long run")
	}
}
