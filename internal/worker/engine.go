package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/distlock"
)

// CampaignLister finds campaigns due for execution. *postgres.CampaignRepo
// satisfies it.
type CampaignLister interface {
	Running(ctx context.Context) ([]domain.Campaign, error)
}

// Runner executes one campaign run. *CampaignRunner satisfies it.
type Runner interface {
	Run(ctx context.Context, campaignID string) error
}

// CampaignLockFactory builds the cross-process campaign claim locks.
// *distlock.Factory satisfies it.
type CampaignLockFactory interface {
	ForCampaign(campaignID string) distlock.Lock
}

// lockExtender is the optional renewal surface a lock backend may offer.
// Redis locks have it; Postgres advisory locks hold for the session and
// need no renewal.
type lockExtender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// EngineConfig tunes the supervisor.
type EngineConfig struct {
	// PollInterval is how often the engine sweeps for running campaigns.
	PollInterval time.Duration
	// MaxConcurrent bounds how many campaigns this process drives at once.
	MaxConcurrent int
	// LockTTL is the campaign claim TTL, renewed while the run is alive.
	LockTTL time.Duration
}

// Engine claims running campaigns under a distributed lock and drives each
// on its own goroutine. Several engine processes can share one database;
// the claim lock keeps any campaign on exactly one of them.
type Engine struct {
	campaigns CampaignLister
	runner    Runner
	locks     CampaignLockFactory
	cfg       EngineConfig
	engineID  string

	claimed   int64
	completed int64
	failed    int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	active  map[string]struct{}
}

// NewEngine creates a campaign engine.
func NewEngine(campaigns CampaignLister, runner Runner, locks CampaignLockFactory, cfg EngineConfig) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Engine{
		campaigns: campaigns,
		runner:    runner,
		locks:     locks,
		cfg:       cfg,
		engineID:  fmt.Sprintf("engine-%s", uuid.New().String()[:8]),
		active:    make(map[string]struct{}),
	}
}

// Start launches the poll loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("engine already running")
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.running = true

	e.wg.Add(1)
	go e.pollLoop()

	log.Printf("[Engine] %s started (poll=%s, max_concurrent=%d)",
		e.engineID, e.cfg.PollInterval, e.cfg.MaxConcurrent)
	return nil
}

// Stop cancels all in-flight runs and waits for them to persist their
// state and exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	log.Printf("[Engine] %s stopping...", e.engineID)
	e.cancel()
	e.wg.Wait()

	log.Printf("[Engine] %s stopped (claimed=%d completed=%d failed=%d)",
		e.engineID, atomic.LoadInt64(&e.claimed),
		atomic.LoadInt64(&e.completed), atomic.LoadInt64(&e.failed))
}

// Stats reports engine counters.
func (e *Engine) Stats() map[string]int64 {
	e.mu.Lock()
	inFlight := int64(len(e.active))
	e.mu.Unlock()

	return map[string]int64{
		"claimed":   atomic.LoadInt64(&e.claimed),
		"completed": atomic.LoadInt64(&e.completed),
		"failed":    atomic.LoadInt64(&e.failed),
		"in_flight": inFlight,
	}
}

func (e *Engine) pollLoop() {
	defer e.wg.Done()

	// First sweep immediately so a restart resumes campaigns without
	// waiting out a poll interval.
	e.sweep()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

// sweep claims unowned running campaigns up to the concurrency bound.
func (e *Engine) sweep() {
	campaigns, err := e.campaigns.Running(e.ctx)
	if err != nil {
		if e.ctx.Err() == nil {
			log.Printf("[Engine] %s: list running campaigns: %v", e.engineID, err)
		}
		return
	}

	for i := range campaigns {
		id := campaigns[i].ID

		e.mu.Lock()
		if len(e.active) >= e.cfg.MaxConcurrent {
			e.mu.Unlock()
			return
		}
		if _, busy := e.active[id]; busy {
			e.mu.Unlock()
			continue
		}
		e.mu.Unlock()

		lock := e.locks.ForCampaign(id)
		acquired, err := lock.TryAcquire(e.ctx)
		if err != nil {
			log.Printf("[Engine] %s: claim campaign %s: %v", e.engineID, id, err)
			continue
		}
		if !acquired {
			// Another engine owns it.
			continue
		}

		e.mu.Lock()
		if _, busy := e.active[id]; busy {
			// Lost a local race between the check above and the claim.
			e.mu.Unlock()
			e.releaseClaim(id, lock)
			continue
		}
		e.active[id] = struct{}{}
		e.mu.Unlock()

		atomic.AddInt64(&e.claimed, 1)
		log.Printf("[Engine] %s: claimed campaign %s", e.engineID, id)

		e.wg.Add(1)
		go e.execute(id, lock)
	}
}

// execute drives one claimed campaign to its next boundary: terminal
// status, pause, or engine shutdown.
func (e *Engine) execute(campaignID string, lock distlock.Lock) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.active, campaignID)
		e.mu.Unlock()
		e.releaseClaim(campaignID, lock)
	}()

	keepaliveDone := e.keepalive(campaignID, lock)
	defer close(keepaliveDone)

	err := e.runner.Run(e.ctx, campaignID)
	switch {
	case err == nil:
		atomic.AddInt64(&e.completed, 1)
	case errors.Is(err, context.Canceled):
		// Shutdown mid-run. State is persisted; the next sweep resumes it.
		log.Printf("[Engine] %s: campaign %s interrupted by shutdown", e.engineID, campaignID)
	default:
		atomic.AddInt64(&e.failed, 1)
		log.Printf("[Engine] %s: campaign %s run failed: %v", e.engineID, campaignID, err)
	}
}

// keepalive renews the campaign claim while the run is alive, when the
// lock backend supports renewal. Returns the channel that stops it.
func (e *Engine) keepalive(campaignID string, lock distlock.Lock) chan struct{} {
	done := make(chan struct{})

	ext, ok := lock.(lockExtender)
	if !ok {
		return done
	}

	interval := e.cfg.LockTTL / 3
	if interval <= 0 {
		interval = 30 * time.Second
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				if err := ext.Extend(e.ctx, e.cfg.LockTTL); err != nil && e.ctx.Err() == nil {
					log.Printf("[Engine] %s: extend claim on %s: %v", e.engineID, campaignID, err)
				}
			}
		}
	}()
	return done
}

// releaseClaim frees the campaign lock on a fresh context so shutdown
// still releases cleanly.
func (e *Engine) releaseClaim(campaignID string, lock distlock.Lock) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		log.Printf("[Engine] %s: release claim on %s: %v", e.engineID, campaignID, err)
	}
}
