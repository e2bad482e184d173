// Package worker is the campaign engine: the supervisor (Engine) claims
// running campaigns under a distributed lock, and the CampaignRunner drives
// one campaign run end to end through rotation, warm-up capacity, the send
// transport, and the block detector. One campaign is one sequential loop;
// many campaigns run concurrently in one process.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/socialforge/outreach/internal/blockdetect"
	"github.com/socialforge/outreach/internal/composer"
	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/distlock"
	"github.com/socialforge/outreach/internal/pkg/retry"
	"github.com/socialforge/outreach/internal/proxypool"
	"github.com/socialforge/outreach/internal/rotation"
	"github.com/socialforge/outreach/internal/scoring"
	"github.com/socialforge/outreach/internal/service/campaign"
	"github.com/socialforge/outreach/internal/storage/postgres"
	"github.com/socialforge/outreach/internal/transport"
)

// errAccountBusy signals that another send currently holds the account's
// lock. Retried like any transient failure.
var errAccountBusy = errors.New("send already in flight for account")

// CampaignStore is the campaign persistence the runner needs.
// *postgres.CampaignRepo satisfies it.
type CampaignStore interface {
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	Transition(ctx context.Context, id string, from, to domain.CampaignStatus, reason *domain.StopReason) error
	IncrementCounters(ctx context.Context, id string, sent, failed, skipped int) error
}

// RunStore persists per-run counters and the serialized rotation state.
// *postgres.RunRepo satisfies it.
type RunStore interface {
	Create(ctx context.Context, run *domain.CampaignRun) (string, error)
	Open(ctx context.Context, campaignID string) (*domain.CampaignRun, error)
	Finish(ctx context.Context, id string, reason *domain.StopReason) error
	Increment(ctx context.Context, id string, sent, failed, skipped int) error
	SaveRotation(ctx context.Context, id string, state []byte) error
	Rotation(ctx context.Context, id string) ([]byte, error)
}

// TargetSource supplies outreach targets in FIFO batches and records their
// outcomes. *postgres.LeadRepo satisfies it.
type TargetSource interface {
	Targets(ctx context.Context, tenantID string, f postgres.TargetFilter) ([]domain.Lead, error)
	Get(ctx context.Context, id string) (*domain.Lead, error)
	MarkContacted(ctx context.Context, id string, at time.Time) error
	UpdateStatus(ctx context.Context, id string, status domain.LeadStatus) error
}

// AccountStore loads and mutates sending accounts. Its Get also serves the
// rotator's account source. *postgres.AccountRepo satisfies it.
type AccountStore interface {
	Get(ctx context.Context, id string) (*domain.SendingAccount, error)
	ApplyBlock(ctx context.Context, accountID string, status domain.BlockStatus, until *time.Time) error
	RecordSend(ctx context.Context, accountID string, at time.Time) error
}

// BlockLog appends block events for audit. *postgres.BlockEventRepo
// satisfies it.
type BlockLog interface {
	Create(ctx context.Context, e *domain.BlockEvent) error
}

// StatsSink accumulates the per-tenant daily rollup. *postgres.StatsRepo
// satisfies it.
type StatsSink interface {
	Increment(ctx context.Context, tenantID string, day time.Time, d postgres.StatsDelta) error
}

// TenantSource loads tenant config: rubric, warm-up overrides, display
// name for alerts. *postgres.TenantRepo satisfies it.
type TenantSource interface {
	Get(ctx context.Context, id string) (*domain.Tenant, error)
}

// WarmupGate enforces graduated send limits. Its CheckCapacity also serves
// the rotator's capacity checker. *warmup.Manager satisfies it.
type WarmupGate interface {
	CheckCapacity(ctx context.Context, acct *domain.SendingAccount, ov *domain.WarmupOverrides) (bool, error)
	RecordSend(ctx context.Context, acct *domain.SendingAccount) error
	RecordBlock(ctx context.Context, acct *domain.SendingAccount, blockType domain.BlockType) error
}

// ProxyPool hands out healthy proxies and records their outcomes.
// *proxypool.Manager satisfies it.
type ProxyPool interface {
	Acquire(ctx context.Context, tenantID, accountID string) (*domain.ProxyConfig, error)
	ReportOutcome(ctx context.Context, proxyID string, success bool) error
}

// Detector classifies post-send page state. *blockdetect.Detector
// satisfies it.
type Detector interface {
	Check(ctx context.Context, accountID string, state domain.PageState) blockdetect.Result
}

// MessageComposer renders the outreach message for a scored lead. Errors
// are permanent for the target and never retried as transport failures.
// *composer.Composer satisfies it.
type MessageComposer interface {
	Compose(ctx context.Context, lead *domain.Lead, score scoring.Result, setName string) (*composer.Message, error)
}

// MediaResolver resolves a campaign's attachment to a transport URL.
// *media.Service satisfies it.
type MediaResolver interface {
	SendURL(ctx context.Context, id string) (string, error)
}

// Notifier emails operators about block events and terminal campaigns.
// *alerts.Mailer satisfies it.
type Notifier interface {
	BlockAlert(ctx context.Context, tenantName, accountUsername string, e domain.BlockEvent) error
	CampaignNotice(ctx context.Context, tenantName string, c *domain.Campaign) error
}

// LockFactory builds the per-account send locks. *distlock.Factory
// satisfies it.
type LockFactory interface {
	ForAccount(accountID string) distlock.Lock
}

// Deps are the runner's injected collaborators. Media and Alerts may be
// nil; everything else is required.
type Deps struct {
	Campaigns CampaignStore
	Runs      RunStore
	Leads     TargetSource
	Accounts  AccountStore
	Blocks    BlockLog
	Stats     StatsSink
	Tenants   TenantSource
	Warmup    WarmupGate
	Proxies   ProxyPool
	Detector  Detector
	Transport transport.Transport
	Composer  MessageComposer
	Locks     LockFactory
	Media     MediaResolver
	Alerts    Notifier
}

// Config tunes the runner. The zero value gets sensible defaults from
// NewRunner.
type Config struct {
	// TargetBatchSize is how many leads one Targets call fetches.
	TargetBatchSize int
	// MaxConsecutiveTransient pauses the campaign for manual inspection
	// after this many transient target failures in a row.
	MaxConsecutiveTransient int
	// SoftBlockCooldown is how long a soft-blocked account sits out of
	// rotation before BlockedUntil expires.
	SoftBlockCooldown time.Duration
	// ProxyRequired aborts an account instead of sending proxy-less when
	// no active proxy is available for it.
	ProxyRequired bool
	// Retry is the transient-failure policy shared by rotation loads and
	// transport sends. Zero value means retry.Default().
	Retry retry.Policy
	// Seed fixes the delay/jitter random source, for tests.
	Seed int64
	// Sleep suspends between sends. Nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now supplies the clock, for tests.
	Now func() time.Time
}

// CampaignRunner executes one campaign run at a time per call to Run.
// Safe for concurrent Run calls on distinct campaigns.
type CampaignRunner struct {
	campaigns CampaignStore
	runs      RunStore
	leads     TargetSource
	accounts  AccountStore
	blocks    BlockLog
	stats     StatsSink
	tenants   TenantSource
	warmup    WarmupGate
	proxies   ProxyPool
	detector  Detector
	transport transport.Transport
	composer  MessageComposer
	locks     LockFactory
	media     MediaResolver
	alerts    Notifier

	scorer *scoring.Engine
	cfg    Config
	retry  retry.Policy
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRunner creates a campaign runner.
func NewRunner(d Deps, cfg Config) *CampaignRunner {
	if cfg.TargetBatchSize <= 0 {
		cfg.TargetBatchSize = 25
	}
	if cfg.MaxConsecutiveTransient <= 0 {
		cfg.MaxConsecutiveTransient = 5
	}
	if cfg.SoftBlockCooldown <= 0 {
		cfg.SoftBlockCooldown = 2 * time.Hour
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &CampaignRunner{
		campaigns: d.Campaigns,
		runs:      d.Runs,
		leads:     d.Leads,
		accounts:  d.Accounts,
		blocks:    d.Blocks,
		stats:     d.Stats,
		tenants:   d.Tenants,
		warmup:    d.Warmup,
		proxies:   d.Proxies,
		detector:  d.Detector,
		transport: d.Transport,
		composer:  d.Composer,
		locks:     d.Locks,
		media:     d.Media,
		alerts:    d.Alerts,
		scorer:    scoring.NewEngineAt(cfg.Now),
		retry:     cfg.Retry,
		sleep:     cfg.Sleep,
		now:       cfg.Now,
		rng:       rand.New(rand.NewSource(seed)),
		cfg:       cfg,
	}
}

// runState is the per-run working set. Lives on one goroutine's stack.
type runState struct {
	c      *domain.Campaign
	tenant *domain.Tenant
	run    *domain.CampaignRun
	rot    *rotation.Rotator

	// Keyset cursor over the target stream. Not persisted: contacted and
	// failed leads drop out of the Targets filter, so a restarted run
	// resumes correctly from a zero cursor.
	cursorCreated time.Time
	cursorID      string

	// transient counts consecutive transient target failures. Any
	// successful send resets it; permanent failures leave it unchanged.
	transient int
}

func (st *runState) rubric() *domain.ICPRubric {
	if st.tenant == nil {
		return nil
	}
	return st.tenant.Rubric
}

func (st *runState) overrides() *domain.WarmupOverrides {
	if st.tenant == nil {
		return nil
	}
	return st.tenant.WarmupOverrides
}

func (st *runState) tenantName() string {
	if st.tenant == nil || st.tenant.Name == "" {
		return st.c.TenantID
	}
	return st.tenant.Name
}

// outcome is the result of processing one target.
type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailedPermanent
	outcomeFailedTransient
	outcomeStopped
)

// Run drives the campaign until it completes, stops, pauses, or the
// context is canceled. A campaign not in running status is a no-op.
func (r *CampaignRunner) Run(ctx context.Context, campaignID string) error {
	c, err := r.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	if c.Status != domain.CampaignRunning {
		return nil
	}

	st := &runState{c: c}

	st.tenant, err = r.tenants.Get(ctx, c.TenantID)
	if err != nil {
		// Scoring falls back to the default rubric; overrides stay nil.
		log.Printf("[CampaignRunner] Campaign %s: tenant %s unavailable, using defaults: %v", c.ID, c.TenantID, err)
		st.tenant = nil
	}

	st.run, err = r.openRun(ctx, c.ID)
	if err != nil {
		return err
	}

	st.rot = r.restoreRotator(ctx, st)

	log.Printf("[CampaignRunner] Campaign %s: run %s started (pool=%d, targets>=%d pts)",
		c.ID, st.run.ID, len(c.AccountPool), c.MinScore)

	return r.loop(ctx, st)
}

// openRun reattaches to the campaign's unfinished run or opens a new one.
func (r *CampaignRunner) openRun(ctx context.Context, campaignID string) (*domain.CampaignRun, error) {
	run, err := r.runs.Open(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("open run: %w", err)
	}
	if run != nil {
		log.Printf("[CampaignRunner] Campaign %s: resuming run %s (sent=%d failed=%d)",
			campaignID, run.ID, run.Sent, run.Failed)
		return run, nil
	}

	run = &domain.CampaignRun{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		StartedAt:  r.now().UTC(),
	}
	if _, err := r.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// restoreRotator rebuilds the rotator, restoring cursor and exclusions
// from the run's saved snapshot when one exists.
func (r *CampaignRunner) restoreRotator(ctx context.Context, st *runState) *rotation.Rotator {
	opts := []rotation.Option{rotation.WithOverrides(st.overrides())}

	raw, err := r.runs.Rotation(ctx, st.run.ID)
	if err != nil {
		log.Printf("[CampaignRunner] Campaign %s: rotation state unavailable, starting fresh: %v", st.c.ID, err)
	} else if len(raw) > 0 {
		var snap rotation.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			log.Printf("[CampaignRunner] Campaign %s: rotation state corrupt, starting fresh: %v", st.c.ID, err)
		} else {
			opts = append(opts, rotation.WithSnapshot(snap))
		}
	}

	return rotation.NewRotator(st.c.AccountPool, r.accounts, r.warmup, opts...)
}

// loop is the per-iteration state machine. Stop and pause signals take
// effect here, at the top of an iteration, never mid-send.
func (r *CampaignRunner) loop(ctx context.Context, st *runState) error {
	var batch []domain.Lead

	for {
		if err := ctx.Err(); err != nil {
			r.saveSnapshot(ctx, st)
			return err
		}

		fresh, err := r.campaigns.GetByID(ctx, st.c.ID)
		if err != nil {
			r.saveSnapshot(ctx, st)
			return fmt.Errorf("refresh campaign %s: %w", st.c.ID, err)
		}
		switch fresh.Status {
		case domain.CampaignRunning:
			st.c = fresh
			// Rubric and override edits land here, between iterations, so
			// the next scoring call and capacity assert see them. On error
			// the previous snapshot stays; stale config beats none.
			if t, err := r.tenants.Get(ctx, fresh.TenantID); err == nil {
				st.tenant = t
			} else {
				log.Printf("[CampaignRunner] Campaign %s: tenant refresh failed, keeping cached config: %v", st.c.ID, err)
			}
		case domain.CampaignPaused:
			r.saveSnapshot(ctx, st)
			log.Printf("[CampaignRunner] Campaign %s: paused, run %s kept open", st.c.ID, st.run.ID)
			return nil
		case domain.CampaignStopped:
			reason := domain.StopManual
			if fresh.StopReason != nil {
				reason = *fresh.StopReason
			}
			r.finishRun(ctx, st, &reason)
			r.saveSnapshot(ctx, st)
			r.notifyTerminal(ctx, st, fresh)
			log.Printf("[CampaignRunner] Campaign %s: stopped (%s)", st.c.ID, reason)
			return nil
		default:
			// Completed or unknown; nothing left for this run.
			return nil
		}

		if len(batch) == 0 {
			batch, err = r.nextBatch(ctx, st)
			if err != nil {
				if r.tripTransient(ctx, st, fmt.Errorf("fetch targets: %w", err)) {
					return nil
				}
				continue
			}
			if len(batch) == 0 {
				r.completeCampaign(ctx, st)
				return nil
			}
			last := batch[len(batch)-1]
			st.cursorCreated = last.CreatedAt
			st.cursorID = last.ID
		}

		next := batch[0]
		batch = batch[1:]

		// Re-read the target at the send boundary. The batch copy may be
		// minutes old; another campaign can have contacted this lead since.
		lead, err := r.leads.Get(ctx, next.ID)
		if errors.Is(err, postgres.ErrNotFound) {
			log.Printf("[CampaignRunner] Campaign %s: target %s gone, skipping", st.c.ID, next.ID)
			r.bumpCounters(ctx, st, 0, 0, 1)
			continue
		}
		if err != nil {
			if r.tripTransient(ctx, st, fmt.Errorf("refresh target %s: %w", next.ID, err)) {
				return nil
			}
			continue
		}
		if lead.Contacted() {
			log.Printf("[CampaignRunner] Campaign %s: @%s already contacted, skipping", st.c.ID, lead.Username)
			r.bumpCounters(ctx, st, 0, 0, 1)
			continue
		}

		switch r.sendTarget(ctx, st, lead) {
		case outcomeSent:
			st.transient = 0
			r.saveSnapshot(ctx, st)
			if err := r.sleep(ctx, r.delayFor(st.c)); err != nil {
				return err
			}
		case outcomeFailedTransient:
			if r.tripTransient(ctx, st, nil) {
				return nil
			}
		case outcomeFailedPermanent:
			// Leaves the transient streak untouched.
			r.saveSnapshot(ctx, st)
		case outcomeStopped:
			return nil
		}
	}
}

// nextBatch pulls the next FIFO slice of targets, retrying transient
// store errors per the shared policy.
func (r *CampaignRunner) nextBatch(ctx context.Context, st *runState) ([]domain.Lead, error) {
	var batch []domain.Lead
	err := r.retry.Do(ctx, "leads.Targets", func(ctx context.Context) error {
		b, err := r.leads.Targets(ctx, st.c.TenantID, postgres.TargetFilter{
			MinScore:     st.c.MinScore,
			AfterCreated: st.cursorCreated,
			AfterID:      st.cursorID,
			BatchSize:    r.cfg.TargetBatchSize,
		})
		if err != nil {
			return err
		}
		batch = b
		return nil
	})
	return batch, err
}

// tripTransient records one transient failure and pauses the campaign for
// manual inspection once the consecutive threshold is reached. Returns
// true when the run should end.
func (r *CampaignRunner) tripTransient(ctx context.Context, st *runState, cause error) bool {
	st.transient++
	if cause != nil {
		log.Printf("[CampaignRunner] Campaign %s: transient failure %d/%d: %v",
			st.c.ID, st.transient, r.cfg.MaxConsecutiveTransient, cause)
	}
	if st.transient < r.cfg.MaxConsecutiveTransient {
		r.saveSnapshot(ctx, st)
		return false
	}

	reason := domain.StopTransientFailures
	if err := r.campaigns.Transition(ctx, st.c.ID, domain.CampaignRunning, domain.CampaignPaused, &reason); err != nil {
		if !errors.Is(err, campaign.ErrInvalidTransition) {
			log.Printf("[CampaignRunner] Campaign %s: pause transition: %v", st.c.ID, err)
		}
	}
	r.saveSnapshot(ctx, st)
	log.Printf("[CampaignRunner] Campaign %s: paused after %d consecutive transient failures, run %s kept open",
		st.c.ID, st.transient, st.run.ID)
	return true
}

// completeCampaign closes a run whose target stream is drained. The
// campaign finishes without a stop reason; the run records why it ended.
func (r *CampaignRunner) completeCampaign(ctx context.Context, st *runState) {
	if err := r.campaigns.Transition(ctx, st.c.ID, domain.CampaignRunning, domain.CampaignCompleted, nil); err != nil {
		if !errors.Is(err, campaign.ErrInvalidTransition) {
			log.Printf("[CampaignRunner] Campaign %s: complete transition: %v", st.c.ID, err)
		}
	}
	reason := domain.StopTargetsExhausted
	r.finishRun(ctx, st, &reason)
	r.saveSnapshot(ctx, st)

	done := *st.c
	done.Status = domain.CampaignCompleted
	r.notifyTerminal(ctx, st, &done)
	log.Printf("[CampaignRunner] Campaign %s: completed, run %s (sent=%d failed=%d)",
		st.c.ID, st.run.ID, st.run.Sent, st.run.Failed)
}

// stopCampaign moves the campaign to stopped with the given reason and
// closes the run.
func (r *CampaignRunner) stopCampaign(ctx context.Context, st *runState, reason domain.StopReason) {
	if err := r.campaigns.Transition(ctx, st.c.ID, domain.CampaignRunning, domain.CampaignStopped, &reason); err != nil {
		if !errors.Is(err, campaign.ErrInvalidTransition) {
			log.Printf("[CampaignRunner] Campaign %s: stop transition: %v", st.c.ID, err)
		}
	}
	r.finishRun(ctx, st, &reason)
	r.saveSnapshot(ctx, st)

	done := *st.c
	done.Status = domain.CampaignStopped
	done.StopReason = &reason
	r.notifyTerminal(ctx, st, &done)
	log.Printf("[CampaignRunner] Campaign %s: stopped (%s), run %s", st.c.ID, reason, st.run.ID)
}

// sendTarget attempts delivery to one lead. A switch-type block gets one
// retry on the next account within the same iteration; everything else
// resolves on the first pass.
func (r *CampaignRunner) sendTarget(ctx context.Context, st *runState, lead *domain.Lead) outcome {
	retried := false

	for {
		acct, proxy, err := r.acquire(ctx, st)
		if errors.Is(err, rotation.ErrPoolExhausted) {
			r.stopCampaign(ctx, st, domain.StopAllAccountsBlocked)
			return outcomeStopped
		}
		if err != nil {
			// Infra failure before any send attempt: the lead stays
			// eligible and resurfaces on the next run.
			log.Printf("[CampaignRunner] Campaign %s: account acquisition: %v", st.c.ID, err)
			return outcomeFailedTransient
		}

		score := r.scorer.Score(lead, st.rubric())
		msg, err := r.composer.Compose(ctx, lead, score, st.c.TemplateSet)
		if err != nil {
			r.failTarget(ctx, st, lead, err)
			return outcomeFailedPermanent
		}

		result, permanent, err := r.deliver(ctx, st, acct, proxy, lead, msg.Text)
		if errors.Is(err, errAccountBusy) {
			// Nothing reached the wire: the target stays eligible and the
			// proxy takes no blame.
			log.Printf("[CampaignRunner] Campaign %s: %s still busy, backing off", st.c.ID, acct.Username)
			return outcomeFailedTransient
		}
		if err != nil {
			if proxy != nil {
				r.reportProxy(ctx, proxy.ID, false)
			}
			r.failTarget(ctx, st, lead, err)
			if permanent {
				return outcomeFailedPermanent
			}
			return outcomeFailedTransient
		}
		if proxy != nil {
			r.reportProxy(ctx, proxy.ID, true)
		}

		det := r.detector.Check(ctx, acct.ID, result.PageState)
		if det.IsBlocked {
			r.recordBlock(ctx, st, acct, det)

			if det.ShouldStopCampaign {
				r.stopCampaign(ctx, st, domain.StopHardBlockDetected)
				return outcomeStopped
			}

			st.rot.Exclude(acct.ID)
			if !retried {
				retried = true
				log.Printf("[CampaignRunner] Campaign %s: %s on %s, retrying @%s on next account",
					st.c.ID, det.Type, acct.Username, lead.Username)
				continue
			}
			r.failTarget(ctx, st, lead, fmt.Errorf("blocked on retry: %s", det.Type))
			return outcomeFailedPermanent
		}

		if !result.Success {
			r.failTarget(ctx, st, lead, errors.New("delivery unconfirmed"))
			return outcomeFailedTransient
		}

		r.recordSend(ctx, st, acct, lead, msg)
		return outcomeSent
	}
}

// acquire returns the next eligible account and its proxy. Capacity is
// asserted here, immediately before the send; an account whose window
// closed between rotation's sweep and this check is passed over.
func (r *CampaignRunner) acquire(ctx context.Context, st *runState) (*domain.SendingAccount, *domain.ProxyConfig, error) {
	for {
		var acct *domain.SendingAccount
		err := r.retry.Do(ctx, "rotation.Next", func(ctx context.Context) error {
			a, err := st.rot.Next(ctx)
			if errors.Is(err, rotation.ErrPoolExhausted) {
				return retry.Permanent(err)
			}
			if err != nil {
				return err
			}
			acct = a
			return nil
		})
		if err != nil {
			return nil, nil, err
		}

		ok, err := r.warmup.CheckCapacity(ctx, acct, st.overrides())
		if err != nil {
			return nil, nil, fmt.Errorf("capacity assert for %s: %w", acct.ID, err)
		}
		if !ok {
			log.Printf("[CampaignRunner] Campaign %s: %s window closed before send, rotating on", st.c.ID, acct.Username)
			continue
		}

		proxy, err := r.proxies.Acquire(ctx, st.c.TenantID, acct.ID)
		if errors.Is(err, proxypool.ErrNoActiveProxy) {
			if r.cfg.ProxyRequired {
				log.Printf("[CampaignRunner] Campaign %s: no active proxy for %s, excluding from run", st.c.ID, acct.Username)
				st.rot.Exclude(acct.ID)
				continue
			}
			return acct, nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("acquire proxy for %s: %w", acct.ID, err)
		}
		return acct, proxy, nil
	}
}

// deliver sends one message under the account's distributed lock, with
// transient retries. permanent reports whether the final error was marked
// non-retryable by the transport.
func (r *CampaignRunner) deliver(ctx context.Context, st *runState, acct *domain.SendingAccount, proxy *domain.ProxyConfig, lead *domain.Lead, text string) (*transport.SendResult, bool, error) {
	req := transport.SendRequest{
		AccountID:      acct.ID,
		SessionRef:     acct.SessionRef,
		TargetUsername: lead.Username,
		Message:        text,
	}
	if proxy != nil {
		req.ProxyURL = proxy.URL()
	}
	if st.c.MediaID != nil && r.media != nil {
		url, err := r.media.SendURL(ctx, *st.c.MediaID)
		if err != nil {
			// Attachment resolution is best-effort; the message still goes.
			log.Printf("[CampaignRunner] Campaign %s: media %s unavailable, sending without attachment: %v",
				st.c.ID, *st.c.MediaID, err)
		} else {
			req.MediaURL = url
		}
	}

	lock := r.locks.ForAccount(acct.ID)
	var (
		result    *transport.SendResult
		permanent bool
	)
	err := r.retry.Do(ctx, "transport.Send", func(ctx context.Context) error {
		ok, err := lock.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("account lock: %w", err)
		}
		if !ok {
			return errAccountBusy
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				log.Printf("[CampaignRunner] Account %s: lock release: %v", acct.ID, err)
			}
		}()

		res, err := r.transport.Send(ctx, req)
		if err != nil {
			permanent = retry.IsPermanent(err)
			return err
		}
		result = res
		return nil
	})
	return result, permanent, err
}

// recordSend persists all bookkeeping for one successful delivery.
func (r *CampaignRunner) recordSend(ctx context.Context, st *runState, acct *domain.SendingAccount, lead *domain.Lead, msg *composer.Message) {
	now := r.now().UTC()

	if err := r.warmup.RecordSend(ctx, acct); err != nil {
		log.Printf("[CampaignRunner] Account %s: record warmup send: %v", acct.ID, err)
	}
	if err := r.accounts.RecordSend(ctx, acct.ID, now); err != nil {
		log.Printf("[CampaignRunner] Account %s: record send: %v", acct.ID, err)
	}
	if err := r.leads.MarkContacted(ctx, lead.ID, now); err != nil {
		log.Printf("[CampaignRunner] Campaign %s: mark @%s contacted: %v", st.c.ID, lead.Username, err)
	}
	r.bumpCounters(ctx, st, 1, 0, 0)
	r.bumpStats(ctx, st, postgres.StatsDelta{Sent: 1, Contacted: 1})

	log.Printf("[CampaignRunner] Campaign %s: sent to @%s via %s (%s)",
		st.c.ID, lead.Username, acct.Username, msg.Tier)
}

// failTarget records a permanent per-target failure and moves on.
func (r *CampaignRunner) failTarget(ctx context.Context, st *runState, lead *domain.Lead, cause error) {
	log.Printf("[CampaignRunner] Campaign %s: target @%s failed: %v", st.c.ID, lead.Username, cause)
	if err := r.leads.UpdateStatus(ctx, lead.ID, domain.LeadFailed); err != nil {
		log.Printf("[CampaignRunner] Campaign %s: mark @%s failed: %v", st.c.ID, lead.Username, err)
	}
	r.bumpCounters(ctx, st, 0, 1, 0)
	r.bumpStats(ctx, st, postgres.StatsDelta{Failed: 1})
}

// recordBlock persists the audit event, regresses warm-up, applies the
// account's block status, and notifies operators. None of these may
// interrupt the control-flow decision already taken by the detector.
func (r *CampaignRunner) recordBlock(ctx context.Context, st *runState, acct *domain.SendingAccount, det blockdetect.Result) {
	now := r.now().UTC()
	event := det.Event(st.c.TenantID, st.c.ID, acct.ID, now)

	if err := r.blocks.Create(ctx, event); err != nil {
		log.Printf("[CampaignRunner] Campaign %s: persist block event: %v", st.c.ID, err)
	}
	if err := r.warmup.RecordBlock(ctx, acct, det.Type); err != nil {
		log.Printf("[CampaignRunner] Account %s: warmup regression: %v", acct.ID, err)
	}

	status := det.Type.Severity()
	var until *time.Time
	if status == domain.BlockSoft {
		t := now.Add(r.cfg.SoftBlockCooldown)
		until = &t
	}
	if err := r.accounts.ApplyBlock(ctx, acct.ID, status, until); err != nil {
		log.Printf("[CampaignRunner] Account %s: apply block: %v", acct.ID, err)
	}

	r.bumpStats(ctx, st, postgres.StatsDelta{Blocks: 1})

	if r.alerts != nil {
		if err := r.alerts.BlockAlert(ctx, st.tenantName(), acct.Username, *event); err != nil {
			log.Printf("[CampaignRunner] Campaign %s: block alert: %v", st.c.ID, err)
		}
	}

	log.Printf("[CampaignRunner] Campaign %s: %s detected on %s (stop=%v switch=%v)",
		st.c.ID, det.Type, acct.Username, det.ShouldStopCampaign, det.ShouldSwitchAccount)
}

// reportProxy feeds the connectivity outcome back to the pool. A completed
// exchange counts as proxy success even when the account was blocked.
func (r *CampaignRunner) reportProxy(ctx context.Context, proxyID string, success bool) {
	if err := r.proxies.ReportOutcome(ctx, proxyID, success); err != nil {
		log.Printf("[CampaignRunner] Proxy %s: report outcome: %v", proxyID, err)
	}
}

// bumpCounters adds the deltas to the campaign's lifetime counters and
// the run's counters, mirroring them into the run struct for logs.
func (r *CampaignRunner) bumpCounters(ctx context.Context, st *runState, sent, failed, skipped int) {
	if err := r.campaigns.IncrementCounters(ctx, st.c.ID, sent, failed, skipped); err != nil {
		log.Printf("[CampaignRunner] Campaign %s: increment counters: %v", st.c.ID, err)
	}
	if err := r.runs.Increment(ctx, st.run.ID, sent, failed, skipped); err != nil {
		log.Printf("[CampaignRunner] Run %s: increment counters: %v", st.run.ID, err)
	}
	st.run.Sent += sent
	st.run.Failed += failed
	st.run.Skipped += skipped
}

func (r *CampaignRunner) bumpStats(ctx context.Context, st *runState, d postgres.StatsDelta) {
	if err := r.stats.Increment(ctx, st.c.TenantID, r.now().UTC(), d); err != nil {
		log.Printf("[CampaignRunner] Campaign %s: daily stats: %v", st.c.ID, err)
	}
}

// finishRun closes the run record with its reason.
func (r *CampaignRunner) finishRun(ctx context.Context, st *runState, reason *domain.StopReason) {
	if err := r.runs.Finish(ctx, st.run.ID, reason); err != nil {
		log.Printf("[CampaignRunner] Run %s: finish: %v", st.run.ID, err)
	}
}

// saveSnapshot persists the rotation cursor and exclusions so pause and
// resume keep them exactly. On a canceled context it falls back to a
// short-lived background context so shutdown still persists state.
func (r *CampaignRunner) saveSnapshot(ctx context.Context, st *runState) {
	raw, err := json.Marshal(st.rot.Snapshot())
	if err != nil {
		return
	}

	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := r.runs.SaveRotation(ctx, st.run.ID, raw); err != nil {
		log.Printf("[CampaignRunner] Run %s: save rotation state: %v", st.run.ID, err)
	}
}

// notifyTerminal emails operators about a finished campaign.
func (r *CampaignRunner) notifyTerminal(ctx context.Context, st *runState, c *domain.Campaign) {
	if r.alerts == nil {
		return
	}
	if err := r.alerts.CampaignNotice(ctx, st.tenantName(), c); err != nil {
		log.Printf("[CampaignRunner] Campaign %s: terminal notice: %v", c.ID, err)
	}
}

// delayFor draws the inter-send pause: uniform in the campaign's
// [min,max] minute range, then ±15% multiplicative jitter.
func (r *CampaignRunner) delayFor(c *domain.Campaign) time.Duration {
	minM := c.DelayMinMinutes
	maxM := c.DelayMaxMinutes
	if minM <= 0 {
		minM = campaign.DefaultDelayMinMinutes
	}
	if maxM < minM {
		maxM = minM
	}

	r.mu.Lock()
	base := float64(minM) + r.rng.Float64()*float64(maxM-minM)
	jitter := 1 + (r.rng.Float64()*0.30 - 0.15)
	r.mu.Unlock()

	return time.Duration(base * jitter * float64(time.Minute))
}

// sleepCtx is the default inter-send suspension: a timer select that
// yields the scheduler and honors cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
