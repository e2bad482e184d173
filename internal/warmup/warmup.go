// Package warmup enforces the graduated trust schedule for sending
// accounts: elapsed-day stages, per-stage daily/hourly send limits backed
// by rolling Redis windows, and stage regression on block events.
package warmup

import (
	"context"
	"fmt"
	"time"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/logger"
)

// Stage day bands: an account reaches a stage after that many elapsed
// active days since its warm-up anchor.
const (
	warmingStartDay     = 4
	progressingStartDay = 8
	readyStartDay       = 15

	// Inactivity gaps that force an account back down.
	hardInactivityGap = 30 * 24 * time.Hour
	softInactivityGap = 7 * 24 * time.Hour
)

// DefaultLimits is the built-in stage limit table.
var DefaultLimits = map[domain.WarmupStage]domain.StageLimits{
	domain.StageNew:         {Daily: 5, Hourly: 2},
	domain.StageWarming:     {Daily: 15, Hourly: 4},
	domain.StageProgressing: {Daily: 30, Hourly: 7},
	domain.StageReady:       {Daily: 50, Hourly: 10},
}

// AccountStore persists warm-up state changes (stage cache + anchor).
type AccountStore interface {
	UpdateWarmup(ctx context.Context, accountID string, stage domain.WarmupStage, anchor time.Time) error
}

// Manager derives stages, enforces windowed capacity, and applies block
// regressions. Safe for concurrent use.
type Manager struct {
	windows *WindowCounter
	store   AccountStore
	now     func() time.Time
}

// NewManager creates a warm-up manager.
func NewManager(windows *WindowCounter, store AccountStore) *Manager {
	return &Manager{windows: windows, store: store, now: time.Now}
}

// NewManagerAt fixes the clock, for tests.
func NewManagerAt(windows *WindowCounter, store AccountStore, now func() time.Time) *Manager {
	m := NewManager(windows, store)
	m.now = now
	if windows != nil {
		windows.now = now
	}
	return m
}

// LimitsFor resolves the stage limits, applying tenant overrides. Overrides
// may only lower limits; attempts to raise them are ignored.
func LimitsFor(stage domain.WarmupStage, ov *domain.WarmupOverrides) domain.StageLimits {
	limits := DefaultLimits[stage]
	if ov == nil {
		return limits
	}
	if o, ok := ov.Limits[stage]; ok {
		if o.Daily > 0 && o.Daily < limits.Daily {
			limits.Daily = o.Daily
		}
		if o.Hourly > 0 && o.Hourly < limits.Hourly {
			limits.Hourly = o.Hourly
		}
	}
	return limits
}

// StageFor computes the account's effective stage at now, applying the
// elapsed-day bands and the inactivity rules. rebase is true when the
// computed stage is lower than the purely time-derived one, meaning the
// anchor must be moved so the forced stage persists.
func StageFor(acct *domain.SendingAccount, now time.Time) (stage domain.WarmupStage, rebase bool) {
	anchor := acct.WarmupAnchorAt
	if anchor.IsZero() {
		anchor = acct.CreatedAt
	}
	stage = stageForDay(elapsedDays(anchor, now))

	last := acct.CreatedAt
	if acct.LastActiveAt != nil {
		last = *acct.LastActiveAt
	}
	gap := now.Sub(last)

	switch {
	case gap >= hardInactivityGap && stage != domain.StageNew:
		return domain.StageNew, true
	case gap >= softInactivityGap && stage.Order() > domain.StageWarming.Order():
		return domain.StageWarming, true
	}
	return stage, false
}

// EffectiveStage resolves and persists the account's current stage. The
// account struct is updated in place.
func (m *Manager) EffectiveStage(ctx context.Context, acct *domain.SendingAccount) (domain.WarmupStage, error) {
	now := m.now()
	stage, rebase := StageFor(acct, now)

	if rebase {
		anchor := anchorFor(stage, now)
		if err := m.store.UpdateWarmup(ctx, acct.ID, stage, anchor); err != nil {
			return stage, fmt.Errorf("persist warmup regression: %w", err)
		}
		logger.Info("warmup stage forced down by inactivity",
			"account_id", acct.ID, "from", string(acct.Stage), "to", string(stage))
		acct.Stage = stage
		acct.WarmupAnchorAt = anchor
		return stage, nil
	}

	if stage != acct.Stage {
		anchor := acct.WarmupAnchorAt
		if anchor.IsZero() {
			anchor = acct.CreatedAt
		}
		if err := m.store.UpdateWarmup(ctx, acct.ID, stage, anchor); err != nil {
			return stage, fmt.Errorf("persist warmup advancement: %w", err)
		}
		logger.Info("warmup stage advanced",
			"account_id", acct.ID, "from", string(acct.Stage), "to", string(stage))
		acct.Stage = stage
	}
	return stage, nil
}

// CheckCapacity reports whether the account may send right now: both
// rolling windows strictly below the stage limits. It must be consulted
// immediately before every send.
func (m *Manager) CheckCapacity(ctx context.Context, acct *domain.SendingAccount, ov *domain.WarmupOverrides) (bool, error) {
	stage, err := m.EffectiveStage(ctx, acct)
	if err != nil {
		return false, err
	}
	limits := LimitsFor(stage, ov)

	hourly, daily, err := m.windows.Counts(ctx, acct.ID)
	if err != nil {
		return false, fmt.Errorf("warmup window counts: %w", err)
	}
	return hourly < limits.Hourly && daily < limits.Daily, nil
}

// RecordSend adds the send to both rolling windows. Counters only grow;
// they fall out of the windows by time alone.
func (m *Manager) RecordSend(ctx context.Context, acct *domain.SendingAccount) error {
	if err := m.windows.Record(ctx, acct.ID); err != nil {
		return fmt.Errorf("record warmup send: %w", err)
	}
	return nil
}

// RecordBlock regresses the account one stage, or resets it to StageNew
// for a hard block type. The anchor is rebased to the start of the new
// stage's band so higher stages are re-earned over real elapsed time.
func (m *Manager) RecordBlock(ctx context.Context, acct *domain.SendingAccount, blockType domain.BlockType) error {
	now := m.now()
	current, _ := StageFor(acct, now)

	next := current.Previous()
	if blockType.HardResetsWarmup() {
		next = domain.StageNew
	}

	anchor := anchorFor(next, now)
	if err := m.store.UpdateWarmup(ctx, acct.ID, next, anchor); err != nil {
		return fmt.Errorf("persist warmup regression: %w", err)
	}
	logger.Warn("warmup stage regressed by block",
		"account_id", acct.ID, "block_type", string(blockType),
		"from", string(current), "to", string(next))

	acct.Stage = next
	acct.WarmupAnchorAt = anchor
	return nil
}

// Usage returns the current window counts and limits for an account,
// for the operator API.
func (m *Manager) Usage(ctx context.Context, acct *domain.SendingAccount, ov *domain.WarmupOverrides) (map[string]int, error) {
	stage, err := m.EffectiveStage(ctx, acct)
	if err != nil {
		return nil, err
	}
	limits := LimitsFor(stage, ov)
	hourly, daily, err := m.windows.Counts(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	return map[string]int{
		"hourly_current": hourly,
		"hourly_limit":   limits.Hourly,
		"daily_current":  daily,
		"daily_limit":    limits.Daily,
	}, nil
}

func elapsedDays(anchor, now time.Time) int {
	if now.Before(anchor) {
		return 1
	}
	return int(now.Sub(anchor).Hours()/24) + 1
}

func stageForDay(day int) domain.WarmupStage {
	switch {
	case day >= readyStartDay:
		return domain.StageReady
	case day >= progressingStartDay:
		return domain.StageProgressing
	case day >= warmingStartDay:
		return domain.StageWarming
	default:
		return domain.StageNew
	}
}

// anchorFor returns the anchor that makes the account sit exactly at the
// first day of the given stage's band.
func anchorFor(stage domain.WarmupStage, now time.Time) time.Time {
	startDay := 1
	switch stage {
	case domain.StageWarming:
		startDay = warmingStartDay
	case domain.StageProgressing:
		startDay = progressingStartDay
	case domain.StageReady:
		startDay = readyStartDay
	}
	return now.Add(-time.Duration(startDay-1) * 24 * time.Hour)
}
