package domain

import "time"

// WarmupStage is the graduated trust level of a sending account. New and
// recently inactive accounts send at a fraction of full volume to avoid
// tripping anti-automation defenses.
type WarmupStage string

const (
	StageNew         WarmupStage = "new"
	StageWarming     WarmupStage = "warming"
	StageProgressing WarmupStage = "progressing"
	StageReady       WarmupStage = "ready"
)

// warmupOrder fixes the forward progression of stages.
var warmupOrder = []WarmupStage{StageNew, StageWarming, StageProgressing, StageReady}

// Order returns the stage's position in the progression (0 = StageNew).
// Unknown values are treated as StageNew.
func (s WarmupStage) Order() int {
	for i, st := range warmupOrder {
		if st == s {
			return i
		}
	}
	return 0
}

// Previous returns the stage one step back. StageNew regresses to itself.
func (s WarmupStage) Previous() WarmupStage {
	i := s.Order()
	if i == 0 {
		return StageNew
	}
	return warmupOrder[i-1]
}

// BlockStatus is the current platform-restriction state of an account.
type BlockStatus string

const (
	// BlockNone means the account is unrestricted.
	BlockNone BlockStatus = "none"
	// BlockSoft means the account hit a recoverable restriction (action
	// block, rate limit) and sits out a cool-down window.
	BlockSoft BlockStatus = "soft"
	// BlockHard means the account hit an unrecoverable restriction
	// (checkpoint, disable) and must never be selected until an operator
	// clears it.
	BlockHard BlockStatus = "hard"
)

// SendingAccount is a credential/session used to perform outreach on behalf
// of a tenant. Accounts owned by GlobalTenantID are shared across tenants.
type SendingAccount struct {
	ID         string `json:"id" db:"id"`
	TenantID   string `json:"tenant_id" db:"tenant_id"`
	Username   string `json:"username" db:"username"`
	SessionRef string `json:"-" db:"session_ref"`

	Stage WarmupStage `json:"stage" db:"stage"`
	// WarmupAnchorAt is the reference date for elapsed-day stage math. A
	// block regression rebases it backward into the regressed stage's band
	// so the account re-earns higher stages over real elapsed time.
	WarmupAnchorAt time.Time `json:"warmup_anchor_at" db:"warmup_anchor_at"`

	BlockStatus  BlockStatus `json:"block_status" db:"block_status"`
	BlockedUntil *time.Time  `json:"blocked_until" db:"blocked_until"`

	ProxyID *string `json:"proxy_id" db:"proxy_id"`

	TotalSent    int        `json:"total_sent" db:"total_sent"`
	LastActiveAt *time.Time `json:"last_active_at" db:"last_active_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Selectable reports whether rotation may hand this account out at the given
// instant. Hard blocks require manual clearing; soft blocks expire with
// BlockedUntil.
func (a *SendingAccount) Selectable(now time.Time) bool {
	switch a.BlockStatus {
	case BlockHard:
		return false
	case BlockSoft:
		return a.BlockedUntil == nil || now.After(*a.BlockedUntil)
	default:
		return true
	}
}
