package domain

import "time"

// BlockType is the closed set of adverse signals the block detector can
// classify. Adding a value here requires updating ShouldStopCampaign,
// ShouldSwitchAccount, and Severity so a new type cannot be silently ignored.
type BlockType string

const (
	// BlockCheckpoint: Instagram redirected to a checkpoint/challenge page.
	BlockCheckpoint BlockType = "checkpoint"
	// BlockActionBlocked: the "Action Blocked" dialog appeared after the send.
	BlockActionBlocked BlockType = "action_blocked"
	// BlockRateLimited: page content indicates temporary throttling.
	BlockRateLimited BlockType = "rate_limited"
	// BlockAccountDisabled: the account has been disabled by the platform.
	BlockAccountDisabled BlockType = "account_disabled"
	// BlockSuspiciousActivity: the "We detected suspicious activity" dialog.
	BlockSuspiciousActivity BlockType = "suspicious_activity"
	// BlockTwoFactor: an unexpected two-factor challenge interrupted the session.
	BlockTwoFactor BlockType = "two_factor"
	// BlockTypeNone: no adverse signal detected.
	BlockTypeNone BlockType = "none"
)

// ShouldStopCampaign reports whether a detection of this type is
// unrecoverable within the current campaign run. Stopping takes precedence
// over account switching.
func (t BlockType) ShouldStopCampaign() bool {
	switch t {
	case BlockCheckpoint, BlockAccountDisabled, BlockTwoFactor, BlockSuspiciousActivity:
		return true
	case BlockActionBlocked, BlockRateLimited, BlockTypeNone:
		return false
	}
	// Unknown values fail safe: stop rather than keep sending.
	return true
}

// ShouldSwitchAccount reports whether the run can continue on a different
// account. Always false for stop types.
func (t BlockType) ShouldSwitchAccount() bool {
	switch t {
	case BlockActionBlocked, BlockRateLimited:
		return true
	case BlockCheckpoint, BlockAccountDisabled, BlockTwoFactor, BlockSuspiciousActivity, BlockTypeNone:
		return false
	}
	return false
}

// Severity maps the block type onto the account's block status.
func (t BlockType) Severity() BlockStatus {
	switch {
	case t == BlockTypeNone:
		return BlockNone
	case t.ShouldStopCampaign():
		return BlockHard
	default:
		return BlockSoft
	}
}

// HardResetsWarmup reports whether warm-up resets to StageNew instead of
// regressing one step.
func (t BlockType) HardResetsWarmup() bool {
	return t == BlockAccountDisabled
}

// BlockEvent is an append-only audit record of a detected adverse signal.
// Created only by the block detector; consumed once by the orchestrator.
type BlockEvent struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	CampaignID  string    `json:"campaign_id" db:"campaign_id"`
	AccountID   string    `json:"account_id" db:"account_id"`
	Type        BlockType `json:"type" db:"type"`
	Evidence    string    `json:"evidence" db:"evidence"`
	EvidenceRef *string   `json:"evidence_ref" db:"evidence_ref"`
	DetectedAt  time.Time `json:"detected_at" db:"detected_at"`
}

// PageState is the post-action browser snapshot handed from the send
// transport to the block detector. Fields may be empty when the transport
// could not capture them.
type PageState struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	DialogText string `json:"dialog_text"`
	BodyText   string `json:"body_text"`
	// Screenshot is an optional captured image for the evidence archive.
	Screenshot []byte `json:"-"`
}
