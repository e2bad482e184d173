package domain

import "time"

// CampaignStatus enumerates the lifecycle states of an outreach campaign.
type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "pending"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignStopped   CampaignStatus = "stopped"
	CampaignCompleted CampaignStatus = "completed"
)

// StopReason is the machine-readable explanation attached to every terminal
// or paused campaign. Operators never see a bare error string.
type StopReason string

const (
	StopTargetsExhausted  StopReason = "targets_exhausted"
	StopAllAccountsBlocked StopReason = "all_accounts_blocked"
	StopHardBlockDetected StopReason = "hard_block_detected"
	StopManual            StopReason = "manual_stop"
	StopTransientFailures StopReason = "consecutive_transient_failures"
)

// campaignTransitions is the closed transition table of the state machine.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignPending: {CampaignRunning, CampaignStopped},
	CampaignRunning: {CampaignPaused, CampaignStopped, CampaignCompleted},
	CampaignPaused:  {CampaignRunning, CampaignStopped},
}

// ValidTransition reports whether the state machine allows from -> to.
// Terminal states allow nothing.
func ValidTransition(from, to CampaignStatus) bool {
	for _, next := range campaignTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Campaign is a bounded unit of outreach work for one tenant.
type Campaign struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Name     string `json:"name" db:"name"`

	// Query is the lead discovery specification: an explicit handle list or
	// a source query understood by the lead source collaborator.
	Query string `json:"query" db:"query"`
	// AccountPool is the ordered list of sending-account IDs. Insertion
	// order defines the rotation order for the campaign's whole lifetime.
	AccountPool []string `json:"account_pool" db:"account_pool"`

	TemplateSet string  `json:"template_set" db:"template_set"`
	MediaID     *string `json:"media_id" db:"media_id"`

	// Inter-send delay range in minutes; jitter is applied on top.
	DelayMinMinutes int `json:"delay_min_minutes" db:"delay_min_minutes"`
	DelayMaxMinutes int `json:"delay_max_minutes" db:"delay_max_minutes"`

	// MinScore filters targets below the tenant's interest line.
	MinScore int `json:"min_score" db:"min_score"`

	Status     CampaignStatus `json:"status" db:"status"`
	StopReason *StopReason    `json:"stop_reason" db:"stop_reason"`

	SentCount    int `json:"sent_count" db:"sent_count"`
	FailedCount  int `json:"failed_count" db:"failed_count"`
	SkippedCount int `json:"skipped_count" db:"skipped_count"`

	StartedAt  *time.Time `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true when the campaign can no longer run.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignStopped || c.Status == CampaignCompleted
}

// CampaignRun records one engine execution of a campaign. Pause/resume keeps
// the same run; a fresh start opens a new one.
type CampaignRun struct {
	ID         string      `json:"id" db:"id"`
	CampaignID string      `json:"campaign_id" db:"campaign_id"`
	Sent       int         `json:"sent" db:"sent"`
	Failed     int         `json:"failed" db:"failed"`
	Skipped    int         `json:"skipped" db:"skipped"`
	StopReason *StopReason `json:"stop_reason" db:"stop_reason"`
	StartedAt  time.Time   `json:"started_at" db:"started_at"`
	FinishedAt *time.Time  `json:"finished_at" db:"finished_at"`
}
