package domain

import "time"

// GlobalTenantID is the reserved tenant that owns the shared account and
// proxy pools. Tenant-scoped lookups fall back to it when nothing dedicated
// is available.
const GlobalTenantID = "global"

// Tenant is a customer organization. Campaigns, accounts, proxies, and
// scoring rules are isolated per tenant.
type Tenant struct {
	ID              string           `json:"id" db:"id"`
	Name            string           `json:"name" db:"name"`
	Rubric          *ICPRubric       `json:"rubric,omitempty" db:"rubric"`
	ActiveChannels  []string         `json:"active_channels" db:"active_channels"`
	WarmupOverrides *WarmupOverrides `json:"warmup_overrides,omitempty" db:"warmup_overrides"`
	NewsFeedURL     string           `json:"news_feed_url,omitempty" db:"news_feed_url"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// ICPRubric is a tenant's Ideal Customer Profile scoring configuration.
// A nil or invalid rubric falls back to the built-in default rubric.
type ICPRubric struct {
	// DecisorKeywords mark a lead as a decision maker when found in the bio.
	DecisorKeywords []string `json:"decisor_keywords" yaml:"decisor_keywords"`
	// InterestCategories maps a category name to the bio keywords that match it.
	InterestCategories map[string][]string `json:"interest_categories" yaml:"interest_categories"`
	// CategoryWeights raises the bio reward for specific interest
	// categories (subscore caps still apply).
	CategoryWeights map[string]int `json:"category_weights,omitempty" yaml:"category_weights,omitempty"`
	// HighValueLocations are location substrings worth a profile bonus.
	HighValueLocations []string `json:"high_value_locations" yaml:"high_value_locations"`
	// Thresholds override the default tier cut-offs.
	Thresholds *TierThresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// TierThresholds are the minimum scores for each priority tier.
// A score below Cold lands in TierNurturing.
type TierThresholds struct {
	Hot  int `json:"hot" yaml:"hot"`
	Warm int `json:"warm" yaml:"warm"`
	Cold int `json:"cold" yaml:"cold"`
}

// Valid reports whether the thresholds are usable: descending and inside [0,100].
func (t *TierThresholds) Valid() bool {
	if t == nil {
		return false
	}
	return t.Hot > t.Warm && t.Warm > t.Cold && t.Cold >= 0 && t.Hot <= 100
}

// WarmupOverrides lets a tenant lower (never raise) the built-in stage limits.
type WarmupOverrides struct {
	Limits map[WarmupStage]StageLimits `json:"limits" yaml:"limits"`
}

// StageLimits is a daily/hourly send allowance pair for one warm-up stage.
type StageLimits struct {
	Daily  int `json:"daily" yaml:"daily"`
	Hourly int `json:"hourly" yaml:"hourly"`
}
