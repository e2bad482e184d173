package domain

import "time"

// LeadStatus enumerates the outreach lifecycle of a lead. Leads are never
// deleted, only status-transitioned.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadScored    LeadStatus = "scored"
	LeadContacted LeadStatus = "contacted"
	LeadResponded LeadStatus = "responded"
	LeadFailed    LeadStatus = "failed"
)

// LeadTier is the priority bucket assigned by the ICP scoring engine.
type LeadTier string

const (
	TierHot       LeadTier = "hot"
	TierWarm      LeadTier = "warm"
	TierCold      LeadTier = "cold"
	TierNurturing LeadTier = "nurturing"
)

// Lead is a discovered Instagram profile candidate.
type Lead struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	Username       string     `json:"username" db:"username"`
	FullName       string     `json:"full_name" db:"full_name"`
	Bio            string     `json:"bio" db:"bio"`
	FollowerCount  int        `json:"follower_count" db:"follower_count"`
	FollowingCount int        `json:"following_count" db:"following_count"`
	PostCount      int        `json:"post_count" db:"post_count"`
	EngagementRate float64    `json:"engagement_rate" db:"engagement_rate"`
	IsVerified     bool       `json:"is_verified" db:"is_verified"`
	IsPrivate      bool       `json:"is_private" db:"is_private"`
	IsBusiness     bool       `json:"is_business" db:"is_business"`
	Category       string     `json:"category" db:"category"`
	Location       string     `json:"location" db:"location"`
	ExternalURL    string     `json:"external_url" db:"external_url"`
	Source         string     `json:"source" db:"source"`
	RecentPosts    int        `json:"recent_posts" db:"recent_posts"`
	LastActivityAt *time.Time `json:"last_activity_at" db:"last_activity_at"`

	Score            int      `json:"score" db:"score"`
	Tier             LeadTier `json:"tier" db:"tier"`
	IsDecisor        bool     `json:"is_decisor" db:"is_decisor"`
	MatchedInterests []string `json:"matched_interests" db:"matched_interests"`

	Status      LeadStatus `json:"status" db:"status"`
	ContactedAt *time.Time `json:"contacted_at" db:"contacted_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Contacted reports whether this lead has already received outreach. The
// campaign engine uses it as the idempotency guard on restart/resume.
func (l *Lead) Contacted() bool {
	return l.Status == LeadContacted || l.Status == LeadResponded
}
