// Package scoring implements the ICP (Ideal Customer Profile) engine: a
// deterministic 0-100 score over a lead profile and a tenant rubric, plus
// the personalization signals the message composer feeds on.
package scoring

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/logger"
)

// Subscore caps. The total is additionally clamped to [0,100].
const (
	maxBioScore        = 30
	maxEngagementScore = 30
	maxProfileScore    = 25
	maxRecencyScore    = 15
)

// Template tiers recommended per score band.
const (
	TemplateUltraPersonalized = "ultra_personalized"
	TemplatePersonalized      = "personalized"
	TemplateStandard          = "standard"
)

// Result is the full scoring outcome for one lead.
type Result struct {
	Score int             `json:"score"`
	Tier  domain.LeadTier `json:"tier"`

	BioScore        int `json:"bio_score"`
	EngagementScore int `json:"engagement_score"`
	ProfileScore    int `json:"profile_score"`
	RecencyScore    int `json:"recency_score"`

	IsDecisor        bool     `json:"is_decisor"`
	MatchedInterests []string `json:"matched_interests"`
	Profession       string   `json:"profession,omitempty"`
	Location         string   `json:"location,omitempty"`

	// RecommendedTemplate maps the score band onto a composer template tier.
	RecommendedTemplate string `json:"recommended_template"`
	// Hooks are short personalization fragments the composer can weave in.
	Hooks []string `json:"hooks,omitempty"`

	// UsedDefaultRubric is set when the tenant rubric was missing or invalid.
	UsedDefaultRubric bool `json:"used_default_rubric,omitempty"`
}

// Engine scores leads. Safe for concurrent use; holds no mutable state.
type Engine struct {
	now func() time.Time
}

// NewEngine creates a scoring engine using wall-clock time for recency.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineAt creates an engine with a fixed clock, for deterministic tests.
func NewEngineAt(now func() time.Time) *Engine {
	return &Engine{now: now}
}

var titleRegex = regexp.MustCompile(`\b(dra?)[.\s]`)

// Score computes the ICP score of lead under rubric. A nil or invalid
// rubric falls back to the built-in default; the fallback is logged and
// flagged on the result, never silent.
func (e *Engine) Score(lead *domain.Lead, rubric *domain.ICPRubric) Result {
	var res Result

	if !usable(rubric) {
		logger.Warn("scoring: falling back to default rubric",
			"tenant_id", lead.TenantID, "lead", lead.Username)
		rubric = DefaultRubric()
		res.UsedDefaultRubric = true
	}

	bio := strings.ToLower(lead.Bio)
	name := strings.ToLower(lead.FullName)
	combined := bio + " " + name

	res.IsDecisor = matchesAny(combined, rubric.DecisorKeywords)
	res.MatchedInterests = matchInterests(bio, rubric.InterestCategories)
	res.Location = matchLocation(bio, rubric.HighValueLocations)
	res.Profession = detectProfession(combined)

	res.BioScore = bioScore(bio, combined, rubric, res)
	res.EngagementScore = engagementScore(lead)
	res.ProfileScore = profileScore(lead, res.Location)
	res.RecencyScore = e.recencyScore(lead)

	total := res.BioScore + res.EngagementScore + res.ProfileScore + res.RecencyScore
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	res.Score = total

	res.Tier = tierFor(total, rubric.Thresholds)
	res.RecommendedTemplate = recommendTemplate(total)
	res.Hooks = buildHooks(lead, res)

	return res
}

// bioScore rewards keyword matches against the tenant's decisor and
// interest lists (max 30).
func bioScore(bio, combined string, rubric *domain.ICPRubric, res Result) int {
	points := 0

	// Professional title (Dr., Dra.)
	if titleRegex.MatchString(combined) {
		points += 5
	}
	if res.IsDecisor {
		points += 10
	}
	if businessMentionRegex.MatchString(bio) {
		points += 5
	}
	if len(res.MatchedInterests) > 0 {
		points += interestBonus(res.MatchedInterests, rubric.CategoryWeights)
	}

	return capAt(points, maxBioScore)
}

var businessMentionRegex = regexp.MustCompile(`(empresa|negócio|business|founder|ceo|startup|clínica|consultório|agency|agência)`)

// interestBonus is the flat interest reward, raised when the tenant weights
// one of the matched categories higher.
func interestBonus(matched []string, weights map[string]int) int {
	bonus := 5
	for _, cat := range matched {
		if w, ok := weights[cat]; ok && w > bonus {
			bonus = w
		}
	}
	return bonus
}

// engagementScore rewards a healthy audience shape (max 30).
func engagementScore(lead *domain.Lead) int {
	points := 0

	if lead.FollowingCount > 0 {
		ratio := float64(lead.FollowerCount) / float64(lead.FollowingCount)
		switch {
		case ratio >= 0.5 && ratio <= 3.0:
			points += 10
		case ratio >= 0.3 && ratio <= 5.0:
			points += 5
		}
	}

	switch {
	case lead.FollowerCount >= 500 && lead.FollowerCount <= 50000:
		points += 10
	case lead.FollowerCount >= 200 && lead.FollowerCount <= 100000:
		points += 5
	}

	switch {
	case lead.EngagementRate >= 5:
		points += 10
	case lead.EngagementRate >= 2:
		points += 7
	case lead.EngagementRate >= 1:
		points += 3
	}

	if lead.IsVerified {
		points += 5
	}

	return capAt(points, maxEngagementScore)
}

// profileScore rewards reachability and professionalism (max 25).
func profileScore(lead *domain.Lead, location string) int {
	points := 0

	if !lead.IsPrivate {
		points += 10
	}
	if len(lead.Bio) > 10 {
		points += 5
	}
	switch {
	case lead.PostCount >= 50:
		points += 5
	case lead.PostCount >= 20:
		points += 3
	}
	if lead.IsBusiness {
		points += 5
	} else if lead.Category != "" {
		points += 3
	}
	if location != "" {
		points += 5
	}

	return capAt(points, maxProfileScore)
}

// recencyScore rewards current activity (max 15).
func (e *Engine) recencyScore(lead *domain.Lead) int {
	points := 0

	switch {
	case lead.RecentPosts >= 3:
		points += 10
	case lead.RecentPosts >= 1:
		points += 5
	}

	if lead.LastActivityAt != nil {
		switch gap := e.now().Sub(*lead.LastActivityAt); {
		case gap <= 7*24*time.Hour:
			points += 5
		case gap <= 30*24*time.Hour:
			points += 3
		}
	}

	return capAt(points, maxRecencyScore)
}

func tierFor(score int, t *domain.TierThresholds) domain.LeadTier {
	hot, warm, cold := 70, 50, 40
	if t.Valid() {
		hot, warm, cold = t.Hot, t.Warm, t.Cold
	}
	switch {
	case score >= hot:
		return domain.TierHot
	case score >= warm:
		return domain.TierWarm
	case score >= cold:
		return domain.TierCold
	default:
		return domain.TierNurturing
	}
}

func recommendTemplate(score int) string {
	switch {
	case score >= 70:
		return TemplateUltraPersonalized
	case score >= 50:
		return TemplatePersonalized
	default:
		return TemplateStandard
	}
}

// buildHooks assembles the personalization fragments, most specific first.
func buildHooks(lead *domain.Lead, res Result) []string {
	var hooks []string

	if res.Profession != "" {
		hooks = append(hooks, "profession: "+res.Profession)
	}
	if res.Location != "" {
		hooks = append(hooks, "location: "+res.Location)
	}
	if len(res.MatchedInterests) > 0 {
		hooks = append(hooks, "interests: "+strings.Join(res.MatchedInterests, ", "))
	}
	if len(lead.Bio) > 20 {
		first := lead.Bio
		if i := strings.Index(first, "|"); i > 0 {
			first = first[:i]
		} else if len(first) > 50 {
			first = first[:50]
		}
		hooks = append(hooks, "bio: "+strings.TrimSpace(first))
	}
	switch {
	case lead.FollowerCount >= 10000:
		hooks = append(hooks, "influencer audience")
	case lead.FollowerCount >= 1000:
		hooks = append(hooks, "established audience")
	}

	return hooks
}

func usable(r *domain.ICPRubric) bool {
	if r == nil {
		return false
	}
	return len(r.DecisorKeywords) > 0 || len(r.InterestCategories) > 0
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// matchInterests returns the matched category names, deduplicated and
// sorted so results are stable across map iteration order.
func matchInterests(bio string, categories map[string][]string) []string {
	if bio == "" {
		return nil
	}
	var matched []string
	for category, keywords := range categories {
		if matchesAny(bio, keywords) {
			matched = append(matched, category)
		}
	}
	sort.Strings(matched)
	return matched
}

func matchLocation(bio string, locations []string) string {
	if bio == "" {
		return ""
	}
	for _, loc := range locations {
		if strings.Contains(bio, loc) {
			if pretty, ok := locationDisplay[loc]; ok {
				return pretty
			}
			return titleCase(loc)
		}
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func capAt(points, max int) int {
	if points > max {
		return max
	}
	return points
}
