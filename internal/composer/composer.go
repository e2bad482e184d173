// Package composer turns a scored lead into outreach message text. A
// message is assembled in three steps: pick a template variant for the
// lead's personalization tier, render Liquid variables (first name,
// profession, bio hook), then expand spintax groups so no two messages
// read identically.
package composer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/scoring"
)

// TemplateSet groups template variants by personalization tier.
type TemplateSet struct {
	Name   string              `json:"name"`
	ByTier map[string][]string `json:"by_tier"`
}

// TemplateSource loads tenant-defined template sets. A nil set with nil
// error means the set does not exist and the built-in default applies.
// *postgres.TemplateSetRepo satisfies it.
type TemplateSource interface {
	Get(ctx context.Context, tenantID, name string) (*TemplateSet, error)
}

// validationTemplates is a shared engine for ValidateSet. Parses are not
// cached; validation runs on writes, not sends.
var validationTemplates = NewTemplateService()

// ValidateSet parses every variant of a set and reports the first broken
// one. A set that passes here cannot fail to render at send time for
// syntax reasons.
func ValidateSet(set *TemplateSet) error {
	if set == nil || len(set.ByTier) == 0 {
		return errors.New("template set has no variants")
	}
	for tier, variants := range set.ByTier {
		if len(variants) == 0 {
			return fmt.Errorf("tier %s has no variants", tier)
		}
		for i, v := range variants {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("tier %s variant %d is empty", tier, i)
			}
			if _, err := validationTemplates.Render("", v, map[string]interface{}{}); err != nil {
				return fmt.Errorf("tier %s variant %d: %w", tier, i, err)
			}
		}
	}
	return nil
}

// NewsSource offers a current industry headline for a tenant. ok is false
// when nothing fresh is available. *newsfeed.Poller satisfies it.
type NewsSource interface {
	Hook(tenantID string) (title, link string, ok bool)
}

// Message is a composed outreach message with its audit metadata.
type Message struct {
	Text       string   `json:"text"`
	Tier       string   `json:"tier"`
	Template   string   `json:"template"`
	Hooks      []string `json:"hooks,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Composer renders personalized messages. Safe for concurrent use.
type Composer struct {
	templates *TemplateService
	source    TemplateSource
	news      NewsSource

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Composer.
type Option func(*Composer)

// WithTemplateSource enables tenant-defined template sets.
func WithTemplateSource(s TemplateSource) Option {
	return func(c *Composer) { c.source = s }
}

// WithNewsSource enables the news_title and news_link template variables.
// Without a source both render empty and cleanMessage collapses the hole.
func WithNewsSource(s NewsSource) Option {
	return func(c *Composer) { c.news = s }
}

// WithSeed fixes the random source, for tests.
func WithSeed(seed int64) Option {
	return func(c *Composer) { c.rng = rand.New(rand.NewSource(seed)) }
}

// New creates a Composer.
func New(opts ...Option) *Composer {
	c := &Composer{
		templates: NewTemplateService(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds the message for a scored lead. Errors are permanent for
// this target: a broken template will not fix itself on retry.
func (c *Composer) Compose(ctx context.Context, lead *domain.Lead, score scoring.Result, setName string) (*Message, error) {
	if lead == nil {
		return nil, errors.New("compose: nil lead")
	}

	set, err := c.resolveSet(ctx, lead.TenantID, setName)
	if err != nil {
		return nil, err
	}

	tier := tierFor(score)
	variants := set.ByTier[tier]
	if len(variants) == 0 {
		variants = set.ByTier[scoring.TemplateStandard]
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("template set %q has no variants for tier %s", set.Name, tier)
	}

	c.mu.Lock()
	idx := c.rng.Intn(len(variants))
	c.mu.Unlock()

	vars := c.messageVars(lead, score)
	cacheKey := fmt.Sprintf("%s:%s:%s:%d", lead.TenantID, set.Name, tier, idx)
	rendered, err := c.templates.Render(cacheKey, variants[idx], vars)
	if err != nil {
		return nil, fmt.Errorf("compose for @%s: %w", lead.Username, err)
	}

	c.mu.Lock()
	text := ExpandSpintax(rendered, c.rng)
	c.mu.Unlock()

	text = cleanMessage(text)
	if text == "" {
		return nil, fmt.Errorf("compose for @%s: empty message", lead.Username)
	}

	return &Message{
		Text:       text,
		Tier:       tier,
		Template:   fmt.Sprintf("%s:%s:%d", set.Name, tier, idx),
		Hooks:      score.Hooks,
		Confidence: confidence(score.Score, tier),
	}, nil
}

// InvalidateTemplates drops cached parses after a tenant edits a set.
func (c *Composer) InvalidateTemplates() {
	c.templates.ClearCache()
}

func (c *Composer) resolveSet(ctx context.Context, tenantID, name string) (*TemplateSet, error) {
	if c.source == nil || name == "" || name == defaultSet.Name {
		return defaultSet, nil
	}
	set, err := c.source.Get(ctx, tenantID, name)
	if err != nil {
		return nil, fmt.Errorf("load template set %q: %w", name, err)
	}
	if set == nil {
		return defaultSet, nil
	}
	return set, nil
}

// tierFor maps the score recommendation onto a template tier. The ultra
// tier leans on a detected profession; without one the message falls back
// a tier rather than rendering a hole.
func tierFor(score scoring.Result) string {
	tier := score.RecommendedTemplate
	if tier == "" {
		tier = scoring.TemplateStandard
	}
	if tier == scoring.TemplateUltraPersonalized && score.Profession == "" {
		tier = scoring.TemplatePersonalized
	}
	return tier
}

func (c *Composer) messageVars(lead *domain.Lead, score scoring.Result) map[string]interface{} {
	profession := score.Profession
	if profession == "" {
		profession = "profissional"
	}
	interest := "seu trabalho"
	if len(score.MatchedInterests) > 0 {
		interest = score.MatchedInterests[0]
	}
	var newsTitle, newsLink string
	if c.news != nil {
		if title, link, ok := c.news.Hook(lead.TenantID); ok {
			newsTitle, newsLink = title, link
		}
	}
	return map[string]interface{}{
		"first_name": firstName(lead),
		"profession": profession,
		"interest":   interest,
		"location":   score.Location,
		"bio_hook":   c.bioHook(lead, score),
		"news_title": newsTitle,
		"news_link":  newsLink,
	}
}

// bioHook picks the most specific personalization line available: a
// concrete specialty from the bio, then the bio's own lead-in segment,
// then a profession line, then an interest line. Empty when nothing
// applies; cleanMessage collapses the hole.
func (c *Composer) bioHook(lead *domain.Lead, score scoring.Result) string {
	bio := strings.ToLower(lead.Bio)
	if len(bio) > 10 {
		for _, s := range specialtyHooks {
			if strings.Contains(bio, s.keyword) {
				return s.hook
			}
		}
		if seg := bioSegment(lead.Bio); seg != "" {
			return fmt.Sprintf("Vi que você trabalha com %s.", strings.ToLower(seg))
		}
	}

	if hooks, ok := professionHooks[score.Profession]; ok {
		c.mu.Lock()
		h := hooks[c.rng.Intn(len(hooks))]
		c.mu.Unlock()
		return h
	}

	for _, interest := range score.MatchedInterests {
		if h, ok := interestHooks[interest]; ok {
			return h
		}
	}
	return ""
}

// bioSegment extracts the bio's lead-in before the first separator, when
// it is short enough to read as a specialty.
func bioSegment(bio string) string {
	for _, sep := range []string{"|", "📍", "•", "🔹", "✨", "\n"} {
		if i := strings.Index(bio, sep); i > 0 {
			seg := strings.TrimSpace(bio[:i])
			if len(seg) > 10 && len(seg) < 50 {
				return seg
			}
			return ""
		}
	}
	return ""
}

// firstName extracts the lead's first name, stripping professional titles.
// Falls back to a bare greeting word so templates still read naturally.
func firstName(lead *domain.Lead) string {
	name := lead.FullName
	if name == "" {
		name = lead.Username
	}
	for _, title := range []string{"Dr. ", "Dra. ", "Dr ", "Dra "} {
		name = strings.ReplaceAll(name, title, "")
	}
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "Oi"
	}
	runes := []rune(strings.ToLower(parts[0]))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// cleanMessage collapses repeated blank lines and trims the result.
func cleanMessage(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	prevEmpty := false
	for _, line := range lines {
		empty := strings.TrimSpace(line) == ""
		if empty && prevEmpty {
			continue
		}
		out = append(out, strings.TrimRight(line, " \t"))
		prevEmpty = empty
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// confidence estimates personalization quality from the tier base and the
// lead score.
func confidence(score int, tier string) float64 {
	base := map[string]float64{
		scoring.TemplateUltraPersonalized: 0.9,
		scoring.TemplatePersonalized:      0.7,
		scoring.TemplateStandard:          0.5,
	}[tier]
	if base == 0 {
		base = 0.3
	}
	factor := math.Min(float64(score)/100, 1.0)
	return math.Round((base+factor)/2*100) / 100
}
