// Package newsfeed polls each tenant's industry feed and keeps the freshest
// item available as a composer variable. A current headline in the first
// message reads like a human who follows the lead's market; a stale one
// reads like a bot, so items age out instead of lingering.
package newsfeed

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/logger"
)

const (
	// DefaultInterval spaces the polling sweeps.
	DefaultInterval = 30 * time.Minute
	// DefaultMaxAge is how long an item still counts as news.
	DefaultMaxAge = 72 * time.Hour
)

// Item is one feed entry, reduced to what the composer can use.
type Item struct {
	GUID        string
	Title       string
	Description string
	Link        string
	PubDate     time.Time
}

// TenantSource lists the tenants to poll. *postgres.TenantRepo satisfies it.
type TenantSource interface {
	List(ctx context.Context) ([]domain.Tenant, error)
}

// Poller keeps one fresh item per tenant.
type Poller struct {
	tenants  TenantSource
	parser   *gofeed.Parser
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	latest map[string]Item
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the sweep interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithMaxAge overrides how long an item stays usable.
func WithMaxAge(d time.Duration) Option {
	return func(p *Poller) { p.maxAge = d }
}

// NewPoller creates a feed poller over the tenant source.
func NewPoller(tenants TenantSource, opts ...Option) *Poller {
	p := &Poller{
		tenants:  tenants,
		parser:   gofeed.NewParser(),
		interval: DefaultInterval,
		maxAge:   DefaultMaxAge,
		now:      time.Now,
		latest:   map[string]Item{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until the context is canceled. An immediate sweep runs first so
// composers have hooks before the first tick.
func (p *Poller) Run(ctx context.Context) {
	logger.Info("newsfeed poller started", "interval", p.interval.String())
	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("newsfeed poller stopped")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce sweeps every tenant with a configured feed. One broken feed only
// costs that tenant its hook.
func (p *Poller) PollOnce(ctx context.Context) {
	tenants, err := p.tenants.List(ctx)
	if err != nil {
		logger.Warn("newsfeed tenant list failed", "error", err.Error())
		return
	}

	for _, t := range tenants {
		if t.NewsFeedURL == "" {
			continue
		}
		item, ok := p.fetchLatest(ctx, t.NewsFeedURL)
		if !ok {
			continue
		}
		p.mu.Lock()
		p.latest[t.ID] = item
		p.mu.Unlock()
		logger.Debug("newsfeed hook refreshed", "tenant_id", t.ID, "title", item.Title)
	}
}

// Latest returns the tenant's current news item. ok is false when there is
// no item or the item has aged out.
func (p *Poller) Latest(tenantID string) (Item, bool) {
	p.mu.RLock()
	item, ok := p.latest[tenantID]
	p.mu.RUnlock()
	if !ok {
		return Item{}, false
	}
	if p.now().Sub(item.PubDate) > p.maxAge {
		return Item{}, false
	}
	return item, true
}

// Hook returns the current headline and link in template-variable shape.
// The composer consumes this.
func (p *Poller) Hook(tenantID string) (title, link string, ok bool) {
	item, ok := p.Latest(tenantID)
	if !ok {
		return "", "", false
	}
	return item.Title, item.Link, true
}

// fetchLatest parses the feed and returns its newest usable entry.
func (p *Poller) fetchLatest(ctx context.Context, url string) (Item, bool) {
	feed, err := p.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		logger.Warn("newsfeed fetch failed", "url", url, "error", err.Error())
		return Item{}, false
	}

	var newest Item
	for _, raw := range feed.Items {
		item := parseItem(raw, p.now)
		if item.Title == "" {
			continue
		}
		if newest.GUID == "" || item.PubDate.After(newest.PubDate) {
			newest = item
		}
	}
	if newest.GUID == "" {
		return Item{}, false
	}
	return newest, true
}

func parseItem(item *gofeed.Item, now func() time.Time) Item {
	out := Item{
		GUID:        item.GUID,
		Title:       strings.TrimSpace(item.Title),
		Description: stripHTML(item.Description),
		Link:        item.Link,
	}
	if out.GUID == "" {
		out.GUID = item.Link
	}

	if item.PublishedParsed != nil {
		out.PubDate = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		out.PubDate = *item.UpdatedParsed
	} else {
		out.PubDate = now()
	}
	return out
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

func stripHTML(input string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(input, ""))
}
