package newsfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialforge/outreach/internal/domain"
)

type fakeTenants struct {
	tenants []domain.Tenant
	err     error
}

func (f *fakeTenants) List(ctx context.Context) ([]domain.Tenant, error) {
	return f.tenants, f.err
}

func rssBody(items string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Aesthetics Industry Daily</title>
<link>https://news.example.com</link>
%s
</channel>
</rss>`, items)
}

func rssItem(guid, title, desc, link string, pub time.Time) string {
	return fmt.Sprintf(`<item>
<guid>%s</guid>
<title>%s</title>
<description>%s</description>
<link>%s</link>
<pubDate>%s</pubDate>
</item>`, guid, title, desc, link, pub.Format(time.RFC1123Z))
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPollOncePicksNewestItem(t *testing.T) {
	now := time.Now()
	body := rssBody(
		rssItem("guid-old", "Old launch", "stale", "https://news.example.com/old", now.Add(-48*time.Hour)) +
			rssItem("guid-new", "Botox demand up 20%", "<p>Clinics report a <b>surge</b>.</p>", "https://news.example.com/new", now.Add(-1*time.Hour)),
	)
	srv := feedServer(t, body)

	tenants := &fakeTenants{tenants: []domain.Tenant{
		{ID: "t1", Name: "Acme", NewsFeedURL: srv.URL},
		{ID: "t2", Name: "NoFeed"},
	}}
	p := NewPoller(tenants)
	p.PollOnce(context.Background())

	item, ok := p.Latest("t1")
	require.True(t, ok)
	assert.Equal(t, "guid-new", item.GUID)
	assert.Equal(t, "Botox demand up 20%", item.Title)
	assert.Equal(t, "Clinics report a surge.", item.Description)
	assert.Equal(t, "https://news.example.com/new", item.Link)

	title, link, ok := p.Hook("t1")
	require.True(t, ok)
	assert.Equal(t, "Botox demand up 20%", title)
	assert.Equal(t, "https://news.example.com/new", link)

	_, _, ok = p.Hook("t2")
	assert.False(t, ok, "tenant without a feed should have no hook")
}

func TestHookAgesOut(t *testing.T) {
	now := time.Now()
	srv := feedServer(t, rssBody(
		rssItem("g1", "Fresh enough", "", "https://news.example.com/1", now.Add(-2*time.Hour)),
	))

	tenants := &fakeTenants{tenants: []domain.Tenant{{ID: "t1", NewsFeedURL: srv.URL}}}
	p := NewPoller(tenants, WithMaxAge(72*time.Hour))
	p.PollOnce(context.Background())

	_, _, ok := p.Hook("t1")
	require.True(t, ok)

	p.now = func() time.Time { return now.Add(96 * time.Hour) }
	_, _, ok = p.Hook("t1")
	assert.False(t, ok, "item past max age should not be offered")
}

func TestPollOnceToleratesBrokenFeed(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer broken.Close()

	good := feedServer(t, rssBody(
		rssItem("g1", "Laser clinic expansion", "", "https://news.example.com/1", time.Now()),
	))

	tenants := &fakeTenants{tenants: []domain.Tenant{
		{ID: "t-broken", NewsFeedURL: broken.URL},
		{ID: "t-good", NewsFeedURL: good.URL},
	}}
	p := NewPoller(tenants)
	p.PollOnce(context.Background())

	_, ok := p.Latest("t-broken")
	assert.False(t, ok)

	item, ok := p.Latest("t-good")
	require.True(t, ok)
	assert.Equal(t, "Laser clinic expansion", item.Title)
}

func TestParseItemFallbacks(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	item := parseItem(&gofeed.Item{Title: "Untitled source", Link: "https://news.example.com/x"}, now)
	assert.Equal(t, "https://news.example.com/x", item.GUID, "GUID should fall back to the link")
	assert.Equal(t, now(), item.PubDate, "undated items should count as fresh")
}

func TestHookKeepsLatestAcrossSweeps(t *testing.T) {
	now := time.Now()
	var serve func() string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, serve())
	}))
	defer srv.Close()

	tenants := &fakeTenants{tenants: []domain.Tenant{{ID: "t1", NewsFeedURL: srv.URL}}}
	p := NewPoller(tenants)

	serve = func() string {
		return rssBody(rssItem("g1", "First story", "", "https://news.example.com/1", now.Add(-2*time.Hour)))
	}
	p.PollOnce(context.Background())

	serve = func() string {
		return rssBody(
			rssItem("g1", "First story", "", "https://news.example.com/1", now.Add(-2*time.Hour)) +
				rssItem("g2", "Second story", "", "https://news.example.com/2", now.Add(-1*time.Hour)),
		)
	}
	p.PollOnce(context.Background())

	item, ok := p.Latest("t1")
	require.True(t, ok)
	assert.Equal(t, "g2", item.GUID)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Plain text", stripHTML("  <div><a href=\"x\">Plain</a> text</div> "))
	assert.Equal(t, "no markup", stripHTML("no markup"))
}
