package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialforge/outreach/internal/composer"
	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/media"
	"github.com/socialforge/outreach/internal/newsfeed"
	"github.com/socialforge/outreach/internal/service/campaign"
	"github.com/socialforge/outreach/internal/storage/postgres"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeTenantStore struct {
	tenants map[string]*domain.Tenant
}

func (f *fakeTenantStore) Create(_ context.Context, t *domain.Tenant) (string, error) {
	if t.ID == "" {
		t.ID = fmt.Sprintf("tenant-%d", len(f.tenants)+1)
	}
	f.tenants[t.ID] = t
	return t.ID, nil
}

func (f *fakeTenantStore) Get(_ context.Context, id string) (*domain.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	// Each read materializes a fresh row, as a real repository would.
	cp := *t
	return &cp, nil
}

func (f *fakeTenantStore) List(_ context.Context) ([]domain.Tenant, error) {
	out := make([]domain.Tenant, 0, len(f.tenants))
	for _, t := range f.tenants {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeTenantStore) Update(_ context.Context, t *domain.Tenant) error {
	f.tenants[t.ID] = t
	return nil
}

type fakeLeadStore struct {
	leads      map[string]*domain.Lead
	lastFilter postgres.LeadFilter
	scored     map[string]int
}

func (f *fakeLeadStore) Upsert(_ context.Context, l *domain.Lead) (string, error) {
	if l.ID == "" {
		l.ID = fmt.Sprintf("lead-%d", len(f.leads)+1)
	}
	f.leads[l.ID] = l
	return l.ID, nil
}

func (f *fakeLeadStore) Get(_ context.Context, id string) (*domain.Lead, error) {
	l, ok := f.leads[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return l, nil
}

func (f *fakeLeadStore) List(_ context.Context, tenantID string, filter postgres.LeadFilter) ([]domain.Lead, int, error) {
	f.lastFilter = filter
	var out []domain.Lead
	for _, l := range f.leads {
		if l.TenantID == tenantID {
			out = append(out, *l)
		}
	}
	return out, len(out), nil
}

func (f *fakeLeadStore) SetScore(_ context.Context, id string, score int, tier domain.LeadTier, decisor bool, interests []string) error {
	f.scored[id] = score
	if l, ok := f.leads[id]; ok {
		l.Score = score
		l.Tier = tier
	}
	return nil
}

type fakeAccountStore struct {
	accounts map[string]*domain.SendingAccount
	cleared  []string
}

func (f *fakeAccountStore) Create(_ context.Context, a *domain.SendingAccount) (string, error) {
	if a.ID == "" {
		a.ID = fmt.Sprintf("acct-%d", len(f.accounts)+1)
	}
	f.accounts[a.ID] = a
	return a.ID, nil
}

func (f *fakeAccountStore) Get(_ context.Context, id string) (*domain.SendingAccount, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccountStore) List(_ context.Context, tenantID string, _ postgres.AccountFilter) ([]domain.SendingAccount, int, error) {
	var out []domain.SendingAccount
	for _, a := range f.accounts {
		if a.TenantID == tenantID {
			out = append(out, *a)
		}
	}
	return out, len(out), nil
}

func (f *fakeAccountStore) ClearBlock(_ context.Context, accountID string) error {
	f.cleared = append(f.cleared, accountID)
	if a, ok := f.accounts[accountID]; ok {
		a.BlockStatus = domain.BlockNone
		a.BlockedUntil = nil
	}
	return nil
}

func (f *fakeAccountStore) AssignProxy(_ context.Context, accountID string, proxyID *string) error {
	if a, ok := f.accounts[accountID]; ok {
		a.ProxyID = proxyID
	}
	return nil
}

type fakeProxyStore struct {
	proxies     map[string]*domain.ProxyConfig
	deactivated []string
	reactivated []string
}

func (f *fakeProxyStore) Create(_ context.Context, p *domain.ProxyConfig) (string, error) {
	if p.ID == "" {
		p.ID = fmt.Sprintf("proxy-%d", len(f.proxies)+1)
	}
	f.proxies[p.ID] = p
	return p.ID, nil
}

func (f *fakeProxyStore) Get(_ context.Context, id string) (*domain.ProxyConfig, error) {
	p, ok := f.proxies[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return p, nil
}

func (f *fakeProxyStore) List(_ context.Context, tenantID string, _ postgres.ProxyFilter) ([]domain.ProxyConfig, int, error) {
	var out []domain.ProxyConfig
	for _, p := range f.proxies {
		if p.TenantID == tenantID {
			out = append(out, *p)
		}
	}
	return out, len(out), nil
}

func (f *fakeProxyStore) Deactivate(_ context.Context, proxyID string) error {
	f.deactivated = append(f.deactivated, proxyID)
	return nil
}

func (f *fakeProxyStore) Reactivate(_ context.Context, proxyID string) error {
	f.reactivated = append(f.reactivated, proxyID)
	return nil
}

type fakeBlockStore struct {
	events     []domain.BlockEvent
	lastFilter postgres.BlockFilter
}

func (f *fakeBlockStore) List(_ context.Context, filter postgres.BlockFilter) ([]domain.BlockEvent, int, error) {
	f.lastFilter = filter
	var out []domain.BlockEvent
	for _, e := range f.events {
		if filter.TenantID != "" && e.TenantID != filter.TenantID {
			continue
		}
		if filter.CampaignID != "" && e.CampaignID != filter.CampaignID {
			continue
		}
		if !filter.Since.IsZero() && e.DetectedAt.Before(filter.Since) {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

type fakeStatsStore struct {
	stats []domain.DailyStat
}

func (f *fakeStatsStore) Range(_ context.Context, tenantID string, _, _ time.Time) ([]domain.DailyStat, error) {
	var out []domain.DailyStat
	for _, s := range f.stats {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeRunStore struct {
	runs []domain.CampaignRun
}

func (f *fakeRunStore) ListByCampaign(_ context.Context, campaignID string, _ int) ([]domain.CampaignRun, error) {
	var out []domain.CampaignRun
	for _, r := range f.runs {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeTemplateStore struct {
	sets map[string]*composer.TemplateSet
}

func (f *fakeTemplateStore) Upsert(_ context.Context, tenantID string, set *composer.TemplateSet) error {
	f.sets[tenantID+"/"+set.Name] = set
	return nil
}

func (f *fakeTemplateStore) Get(_ context.Context, tenantID, name string) (*composer.TemplateSet, error) {
	return f.sets[tenantID+"/"+name], nil
}

func (f *fakeTemplateStore) List(_ context.Context, tenantID string) ([]composer.TemplateSet, error) {
	var out []composer.TemplateSet
	for k, s := range f.sets {
		if strings.HasPrefix(k, tenantID+"/") {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeTemplateStore) Delete(_ context.Context, tenantID, name string) error {
	delete(f.sets, tenantID+"/"+name)
	return nil
}

type fakeCampaignService struct {
	campaigns map[string]*domain.Campaign
}

func (f *fakeCampaignService) get(tenantID, id string) (*domain.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return nil, campaign.ErrNotFound
	}
	return c, nil
}

func (f *fakeCampaignService) Get(_ context.Context, tenantID, id string) (*domain.Campaign, error) {
	return f.get(tenantID, id)
}

func (f *fakeCampaignService) List(_ context.Context, tenantID string, _ campaign.ListFilter) ([]domain.Campaign, int, error) {
	var out []domain.Campaign
	for _, c := range f.campaigns {
		if c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	return out, len(out), nil
}

func (f *fakeCampaignService) Create(_ context.Context, tenantID string, in campaign.CreateInput) (*domain.Campaign, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	c := &domain.Campaign{
		ID:       fmt.Sprintf("camp-%d", len(f.campaigns)+1),
		TenantID: tenantID,
		Name:     in.Name,
		Query:    in.Query,
		Status:   domain.CampaignPending,
	}
	f.campaigns[c.ID] = c
	return c, nil
}

func (f *fakeCampaignService) Update(_ context.Context, tenantID, id string, _ campaign.UpdateFields) error {
	_, err := f.get(tenantID, id)
	return err
}

func (f *fakeCampaignService) Delete(_ context.Context, tenantID, id string) error {
	if _, err := f.get(tenantID, id); err != nil {
		return err
	}
	delete(f.campaigns, id)
	return nil
}

func (f *fakeCampaignService) Start(_ context.Context, tenantID, id string) error {
	c, err := f.get(tenantID, id)
	if err != nil {
		return err
	}
	if c.Status == domain.CampaignRunning {
		return campaign.ErrAlreadyRunning
	}
	c.Status = domain.CampaignRunning
	return nil
}

func (f *fakeCampaignService) Pause(_ context.Context, tenantID, id string) error {
	c, err := f.get(tenantID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignRunning {
		return campaign.ErrInvalidTransition
	}
	c.Status = domain.CampaignPaused
	return nil
}

func (f *fakeCampaignService) Resume(_ context.Context, tenantID, id string) error {
	c, err := f.get(tenantID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignPaused {
		return campaign.ErrInvalidTransition
	}
	c.Status = domain.CampaignRunning
	return nil
}

func (f *fakeCampaignService) Stop(_ context.Context, tenantID, id string) error {
	c, err := f.get(tenantID, id)
	if err != nil {
		return err
	}
	c.Status = domain.CampaignStopped
	return nil
}

type fakeMediaService struct {
	assets   map[string]*media.Asset
	uploaded []string
}

func (f *fakeMediaService) Upload(_ context.Context, tenantID, filename string, _ io.Reader) (*media.Asset, error) {
	a := &media.Asset{
		ID:       fmt.Sprintf("asset-%d", len(f.assets)+1),
		TenantID: tenantID,
		Filename: filename,
	}
	f.assets[a.ID] = a
	f.uploaded = append(f.uploaded, filename)
	return a, nil
}

func (f *fakeMediaService) Get(_ context.Context, id string) (*media.Asset, error) {
	a, ok := f.assets[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return a, nil
}

func (f *fakeMediaService) List(_ context.Context, tenantID string) ([]media.Asset, error) {
	var out []media.Asset
	for _, a := range f.assets {
		if a.TenantID == tenantID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeMediaService) Delete(_ context.Context, id string) error {
	delete(f.assets, id)
	return nil
}

type fakeBriefer struct {
	brief string
	err   error
}

func (f *fakeBriefer) IncidentBrief(_ context.Context, _ string, _ []domain.BlockEvent, _ map[string]string) (string, error) {
	return f.brief, f.err
}

type fakeHeadlines struct {
	item newsfeed.Item
	ok   bool
}

func (f *fakeHeadlines) Latest(string) (newsfeed.Item, bool) { return f.item, f.ok }

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type testEnv struct {
	handlers  *Handlers
	router    http.Handler
	tenants   *fakeTenantStore
	leads     *fakeLeadStore
	accounts  *fakeAccountStore
	proxies   *fakeProxyStore
	blocks    *fakeBlockStore
	campaigns *fakeCampaignService
	mediaSvc  *fakeMediaService
	briefer   *fakeBriefer
	headlines *fakeHeadlines
	templates *fakeTemplateStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		tenants:   &fakeTenantStore{tenants: map[string]*domain.Tenant{}},
		leads:     &fakeLeadStore{leads: map[string]*domain.Lead{}, scored: map[string]int{}},
		accounts:  &fakeAccountStore{accounts: map[string]*domain.SendingAccount{}},
		proxies:   &fakeProxyStore{proxies: map[string]*domain.ProxyConfig{}},
		blocks:    &fakeBlockStore{},
		campaigns: &fakeCampaignService{campaigns: map[string]*domain.Campaign{}},
		mediaSvc:  &fakeMediaService{assets: map[string]*media.Asset{}},
		briefer:   &fakeBriefer{brief: "All quiet."},
		headlines: &fakeHeadlines{},
		templates: &fakeTemplateStore{sets: map[string]*composer.TemplateSet{}},
	}

	env.tenants.tenants["t1"] = &domain.Tenant{ID: "t1", Name: "Clinica Sorriso"}
	env.tenants.tenants["t2"] = &domain.Tenant{ID: "t2", Name: "Other"}

	env.handlers = NewHandlers(Deps{
		Tenants:   env.tenants,
		Leads:     env.leads,
		Accounts:  env.accounts,
		Proxies:   env.proxies,
		Blocks:    env.blocks,
		Stats:     &fakeStatsStore{},
		Runs:      &fakeRunStore{},
		Templates: env.templates,
		Campaigns: env.campaigns,
		Media:     env.mediaSvc,
		Analyst:   env.briefer,
		News:      env.headlines,
	})

	hc := NewHealthChecker(nil, nil, nil, "")
	router, _ := SetupRoutes(env.handlers, hc, nil)
	env.router = router
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Tenant-ID", "t1")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

// ---------------------------------------------------------------------------
// Pagination
// ---------------------------------------------------------------------------

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest("GET", "/?page=3&limit=10", nil)
	p := ParsePagination(req, 50, 200)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, 20, p.Offset)

	req = httptest.NewRequest("GET", "/", nil)
	p = ParsePagination(req, 50, 200)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 50, p.Limit)
	assert.Equal(t, 0, p.Offset)

	req = httptest.NewRequest("GET", "/?limit=9999&page=-2", nil)
	p = ParsePagination(req, 50, 200)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 200, p.Limit)
}

func TestNewPaginatedResponse(t *testing.T) {
	resp := NewPaginatedResponse([]int{1, 2, 3}, PaginationParams{Page: 1, Limit: 3}, 10)
	assert.Equal(t, 10, resp.Pagination.Total)
	assert.Equal(t, 4, resp.Pagination.TotalPages)
	assert.True(t, resp.Pagination.HasMore)

	resp = NewPaginatedResponse([]int{1}, PaginationParams{Page: 4, Limit: 3}, 10)
	assert.False(t, resp.Pagination.HasMore)
}

// ---------------------------------------------------------------------------
// Tenant scoping
// ---------------------------------------------------------------------------

func TestTenantRequired(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/leads", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "tenant required")
}

func TestTenantUnknown(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/leads", nil)
	req.Header.Set("X-Tenant-ID", "nope")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTenantFromQueryParam(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/leads?tenant_id=t1", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCrossTenantLeadHidden(t *testing.T) {
	env := newTestEnv(t)
	env.leads.leads["lead-x"] = &domain.Lead{ID: "lead-x", TenantID: "t2", Username: "other"}

	w := env.do(t, "GET", "/api/leads/lead-x", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenantUpdateInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)

	// Warm the cache through a tenant-scoped route.
	w := env.do(t, "GET", "/api/leads", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "PUT", "/api/tenants/t1", map[string]interface{}{"name": "Clinica Aurora"})
	require.Equal(t, http.StatusOK, w.Code)

	// Within the TTL a stale entry would still win; the update must have
	// dropped it.
	got, err := env.handlers.tenantCache.get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Clinica Aurora", got.Name)
}

// ---------------------------------------------------------------------------
// Leads
// ---------------------------------------------------------------------------

func TestListLeadsPassesFilters(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/leads?status=new&tier=hot&min_score=70&search=dra", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "new", env.leads.lastFilter.Status)
	assert.Equal(t, "hot", env.leads.lastFilter.Tier)
	assert.Equal(t, 70, env.leads.lastFilter.MinScore)
	assert.Equal(t, "dra", env.leads.lastFilter.Search)
}

func TestIngestLeadScores(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/leads", map[string]interface{}{
		"username":        "dra.paula",
		"full_name":       "Dra. Paula Mendes",
		"bio":             "Dermatologista | Harmonização facial | Agende sua avaliação",
		"follower_count":  8000,
		"engagement_rate": 4.2,
		"recent_posts":    6,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Lead    domain.Lead `json:"lead"`
		Scoring struct {
			Score int    `json:"score"`
			Tier  string `json:"tier"`
		} `json:"scoring"`
	}
	decodeBody(t, w, &resp)

	assert.Equal(t, "dra.paula", resp.Lead.Username)
	assert.Equal(t, "t1", resp.Lead.TenantID)
	assert.NotEmpty(t, resp.Scoring.Tier)

	// Score persisted through SetScore, not just echoed.
	assert.Equal(t, resp.Scoring.Score, env.leads.scored[resp.Lead.ID])
}

func TestIngestLeadRequiresUsername(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/leads", map[string]interface{}{"bio": "no handle"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

func TestCreateAccountDefaults(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/accounts", map[string]interface{}{
		"username":    "sender01",
		"session_ref": "vault://sessions/sender01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var a domain.SendingAccount
	decodeBody(t, w, &a)
	assert.Equal(t, domain.StageNew, a.Stage)
	assert.Equal(t, domain.BlockNone, a.BlockStatus)
	assert.False(t, a.WarmupAnchorAt.IsZero())

	// The session pointer never leaves the API.
	assert.NotContains(t, w.Body.String(), "vault://")
}

func TestClearBlock(t *testing.T) {
	env := newTestEnv(t)
	env.accounts.accounts["acct-1"] = &domain.SendingAccount{
		ID: "acct-1", TenantID: "t1", Username: "sender01",
		BlockStatus: domain.BlockHard,
	}

	w := env.do(t, "POST", "/api/accounts/acct-1/clear-block", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"acct-1"}, env.accounts.cleared)

	// Clearing an unblocked account is a conflict.
	w = env.do(t, "POST", "/api/accounts/acct-1/clear-block", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGlobalAccountVisible(t *testing.T) {
	env := newTestEnv(t)
	env.accounts.accounts["shared"] = &domain.SendingAccount{
		ID: "shared", TenantID: domain.GlobalTenantID, Username: "pool01",
	}

	w := env.do(t, "GET", "/api/accounts/shared", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAssignProxyChecksTenant(t *testing.T) {
	env := newTestEnv(t)
	env.accounts.accounts["acct-1"] = &domain.SendingAccount{ID: "acct-1", TenantID: "t1"}
	env.proxies.proxies["p-other"] = &domain.ProxyConfig{ID: "p-other", TenantID: "t2"}

	w := env.do(t, "PUT", "/api/accounts/acct-1/proxy", map[string]interface{}{"proxy_id": "p-other"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---------------------------------------------------------------------------
// Proxies
// ---------------------------------------------------------------------------

func TestCreateProxyHidesCredentials(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/proxies", map[string]interface{}{
		"host":     "proxy.example.com",
		"port":     8080,
		"username": "user",
		"password": "hunter2",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	assert.NotContains(t, w.Body.String(), "hunter2")

	var p domain.ProxyConfig
	decodeBody(t, w, &p)
	assert.True(t, p.Active)
	assert.Equal(t, domain.ProxyHTTP, p.Protocol)
}

func TestProxyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.proxies.proxies["p1"] = &domain.ProxyConfig{ID: "p1", TenantID: "t1", Active: true, ConsecutiveFailures: 5}

	w := env.do(t, "POST", "/api/proxies/p1/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"p1"}, env.proxies.deactivated)

	w = env.do(t, "POST", "/api/proxies/p1/reactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"p1"}, env.proxies.reactivated)

	var p domain.ProxyConfig
	decodeBody(t, w, &p)
	assert.Zero(t, p.ConsecutiveFailures)
}

// ---------------------------------------------------------------------------
// Campaigns
// ---------------------------------------------------------------------------

func TestCampaignLifecycleVerbs(t *testing.T) {
	env := newTestEnv(t)
	env.campaigns.campaigns["c1"] = &domain.Campaign{
		ID: "c1", TenantID: "t1", Name: "Derma Q3", Status: domain.CampaignPending,
	}

	w := env.do(t, "POST", "/api/campaigns/c1/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var c domain.Campaign
	decodeBody(t, w, &c)
	assert.Equal(t, domain.CampaignRunning, c.Status)

	// Double start conflicts.
	w = env.do(t, "POST", "/api/campaigns/c1/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/api/campaigns/c1/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &c)
	assert.Equal(t, domain.CampaignPaused, c.Status)

	w = env.do(t, "POST", "/api/campaigns/c1/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "POST", "/api/campaigns/c1/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &c)
	assert.Equal(t, domain.CampaignStopped, c.Status)

	// Pause after stop is an invalid transition.
	w = env.do(t, "POST", "/api/campaigns/c1/pause", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCampaignNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/campaigns/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCampaignCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/campaigns", map[string]interface{}{"query": "no name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------------------------------------------------------------------------
// Blocks and stats
// ---------------------------------------------------------------------------

func TestListBlocksSinceFilter(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.blocks.events = []domain.BlockEvent{
		{ID: "b1", TenantID: "t1", Type: domain.BlockCheckpoint, DetectedAt: now.Add(-time.Hour)},
		{ID: "b2", TenantID: "t1", Type: domain.BlockActionBlocked, DetectedAt: now.Add(-48 * time.Hour)},
	}

	since := now.Add(-2 * time.Hour).Format(time.RFC3339)
	w := env.do(t, "GET", "/api/blocks?since="+since, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp PaginatedResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, 1, resp.Pagination.Total)

	w = env.do(t, "GET", "/api/blocks?since=notatime", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

func TestPutTemplateSetValidates(t *testing.T) {
	env := newTestEnv(t)

	// Broken Liquid is rejected before it can break sends.
	w := env.do(t, "PUT", "/api/templates/intro", map[string]interface{}{
		"by_tier": map[string][]string{
			"standard": {"Oi {{ first_name "},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, "PUT", "/api/templates/intro", map[string]interface{}{
		"by_tier": map[string][]string{
			"standard": {"{Oi|Olá} {{ first_name }}!"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Variety map[string]int `json:"variety"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, 2, resp.Variety["standard"])
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

func TestMediaUpload(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "clinic.jpg")
	require.NoError(t, err)
	part.Write([]byte("fake image bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/media", &buf)
	req.Header.Set("X-Tenant-ID", "t1")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, []string{"clinic.jpg"}, env.mediaSvc.uploaded)
}

func TestMediaUploadMissingFile(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "no file here")
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/media", &buf)
	req.Header.Set("X-Tenant-ID", "t1")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------------------------------------------------------------------------
// Analyst and news
// ---------------------------------------------------------------------------

func TestIncidentBrief(t *testing.T) {
	env := newTestEnv(t)
	env.blocks.events = []domain.BlockEvent{
		{ID: "b1", TenantID: "t1", AccountID: "acct-1", Type: domain.BlockCheckpoint, DetectedAt: time.Now().UTC()},
	}
	env.accounts.accounts["acct-1"] = &domain.SendingAccount{ID: "acct-1", TenantID: "t1", Username: "sender01"}
	env.briefer.brief = "One checkpoint on sender01. Rest the account."

	w := env.do(t, "POST", "/api/analyst/brief", map[string]interface{}{"hours": 12})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Brief  string `json:"brief"`
		Events int    `json:"events"`
		Hours  int    `json:"hours"`
	}
	decodeBody(t, w, &resp)
	assert.Contains(t, resp.Brief, "sender01")
	assert.Equal(t, 1, resp.Events)
	assert.Equal(t, 12, resp.Hours)
}

func TestIncidentBriefNoEvents(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/analyst/brief", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Nothing to report")
}

func TestNewsHeadline(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/news", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":false`)

	env.headlines.item = newsfeed.Item{Title: "Botox demand up", Link: "https://news.example.com/botox"}
	env.headlines.ok = true

	w = env.do(t, "GET", "/api/news", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Botox demand up")
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealthWithoutDependencies(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	// Health always answers 200; nil deps degrade the status instead.
	require.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	decodeBody(t, w, &status)
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "down", status.Checks["database"].Status)
}

func TestLiveness(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/health/live", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5s", formatUptime(5*time.Second))
	assert.Equal(t, "2m 5s", formatUptime(2*time.Minute+5*time.Second))
	assert.Equal(t, "3h 0m 10s", formatUptime(3*time.Hour+10*time.Second))
	assert.Equal(t, "1d 1h 0m 0s", formatUptime(25*time.Hour))
}
