// Package api exposes the REST surface of the outreach engine: tenant and
// lead management, sending account and proxy operations, campaign lifecycle
// control, block event history, daily stats, media assets and the incident
// analyst. Routing is chi; every /api route is session-gated unless the
// process runs in dev mode.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/socialforge/outreach/internal/composer"
	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/media"
	"github.com/socialforge/outreach/internal/newsfeed"
	"github.com/socialforge/outreach/internal/scoring"
	"github.com/socialforge/outreach/internal/service/campaign"
	"github.com/socialforge/outreach/internal/storage/postgres"
)

// TenantStore is the tenant persistence the handlers need.
// *postgres.TenantRepo satisfies it.
type TenantStore interface {
	Create(ctx context.Context, t *domain.Tenant) (string, error)
	Get(ctx context.Context, id string) (*domain.Tenant, error)
	List(ctx context.Context) ([]domain.Tenant, error)
	Update(ctx context.Context, t *domain.Tenant) error
}

// LeadStore is the lead persistence the handlers need.
// *postgres.LeadRepo satisfies it.
type LeadStore interface {
	Upsert(ctx context.Context, l *domain.Lead) (string, error)
	Get(ctx context.Context, id string) (*domain.Lead, error)
	List(ctx context.Context, tenantID string, f postgres.LeadFilter) ([]domain.Lead, int, error)
	SetScore(ctx context.Context, id string, score int, tier domain.LeadTier, decisor bool, interests []string) error
}

// AccountStore is the sending account persistence the handlers need.
// *postgres.AccountRepo satisfies it.
type AccountStore interface {
	Create(ctx context.Context, a *domain.SendingAccount) (string, error)
	Get(ctx context.Context, id string) (*domain.SendingAccount, error)
	List(ctx context.Context, tenantID string, f postgres.AccountFilter) ([]domain.SendingAccount, int, error)
	ClearBlock(ctx context.Context, accountID string) error
	AssignProxy(ctx context.Context, accountID string, proxyID *string) error
}

// ProxyStore is the proxy persistence the handlers need.
// *postgres.ProxyRepo satisfies it.
type ProxyStore interface {
	Create(ctx context.Context, p *domain.ProxyConfig) (string, error)
	Get(ctx context.Context, id string) (*domain.ProxyConfig, error)
	List(ctx context.Context, tenantID string, f postgres.ProxyFilter) ([]domain.ProxyConfig, int, error)
	Deactivate(ctx context.Context, proxyID string) error
	Reactivate(ctx context.Context, proxyID string) error
}

// BlockStore reads the block event audit trail. *postgres.BlockEventRepo
// satisfies it.
type BlockStore interface {
	List(ctx context.Context, f postgres.BlockFilter) ([]domain.BlockEvent, int, error)
}

// StatsStore reads daily rollups. *postgres.StatsRepo satisfies it.
type StatsStore interface {
	Range(ctx context.Context, tenantID string, from, to time.Time) ([]domain.DailyStat, error)
}

// RunStore reads campaign run history. *postgres.RunRepo satisfies it.
type RunStore interface {
	ListByCampaign(ctx context.Context, campaignID string, limit int) ([]domain.CampaignRun, error)
}

// TemplateStore is the template set persistence the handlers need.
// *postgres.TemplateSetRepo satisfies it.
type TemplateStore interface {
	Upsert(ctx context.Context, tenantID string, set *composer.TemplateSet) error
	Get(ctx context.Context, tenantID, name string) (*composer.TemplateSet, error)
	List(ctx context.Context, tenantID string) ([]composer.TemplateSet, error)
	Delete(ctx context.Context, tenantID, name string) error
}

// CampaignService is the lifecycle service behind the campaign routes.
// *campaign.Service satisfies it.
type CampaignService interface {
	Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error)
	List(ctx context.Context, tenantID string, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Create(ctx context.Context, tenantID string, input campaign.CreateInput) (*domain.Campaign, error)
	Update(ctx context.Context, tenantID, id string, u campaign.UpdateFields) error
	Delete(ctx context.Context, tenantID, id string) error
	Start(ctx context.Context, tenantID, id string) error
	Pause(ctx context.Context, tenantID, id string) error
	Resume(ctx context.Context, tenantID, id string) error
	Stop(ctx context.Context, tenantID, id string) error
}

// MediaService stores and serves campaign media. *media.Service satisfies it.
type MediaService interface {
	Upload(ctx context.Context, tenantID, filename string, file io.Reader) (*media.Asset, error)
	Get(ctx context.Context, id string) (*media.Asset, error)
	List(ctx context.Context, tenantID string) ([]media.Asset, error)
	Delete(ctx context.Context, id string) error
}

// WarmupReader reports an account's effective warm-up position and window
// usage. *warmup.Manager satisfies it.
type WarmupReader interface {
	EffectiveStage(ctx context.Context, acct *domain.SendingAccount) (domain.WarmupStage, error)
	Usage(ctx context.Context, acct *domain.SendingAccount, ov *domain.WarmupOverrides) (map[string]int, error)
}

// Briefer writes operator-facing incident summaries. *analyst.Analyst
// satisfies it.
type Briefer interface {
	IncidentBrief(ctx context.Context, tenantName string, events []domain.BlockEvent, accountNames map[string]string) (string, error)
}

// HeadlineSource exposes the freshest industry headline per tenant.
// *newsfeed.Poller satisfies it.
type HeadlineSource interface {
	Latest(tenantID string) (newsfeed.Item, bool)
}

// Handlers bundles every HTTP handler with its dependencies. Optional
// integrations (media, analyst, news, warmup) may be nil; their routes
// answer 503.
type Handlers struct {
	tenants   TenantStore
	leads     LeadStore
	accounts  AccountStore
	proxies   ProxyStore
	blocks    BlockStore
	stats     StatsStore
	runs      RunStore
	templates TemplateStore
	campaigns CampaignService
	warmup    WarmupReader
	media     MediaService
	analyst   Briefer
	news      HeadlineSource
	scorer    *scoring.Engine

	tenantCache *tenantCache
}

// Deps carries the handler dependencies into NewHandlers.
type Deps struct {
	Tenants   TenantStore
	Leads     LeadStore
	Accounts  AccountStore
	Proxies   ProxyStore
	Blocks    BlockStore
	Stats     StatsStore
	Runs      RunStore
	Templates TemplateStore
	Campaigns CampaignService
	Warmup    WarmupReader
	Media     MediaService
	Analyst   Briefer
	News      HeadlineSource
}

// NewHandlers wires the handler set.
func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		tenants:     d.Tenants,
		leads:       d.Leads,
		accounts:    d.Accounts,
		proxies:     d.Proxies,
		blocks:      d.Blocks,
		stats:       d.Stats,
		runs:        d.Runs,
		templates:   d.Templates,
		campaigns:   d.Campaigns,
		warmup:      d.Warmup,
		media:       d.Media,
		analyst:     d.Analyst,
		news:        d.News,
		scorer:      scoring.NewEngine(),
		tenantCache: newTenantCache(d.Tenants),
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps known service and storage errors onto HTTP
// status codes. Unknown errors become 500 with a generic message so
// internals never leak to clients.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound), errors.Is(err, postgres.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, campaign.ErrInvalidTransition), errors.Is(err, campaign.ErrAlreadyRunning):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrEmptyPool):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
