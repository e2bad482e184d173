package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/socialforge/outreach/internal/service/campaign"
	"github.com/socialforge/outreach/internal/storage/postgres"
)

// HandleListCampaigns returns the tenant's campaigns with optional status
// and search filters.
func (h *Handlers) HandleListCampaigns(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	params := ParsePagination(r, 25, 100)

	f := campaign.ListFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Limit:  params.Limit,
		Offset: params.Offset,
	}

	campaigns, total, err := h.campaigns.List(r.Context(), tenant.ID, f)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(campaigns, params, total))
}

// HandleCreateCampaign creates a campaign in pending status.
func (h *Handlers) HandleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	var in campaign.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.campaigns.Create(r.Context(), tenant.ID, in)
	if err != nil {
		// Create validates inline; surface the message.
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// HandleGetCampaign returns one campaign.
func (h *Handlers) HandleGetCampaign(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	c, err := h.campaigns.Get(r.Context(), tenant.ID, chi.URLParam(r, "campaignID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// campaignUpdateInput mirrors campaign.UpdateFields with JSON tags.
type campaignUpdateInput struct {
	Name            *string   `json:"name"`
	Query           *string   `json:"query"`
	TemplateSet     *string   `json:"template_set"`
	MediaID         *string   `json:"media_id"`
	DelayMinMinutes *int      `json:"delay_min_minutes"`
	DelayMaxMinutes *int      `json:"delay_max_minutes"`
	MinScore        *int      `json:"min_score"`
	AccountPool     *[]string `json:"account_pool"`
}

// HandleUpdateCampaign applies a partial update. Running campaigns pick up
// the change on their next run.
func (h *Handlers) HandleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	id := chi.URLParam(r, "campaignID")

	var in campaignUpdateInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u := campaign.UpdateFields{
		Name:            in.Name,
		Query:           in.Query,
		TemplateSet:     in.TemplateSet,
		MediaID:         in.MediaID,
		DelayMinMinutes: in.DelayMinMinutes,
		DelayMaxMinutes: in.DelayMaxMinutes,
		MinScore:        in.MinScore,
		AccountPool:     in.AccountPool,
	}
	if err := h.campaigns.Update(r.Context(), tenant.ID, id, u); err != nil {
		respondServiceError(w, err)
		return
	}

	c, err := h.campaigns.Get(r.Context(), tenant.ID, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// HandleDeleteCampaign removes a campaign that is not running or paused.
func (h *Handlers) HandleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	if err := h.campaigns.Delete(r.Context(), tenant.ID, chi.URLParam(r, "campaignID")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Lifecycle verbs. Each one drives the state machine through the service
// and returns the campaign as it now stands.

func (h *Handlers) HandleStartCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.campaigns.Start)
}

func (h *Handlers) HandlePauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.campaigns.Pause)
}

func (h *Handlers) HandleResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.campaigns.Resume)
}

func (h *Handlers) HandleStopCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.campaigns.Stop)
}

func (h *Handlers) lifecycle(w http.ResponseWriter, r *http.Request, verb func(ctx context.Context, tenantID, id string) error) {
	tenant := TenantFromContext(r.Context())
	id := chi.URLParam(r, "campaignID")

	if err := verb(r.Context(), tenant.ID, id); err != nil {
		respondServiceError(w, err)
		return
	}

	c, err := h.campaigns.Get(r.Context(), tenant.ID, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// HandleCampaignRuns returns the recent run history of a campaign.
func (h *Handlers) HandleCampaignRuns(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	id := chi.URLParam(r, "campaignID")

	// Scope check before reading runs, which are keyed by campaign alone.
	if _, err := h.campaigns.Get(r.Context(), tenant.ID, id); err != nil {
		respondServiceError(w, err)
		return
	}

	runs, err := h.runs.ListByCampaign(r.Context(), id, 20)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": runs})
}

// HandleCampaignBlocks returns the block events recorded during a
// campaign's runs.
func (h *Handlers) HandleCampaignBlocks(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	id := chi.URLParam(r, "campaignID")
	params := ParsePagination(r, 50, 200)

	if _, err := h.campaigns.Get(r.Context(), tenant.ID, id); err != nil {
		respondServiceError(w, err)
		return
	}

	events, total, err := h.blocks.List(r.Context(), postgres.BlockFilter{
		TenantID:   tenant.ID,
		CampaignID: id,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(events, params, total))
}
