package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/socialforge/outreach/internal/domain"
)

// tenantInput carries the mutable tenant fields for create and update.
type tenantInput struct {
	Name            string                  `json:"name"`
	Rubric          *domain.ICPRubric       `json:"rubric"`
	ActiveChannels  []string                `json:"active_channels"`
	WarmupOverrides *domain.WarmupOverrides `json:"warmup_overrides"`
	NewsFeedURL     string                  `json:"news_feed_url"`
}

// HandleListTenants returns all tenants.
func (h *Handlers) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": tenants})
}

// HandleGetTenant returns one tenant by ID.
func (h *Handlers) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.Get(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// HandleCreateTenant provisions a new tenant.
func (h *Handlers) HandleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var in tenantInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	t := &domain.Tenant{
		Name:            in.Name,
		Rubric:          in.Rubric,
		ActiveChannels:  in.ActiveChannels,
		WarmupOverrides: in.WarmupOverrides,
		NewsFeedURL:     in.NewsFeedURL,
	}
	id, err := h.tenants.Create(r.Context(), t)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	t.ID = id
	respondJSON(w, http.StatusCreated, t)
}

// HandleUpdateTenant replaces a tenant's configuration.
func (h *Handlers) HandleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantID")

	t, err := h.tenants.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	var in tenantInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Name != "" {
		t.Name = in.Name
	}
	if in.Rubric != nil {
		t.Rubric = in.Rubric
	}
	if in.ActiveChannels != nil {
		t.ActiveChannels = in.ActiveChannels
	}
	if in.WarmupOverrides != nil {
		t.WarmupOverrides = in.WarmupOverrides
	}
	if in.NewsFeedURL != "" {
		t.NewsFeedURL = in.NewsFeedURL
	}

	if err := h.tenants.Update(r.Context(), t); err != nil {
		respondServiceError(w, err)
		return
	}
	h.tenantCache.invalidate(id)
	respondJSON(w, http.StatusOK, t)
}
