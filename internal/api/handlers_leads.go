package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/storage/postgres"
)

// leadInput is an ingested Instagram profile. Scoring fields are computed
// server-side and ignored if present in the payload.
type leadInput struct {
	Username       string     `json:"username"`
	FullName       string     `json:"full_name"`
	Bio            string     `json:"bio"`
	FollowerCount  int        `json:"follower_count"`
	FollowingCount int        `json:"following_count"`
	PostCount      int        `json:"post_count"`
	EngagementRate float64    `json:"engagement_rate"`
	IsVerified     bool       `json:"is_verified"`
	IsPrivate      bool       `json:"is_private"`
	IsBusiness     bool       `json:"is_business"`
	Category       string     `json:"category"`
	Location       string     `json:"location"`
	ExternalURL    string     `json:"external_url"`
	Source         string     `json:"source"`
	RecentPosts    int        `json:"recent_posts"`
	LastActivityAt *time.Time `json:"last_activity_at"`
}

// HandleListLeads returns the tenant's leads with optional status, tier,
// min_score and search filters.
func (h *Handlers) HandleListLeads(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	params := ParsePagination(r, 50, 200)

	f := postgres.LeadFilter{
		Status: r.URL.Query().Get("status"),
		Tier:   r.URL.Query().Get("tier"),
		Search: r.URL.Query().Get("search"),
		Limit:  params.Limit,
		Offset: params.Offset,
	}
	if v := r.URL.Query().Get("min_score"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.MinScore = n
		}
	}

	leads, total, err := h.leads.List(r.Context(), tenant.ID, f)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(leads, params, total))
}

// HandleGetLead returns one lead, tenant-scoped.
func (h *Handlers) HandleGetLead(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	l, err := h.leads.Get(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if l.TenantID != tenant.ID {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	respondJSON(w, http.StatusOK, l)
}

// HandleIngestLead upserts a scraped profile and scores it against the
// tenant's rubric in the same request. Re-ingesting an existing username
// refreshes the profile fields and the score.
func (h *Handlers) HandleIngestLead(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	var in leadInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Username == "" {
		respondError(w, http.StatusBadRequest, "username is required")
		return
	}

	l := &domain.Lead{
		TenantID:       tenant.ID,
		Username:       in.Username,
		FullName:       in.FullName,
		Bio:            in.Bio,
		FollowerCount:  in.FollowerCount,
		FollowingCount: in.FollowingCount,
		PostCount:      in.PostCount,
		EngagementRate: in.EngagementRate,
		IsVerified:     in.IsVerified,
		IsPrivate:      in.IsPrivate,
		IsBusiness:     in.IsBusiness,
		Category:       in.Category,
		Location:       in.Location,
		ExternalURL:    in.ExternalURL,
		Source:         in.Source,
		RecentPosts:    in.RecentPosts,
		LastActivityAt: in.LastActivityAt,
	}

	res := h.scorer.Score(l, tenant.Rubric)
	l.Score = res.Score
	l.Tier = res.Tier
	l.IsDecisor = res.IsDecisor
	l.MatchedInterests = res.MatchedInterests

	id, err := h.leads.Upsert(r.Context(), l)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	l.ID = id

	// The upsert keeps prior score columns on conflict; write the fresh
	// score explicitly so re-ingests pick up rubric changes.
	if err := h.leads.SetScore(r.Context(), id, res.Score, res.Tier, res.IsDecisor, res.MatchedInterests); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"lead":    l,
		"scoring": res,
	})
}

// HandleRescoreLead recomputes a lead's score under the tenant's current
// rubric.
func (h *Handlers) HandleRescoreLead(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	l, err := h.leads.Get(r.Context(), chi.URLParam(r, "leadID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if l.TenantID != tenant.ID {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	res := h.scorer.Score(l, tenant.Rubric)
	if err := h.leads.SetScore(r.Context(), l.ID, res.Score, res.Tier, res.IsDecisor, res.MatchedInterests); err != nil {
		respondServiceError(w, err)
		return
	}

	l.Score = res.Score
	l.Tier = res.Tier
	l.IsDecisor = res.IsDecisor
	l.MatchedInterests = res.MatchedInterests
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lead":    l,
		"scoring": res,
	})
}
