package api

import (
	"net/http"
	"time"

	"github.com/socialforge/outreach/internal/storage/postgres"
)

// briefMaxEvents bounds how many block events feed one model prompt.
const briefMaxEvents = 200

// HandleIncidentBrief generates a model-written summary of the tenant's
// recent block activity. Body: {"hours": 24} with 24 as the default.
func (h *Handlers) HandleIncidentBrief(w http.ResponseWriter, r *http.Request) {
	if h.analyst == nil {
		respondError(w, http.StatusServiceUnavailable, "analyst not configured")
		return
	}
	tenant := TenantFromContext(r.Context())

	var in struct {
		Hours int `json:"hours"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &in); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	hours := in.Hours
	if hours <= 0 {
		hours = 24
	}
	if hours > 24*7 {
		hours = 24 * 7
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	events, _, err := h.blocks.List(r.Context(), postgres.BlockFilter{
		TenantID: tenant.ID,
		Since:    since,
		Limit:    briefMaxEvents,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if len(events) == 0 {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"brief":  "No block events in the window. Nothing to report.",
			"events": 0,
			"hours":  hours,
		})
		return
	}

	// Usernames read better than UUIDs in the brief.
	names := make(map[string]string)
	for _, e := range events {
		if _, ok := names[e.AccountID]; ok {
			continue
		}
		if a, err := h.accounts.Get(r.Context(), e.AccountID); err == nil {
			names[e.AccountID] = a.Username
		}
	}

	brief, err := h.analyst.IncidentBrief(r.Context(), tenant.Name, events, names)
	if err != nil {
		respondError(w, http.StatusBadGateway, "brief generation failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"brief":  brief,
		"events": len(events),
		"hours":  hours,
	})
}

// HandleNewsHeadline returns the freshest headline from the tenant's
// configured feed, as the composer would see it.
func (h *Handlers) HandleNewsHeadline(w http.ResponseWriter, r *http.Request) {
	if h.news == nil {
		respondError(w, http.StatusServiceUnavailable, "news polling not configured")
		return
	}
	tenant := TenantFromContext(r.Context())

	item, ok := h.news.Latest(tenant.ID)
	if !ok {
		respondJSON(w, http.StatusOK, map[string]interface{}{"available": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"available": true,
		"item":      item,
	})
}
