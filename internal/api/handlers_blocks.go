package api

import (
	"net/http"
	"time"

	"github.com/socialforge/outreach/internal/storage/postgres"
)

// HandleListBlocks returns the tenant's block events, newest first.
// Optional filters: account_id, type, since (RFC 3339).
func (h *Handlers) HandleListBlocks(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	params := ParsePagination(r, 50, 200)

	f := postgres.BlockFilter{
		TenantID:  tenant.ID,
		AccountID: r.URL.Query().Get("account_id"),
		Type:      r.URL.Query().Get("type"),
		Limit:     params.Limit,
		Offset:    params.Offset,
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		f.Since = since
	}

	events, total, err := h.blocks.List(r.Context(), f)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(events, params, total))
}

// HandleDailyStats returns the tenant's daily rollups for a date range.
// Defaults to the last 30 days.
func (h *Handlers) HandleDailyStats(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if v := r.URL.Query().Get("from"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = d
	}

	stats, err := h.stats.Range(r.Context(), tenant.ID, from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data": stats,
		"from": from.Format("2006-01-02"),
		"to":   to.Format("2006-01-02"),
	})
}
