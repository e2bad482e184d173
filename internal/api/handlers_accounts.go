package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/storage/postgres"
	"github.com/socialforge/outreach/internal/warmup"
)

// accountInput carries the fields for registering a sending account.
// SessionRef is a vault pointer, never raw credentials.
type accountInput struct {
	Username   string  `json:"username"`
	SessionRef string  `json:"session_ref"`
	ProxyID    *string `json:"proxy_id"`
}

// HandleListAccounts returns the tenant's sending accounts with optional
// stage and block_status filters.
func (h *Handlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	params := ParsePagination(r, 50, 200)

	f := postgres.AccountFilter{
		Stage:       r.URL.Query().Get("stage"),
		BlockStatus: r.URL.Query().Get("block_status"),
		Limit:       params.Limit,
		Offset:      params.Offset,
	}

	accounts, total, err := h.accounts.List(r.Context(), tenant.ID, f)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(accounts, params, total))
}

// HandleCreateAccount registers a new sending account. Fresh accounts
// start in the new stage with the anchor at registration time.
func (h *Handlers) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	var in accountInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Username == "" {
		respondError(w, http.StatusBadRequest, "username is required")
		return
	}
	if in.SessionRef == "" {
		respondError(w, http.StatusBadRequest, "session_ref is required")
		return
	}

	a := &domain.SendingAccount{
		TenantID:       tenant.ID,
		Username:       in.Username,
		SessionRef:     in.SessionRef,
		Stage:          domain.StageNew,
		WarmupAnchorAt: time.Now().UTC(),
		BlockStatus:    domain.BlockNone,
		ProxyID:        in.ProxyID,
	}
	id, err := h.accounts.Create(r.Context(), a)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	a.ID = id
	respondJSON(w, http.StatusCreated, a)
}

// HandleGetAccount returns one account, tenant-scoped. Shared accounts
// under the global tenant are visible to everyone.
func (h *Handlers) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, ok := h.accountForTenant(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// HandleAccountWarmup reports the account's effective warm-up stage, the
// limits that stage imposes and the current window usage.
func (h *Handlers) HandleAccountWarmup(w http.ResponseWriter, r *http.Request) {
	if h.warmup == nil {
		respondError(w, http.StatusServiceUnavailable, "warm-up tracking not configured")
		return
	}
	tenant := TenantFromContext(r.Context())
	a, ok := h.accountForTenant(w, r)
	if !ok {
		return
	}

	stage, err := h.warmup.EffectiveStage(r.Context(), a)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	usage, err := h.warmup.Usage(r.Context(), a, tenant.WarmupOverrides)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": a.ID,
		"stage":      stage,
		"limits":     warmup.LimitsFor(stage, tenant.WarmupOverrides),
		"usage":      usage,
	})
}

// HandleClearAccountBlock lifts an account's block after operator review.
// Warm-up stage is untouched; a hard block already regressed it when the
// block landed.
func (h *Handlers) HandleClearAccountBlock(w http.ResponseWriter, r *http.Request) {
	a, ok := h.accountForTenant(w, r)
	if !ok {
		return
	}
	if a.BlockStatus == domain.BlockNone {
		respondError(w, http.StatusConflict, "account is not blocked")
		return
	}
	if err := h.accounts.ClearBlock(r.Context(), a.ID); err != nil {
		respondServiceError(w, err)
		return
	}
	a.BlockStatus = domain.BlockNone
	a.BlockedUntil = nil
	respondJSON(w, http.StatusOK, a)
}

// HandleAssignProxy binds the account to a dedicated proxy, or unbinds it
// when proxy_id is null so the account falls back to the tenant pool.
func (h *Handlers) HandleAssignProxy(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	a, ok := h.accountForTenant(w, r)
	if !ok {
		return
	}

	var in struct {
		ProxyID *string `json:"proxy_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if in.ProxyID != nil {
		p, err := h.proxies.Get(r.Context(), *in.ProxyID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if p.TenantID != tenant.ID {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
	}

	if err := h.accounts.AssignProxy(r.Context(), a.ID, in.ProxyID); err != nil {
		respondServiceError(w, err)
		return
	}
	a.ProxyID = in.ProxyID
	respondJSON(w, http.StatusOK, a)
}

// accountForTenant loads the account in the accountID URL param and
// enforces tenant visibility. Writes the error response on failure.
func (h *Handlers) accountForTenant(w http.ResponseWriter, r *http.Request) (*domain.SendingAccount, bool) {
	tenant := TenantFromContext(r.Context())

	a, err := h.accounts.Get(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	if a.TenantID != tenant.ID && a.TenantID != domain.GlobalTenantID {
		respondError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return a, true
}
