package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/storage/postgres"
)

// proxyInput carries the fields for registering a proxy. Credentials are
// stored but never echoed back; ProxyConfig hides them from JSON.
type proxyInput struct {
	AccountID   *string `json:"account_id"`
	Host        string  `json:"host"`
	Port        int     `json:"port"`
	Username    string  `json:"username"`
	Password    string  `json:"password"`
	Protocol    string  `json:"protocol"`
	Provider    string  `json:"provider"`
	Residential bool    `json:"residential"`
}

// HandleListProxies returns the tenant's proxies. ?active=true|false
// filters by activation state.
func (h *Handlers) HandleListProxies(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	params := ParsePagination(r, 50, 200)

	f := postgres.ProxyFilter{Limit: params.Limit, Offset: params.Offset}
	switch r.URL.Query().Get("active") {
	case "true":
		v := true
		f.Active = &v
	case "false":
		v := false
		f.Active = &v
	}

	proxies, total, err := h.proxies.List(r.Context(), tenant.ID, f)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(proxies, params, total))
}

// HandleCreateProxy registers a proxy in the tenant's pool.
func (h *Handlers) HandleCreateProxy(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	var in proxyInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Host == "" || in.Port <= 0 {
		respondError(w, http.StatusBadRequest, "host and port are required")
		return
	}

	protocol := domain.ProxyProtocol(in.Protocol)
	if protocol == "" {
		protocol = domain.ProxyHTTP
	}

	p := &domain.ProxyConfig{
		TenantID:    tenant.ID,
		AccountID:   in.AccountID,
		Host:        in.Host,
		Port:        in.Port,
		Username:    in.Username,
		Password:    in.Password,
		Protocol:    protocol,
		Provider:    in.Provider,
		Residential: in.Residential,
		Active:      true,
	}
	id, err := h.proxies.Create(r.Context(), p)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	p.ID = id
	respondJSON(w, http.StatusCreated, p)
}

// HandleGetProxy returns one proxy, tenant-scoped.
func (h *Handlers) HandleGetProxy(w http.ResponseWriter, r *http.Request) {
	p, ok := h.proxyForTenant(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// HandleDeactivateProxy takes a proxy out of rotation.
func (h *Handlers) HandleDeactivateProxy(w http.ResponseWriter, r *http.Request) {
	p, ok := h.proxyForTenant(w, r)
	if !ok {
		return
	}
	if err := h.proxies.Deactivate(r.Context(), p.ID); err != nil {
		respondServiceError(w, err)
		return
	}
	p.Active = false
	respondJSON(w, http.StatusOK, p)
}

// HandleReactivateProxy returns a proxy to rotation and resets its failure
// streak. Auto-deactivated proxies come back only through this call.
func (h *Handlers) HandleReactivateProxy(w http.ResponseWriter, r *http.Request) {
	p, ok := h.proxyForTenant(w, r)
	if !ok {
		return
	}
	if err := h.proxies.Reactivate(r.Context(), p.ID); err != nil {
		respondServiceError(w, err)
		return
	}
	p.Active = true
	p.ConsecutiveFailures = 0
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) proxyForTenant(w http.ResponseWriter, r *http.Request) (*domain.ProxyConfig, bool) {
	tenant := TenantFromContext(r.Context())

	p, err := h.proxies.Get(r.Context(), chi.URLParam(r, "proxyID"))
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	if p.TenantID != tenant.ID {
		respondError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return p, true
}
