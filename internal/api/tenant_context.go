package api

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/socialforge/outreach/internal/domain"
)

// tenantKey is the context key for the resolved tenant.
type tenantKey struct{}

// tenantCacheTTL bounds how stale a cached tenant can get. Rubric and
// warm-up override edits must reach the API within this window.
const tenantCacheTTL = time.Minute

// tenantCache memoizes tenant lookups so every request doesn't hit
// Postgres for the same row.
type tenantCache struct {
	store TenantStore

	mu      sync.RWMutex
	entries map[string]tenantCacheEntry
}

type tenantCacheEntry struct {
	tenant    *domain.Tenant
	fetchedAt time.Time
}

func newTenantCache(store TenantStore) *tenantCache {
	return &tenantCache{store: store, entries: make(map[string]tenantCacheEntry)}
}

func (c *tenantCache) get(ctx context.Context, id string) (*domain.Tenant, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if ok && time.Since(e.fetchedAt) < tenantCacheTTL {
		return e.tenant, nil
	}

	t, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[id] = tenantCacheEntry{tenant: t, fetchedAt: time.Now()}
	c.mu.Unlock()
	return t, nil
}

// invalidate drops a tenant from the cache. Update handlers call this so
// rubric and override edits are visible on the next request rather than
// after the TTL lapses.
func (c *tenantCache) invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// TenantFromContext returns the tenant resolved by the middleware, or nil
// when the request carried no tenant.
func TenantFromContext(ctx context.Context) *domain.Tenant {
	t, _ := ctx.Value(tenantKey{}).(*domain.Tenant)
	return t
}

// resolveTenantID extracts the tenant identifier from the request. Header
// wins over query param; DEFAULT_TENANT_ID covers single-tenant dev setups.
func resolveTenantID(r *http.Request) string {
	if id := r.Header.Get("X-Tenant-ID"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("tenant_id"); id != "" {
		return id
	}
	return os.Getenv("DEFAULT_TENANT_ID")
}

// TenantContext resolves the request's tenant and stores it in the context.
// Requests without a resolvable tenant pass through untouched; RequireTenant
// decides whether that is fatal.
func (h *Handlers) TenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := resolveTenantID(r)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		t, err := h.tenantCache.get(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unknown tenant")
			return
		}

		ctx := context.WithValue(r.Context(), tenantKey{}, t)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTenant rejects requests that reached a tenant-scoped route without
// a tenant in context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TenantFromContext(r.Context()) == nil {
			respondError(w, http.StatusBadRequest, "tenant required: set X-Tenant-ID or tenant_id")
			return
		}
		next.ServeHTTP(w, r)
	})
}
