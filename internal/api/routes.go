package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/socialforge/outreach/internal/auth"
)

// SetupRoutes builds the router. The returned apiRouter is the /api
// subtree so callers can mount extra routes behind the auth middleware.
func SetupRoutes(h *Handlers, hc *HealthChecker, authManager *auth.Manager) (*chi.Mux, chi.Router) {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints, no auth.
	r.Get("/health", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)
	r.Get("/health/ready", hc.HandleReadiness)
	r.Get("/health/db", hc.HandleDBStats)

	// Auth endpoints, no auth.
	if authManager != nil {
		r.Get("/auth/login", authManager.HandleLogin)
		r.Get("/auth/callback", authManager.HandleCallback)
		r.Get("/auth/logout", authManager.HandleLogout)
		r.Get("/auth/user", authManager.HandleUserInfo)
	}

	var apiRouter chi.Router
	devMode := os.Getenv("DEV_MODE") == "true" || os.Getenv("ENVIRONMENT") == "development"

	r.Route("/api", func(r chi.Router) {
		apiRouter = r
		if authManager != nil && !devMode {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					if !authManager.IsAuthenticated(req) {
						w.Header().Set("Content-Type", "application/json")
						w.WriteHeader(http.StatusUnauthorized)
						w.Write([]byte(`{"error":"unauthorized"}`))
						return
					}
					next.ServeHTTP(w, req)
				})
			})
		}

		// Tenant administration works without a tenant header.
		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", h.HandleListTenants)
			r.Post("/", h.HandleCreateTenant)
			r.Get("/{tenantID}", h.HandleGetTenant)
			r.Put("/{tenantID}", h.HandleUpdateTenant)
		})

		// Everything below is scoped to the tenant in X-Tenant-ID.
		r.Group(func(r chi.Router) {
			r.Use(h.TenantContext)
			r.Use(RequireTenant)

			r.Route("/leads", func(r chi.Router) {
				r.Get("/", h.HandleListLeads)
				r.Post("/", h.HandleIngestLead)
				r.Get("/{leadID}", h.HandleGetLead)
				r.Post("/{leadID}/rescore", h.HandleRescoreLead)
			})

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.HandleListAccounts)
				r.Post("/", h.HandleCreateAccount)
				r.Get("/{accountID}", h.HandleGetAccount)
				r.Get("/{accountID}/warmup", h.HandleAccountWarmup)
				r.Post("/{accountID}/clear-block", h.HandleClearAccountBlock)
				r.Put("/{accountID}/proxy", h.HandleAssignProxy)
			})

			r.Route("/proxies", func(r chi.Router) {
				r.Get("/", h.HandleListProxies)
				r.Post("/", h.HandleCreateProxy)
				r.Get("/{proxyID}", h.HandleGetProxy)
				r.Post("/{proxyID}/deactivate", h.HandleDeactivateProxy)
				r.Post("/{proxyID}/reactivate", h.HandleReactivateProxy)
			})

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", h.HandleListCampaigns)
				r.Post("/", h.HandleCreateCampaign)
				r.Get("/{campaignID}", h.HandleGetCampaign)
				r.Put("/{campaignID}", h.HandleUpdateCampaign)
				r.Delete("/{campaignID}", h.HandleDeleteCampaign)
				r.Post("/{campaignID}/start", h.HandleStartCampaign)
				r.Post("/{campaignID}/pause", h.HandlePauseCampaign)
				r.Post("/{campaignID}/resume", h.HandleResumeCampaign)
				r.Post("/{campaignID}/stop", h.HandleStopCampaign)
				r.Get("/{campaignID}/runs", h.HandleCampaignRuns)
				r.Get("/{campaignID}/blocks", h.HandleCampaignBlocks)
			})

			r.Get("/blocks", h.HandleListBlocks)
			r.Get("/stats/daily", h.HandleDailyStats)

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", h.HandleListTemplateSets)
				r.Get("/{name}", h.HandleGetTemplateSet)
				r.Put("/{name}", h.HandlePutTemplateSet)
				r.Delete("/{name}", h.HandleDeleteTemplateSet)
			})

			r.Route("/media", func(r chi.Router) {
				r.Get("/", h.HandleListMedia)
				r.Post("/", h.HandleUploadMedia)
				r.Get("/{assetID}", h.HandleGetMedia)
				r.Delete("/{assetID}", h.HandleDeleteMedia)
			})

			r.Post("/analyst/brief", h.HandleIncidentBrief)
			r.Get("/news", h.HandleNewsHeadline)
		})
	})

	// Operator dashboard static files.
	spaHandler(r, "./web/dist")

	return r, apiRouter
}

// allowedOrigins returns the CORS origin list. CORS_ORIGINS is a comma
// separated override for deployed environments.
func allowedOrigins() []string {
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return []string{"http://localhost:5173", "http://localhost:8080"}
}

// spaHandler serves the dashboard build and falls back to index.html so
// client-side routes deep-link correctly.
func spaHandler(r chi.Router, staticPath string) {
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		path := req.URL.Path

		if strings.HasPrefix(path, "/api") || strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/auth") {
			http.NotFound(w, req)
			return
		}

		filePath := filepath.Join(staticPath, path)
		if _, err := os.Stat(filePath); err == nil {
			http.ServeFile(w, req, filePath)
			return
		}

		http.ServeFile(w, req, filepath.Join(staticPath, "index.html"))
	})
}
