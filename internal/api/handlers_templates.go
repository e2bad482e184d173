package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/socialforge/outreach/internal/composer"
)

// HandleListTemplateSets returns the tenant's message template sets.
func (h *Handlers) HandleListTemplateSets(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	sets, err := h.templates.List(r.Context(), tenant.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": sets})
}

// HandleGetTemplateSet returns one template set by name.
func (h *Handlers) HandleGetTemplateSet(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	set, err := h.templates.Get(r.Context(), tenant.ID, chi.URLParam(r, "name"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if set == nil {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	respondJSON(w, http.StatusOK, set)
}

// HandlePutTemplateSet creates or replaces a template set. Variants must
// parse as templates; a set that fails to compile is rejected whole.
func (h *Handlers) HandlePutTemplateSet(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	name := chi.URLParam(r, "name")

	var in struct {
		ByTier map[string][]string `json:"by_tier"`
	}
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(in.ByTier) == 0 {
		respondError(w, http.StatusBadRequest, "by_tier is required")
		return
	}

	set := &composer.TemplateSet{Name: name, ByTier: in.ByTier}
	if err := composer.ValidateSet(set); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.templates.Upsert(r.Context(), tenant.ID, set); err != nil {
		respondServiceError(w, err)
		return
	}

	// Distinct expansions per tier; a low count means recipients will see
	// near-identical messages.
	variety := make(map[string]int, len(set.ByTier))
	for tier, variants := range set.ByTier {
		n := 0
		for _, v := range variants {
			n += composer.SpintaxVariants(v)
		}
		variety[tier] = n
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"set":     set,
		"variety": variety,
	})
}

// HandleDeleteTemplateSet removes a template set. Campaigns referencing it
// fall back to the built-in defaults.
func (h *Handlers) HandleDeleteTemplateSet(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())

	if err := h.templates.Delete(r.Context(), tenant.ID, chi.URLParam(r, "name")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
