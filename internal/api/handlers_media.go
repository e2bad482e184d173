package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxUploadBytes caps media uploads at 25 MB before decode.
const maxUploadBytes = 25 << 20

// HandleUploadMedia accepts a multipart upload, stores the processed
// variants in S3 and returns the asset record.
func (h *Handlers) HandleUploadMedia(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		respondError(w, http.StatusServiceUnavailable, "media storage not configured")
		return
	}
	tenant := TenantFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	asset, err := h.media.Upload(r.Context(), tenant.ID, header.Filename, file)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, asset)
}

// HandleListMedia returns the tenant's media assets, newest first.
func (h *Handlers) HandleListMedia(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		respondError(w, http.StatusServiceUnavailable, "media storage not configured")
		return
	}
	tenant := TenantFromContext(r.Context())

	assets, err := h.media.List(r.Context(), tenant.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": assets})
}

// HandleGetMedia returns one asset's metadata, tenant-scoped.
func (h *Handlers) HandleGetMedia(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		respondError(w, http.StatusServiceUnavailable, "media storage not configured")
		return
	}
	tenant := TenantFromContext(r.Context())

	asset, err := h.media.Get(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if asset.TenantID != tenant.ID {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	respondJSON(w, http.StatusOK, asset)
}

// HandleDeleteMedia removes an asset and its stored objects. Campaigns
// still referencing the asset will fail their media resolution at send
// time and skip the attachment.
func (h *Handlers) HandleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		respondError(w, http.StatusServiceUnavailable, "media storage not configured")
		return
	}
	tenant := TenantFromContext(r.Context())

	asset, err := h.media.Get(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if asset.TenantID != tenant.ID {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	if err := h.media.Delete(r.Context(), asset.ID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
