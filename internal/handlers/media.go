package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wellspring/apiserver/internal/auth"
	"github.com/wellspring/apiserver/internal/services"
	"go.uber.org/zap"
)

const (
	formFieldFile        = "file"
	maxMultipartMemory   = 8 << 20
	multipartOverhead    = 1 << 20
	msgMediaNotFound     = "Media not found"
	msgMediaDeleted      = "Media deleted successfully"
	msgStorageDisabled   = "Media uploads are not configured"
	msgUploadTooLarge    = "Uploaded file too large"
	msgMissingUploadFile = "file is required"
)

// MediaHandler serves uploads of session images and scripts.
type MediaHandler struct {
	media   *services.MediaService
	gateway *auth.Gateway
	logger  *zap.Logger
}

func NewMediaHandler(media *services.MediaService, gateway *auth.Gateway, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{media: media, gateway: gateway, logger: logger}
}

// MediaRouter registers media routes on the given router.
func MediaRouter(r chi.Router, handler *MediaHandler) {
	r.Post("/", handler.Upload)
	r.Get("/*", handler.Download)
	r.Delete("/*", handler.Delete)
}

// Upload stores the multipart "file" field and returns where to fetch it.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user, r, ok := authenticate(w, r, h.gateway, h.logger)
	if !ok {
		return
	}
	if !h.media.Enabled() {
		writeError(w, http.StatusServiceUnavailable, msgStorageDisabled)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.media.MaxSize()+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgUploadTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgMissingUploadFile)
		return
	}
	defer file.Close()

	media, err := h.media.Upload(r.Context(), user.ID, header.Filename, file)
	if err != nil {
		h.writeMediaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, media)
}

// Download streams a stored object. Objects are public once uploaded, the
// same as the URLs stored on published sessions.
func (h *MediaHandler) Download(w http.ResponseWriter, r *http.Request) {
	reader, contentType, err := h.media.Open(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		h.writeMediaError(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("media download interrupted", zap.Error(err))
	}
}

// Delete removes an object the caller uploaded.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, r, ok := authenticate(w, r, h.gateway, h.logger)
	if !ok {
		return
	}

	if err := h.media.Delete(r.Context(), user.ID, chi.URLParam(r, "*")); err != nil {
		h.writeMediaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgMediaDeleted})
}

func (h *MediaHandler) writeMediaError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrStorageDisabled):
		writeError(w, http.StatusServiceUnavailable, msgStorageDisabled)
	case errors.Is(err, services.ErrMediaTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, msgUploadTooLarge)
	default:
		writeServiceError(w, r, h.logger, err, msgMediaNotFound)
	}
}
