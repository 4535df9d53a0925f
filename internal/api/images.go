package api

import (
	"bytes"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/hibi/internal/noteservice"
)

// ImageHandler serves stored attachments and link thumbnails.
type ImageHandler struct {
	svc *noteservice.Service
}

// NewImageHandler creates an image handler backed by the note service.
func NewImageHandler(svc *noteservice.Service) *ImageHandler {
	return &ImageHandler{svc: svc}
}

// ServeImage handles GET /api/images/{name}. Names are flat file names; any
// path component is rejected by the service.
//
//	@Summary		Fetch a stored image
//	@Tags			images
//	@Produce		octet-stream
//	@Param			name	path	string	true	"Image file name"
//	@Success		200
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/images/{name} [get]
func (h *ImageHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := h.svc.Image(r.Context(), name)
	if err != nil {
		writeError(w, "serve image", err)
		return
	}

	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}
