package storage

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Marczelloo/atlas-hub/internal/auth"
	"github.com/Marczelloo/atlas-hub/internal/httpserver"
)

// Handler provides the public storage API.
type Handler struct {
	logger *slog.Logger
	broker *Broker
}

// NewHandler creates a storage Handler.
func NewHandler(logger *slog.Logger, broker *Broker) *Handler {
	return &Handler{logger: logger, broker: broker}
}

// Routes returns a chi.Router mounted under /v1/storage.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/signed-upload", h.handleSignedUpload)
	r.Get("/signed-download", h.handleSignedDownload)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSecretKey)
		r.Get("/list", h.handleList)
		r.Delete("/object", h.handleDelete)
	})
	return r
}

type signedUploadRequest struct {
	Bucket      string `json:"bucket" validate:"required"`
	Path        string `json:"path" validate:"required"`
	ContentType string `json:"contentType"`
	MaxSize     int64  `json:"maxSize" validate:"omitempty,gte=1"`
}

func (h *Handler) handleSignedUpload(w http.ResponseWriter, r *http.Request) {
	pc := auth.ProjectFromContext(r.Context())

	var req signedUploadRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	grant, err := h.broker.PresignUpload(r.Context(), pc.ProjectID, req.Bucket, req.Path, req.ContentType, req.MaxSize)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, grant)
}

func (h *Handler) handleSignedDownload(w http.ResponseWriter, r *http.Request) {
	pc := auth.ProjectFromContext(r.Context())

	bucket := r.URL.Query().Get("bucket")
	objectKey := r.URL.Query().Get("objectKey")
	if bucket == "" || objectKey == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "bucket and objectKey are required")
		return
	}

	grant, err := h.broker.PresignDownload(r.Context(), pc.ProjectID, bucket, objectKey)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, grant)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	pc := auth.ProjectFromContext(r.Context())

	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "bucket is required")
		return
	}

	limit := 1000
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	objects, err := h.broker.List(r.Context(), pc.ProjectID, bucket, r.URL.Query().Get("prefix"), limit)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if objects == nil {
		objects = []Object{}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"objects": objects,
		"count":   len(objects),
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	pc := auth.ProjectFromContext(r.Context())

	bucket := r.URL.Query().Get("bucket")
	objectKey := r.URL.Query().Get("objectKey")
	if bucket == "" || objectKey == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "bucket and objectKey are required")
		return
	}

	if err := h.broker.Delete(r.Context(), pc.ProjectID, bucket, objectKey); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
