package storage

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Marczelloo/atlas-hub/internal/httpserver"
	"github.com/Marczelloo/atlas-hub/internal/store"
)

// AdminHandler provides the storage dashboard for the admin console.
type AdminHandler struct {
	logger *slog.Logger
	broker *Broker
	store  *store.Store
}

// NewAdminHandler creates a storage AdminHandler.
func NewAdminHandler(logger *slog.Logger, broker *Broker, st *store.Store) *AdminHandler {
	return &AdminHandler{logger: logger, broker: broker, store: st}
}

// Routes returns a chi.Router mounted under /admin/projects/{projectID}/storage.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleDashboard)
	return r
}

func (h *AdminHandler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid project ID")
		return
	}

	buckets, err := h.store.ListBuckets(r.Context(), projectID)
	if err != nil {
		h.logger.Error("listing buckets", "error", err, "project_id", projectID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list buckets")
		return
	}

	files, err := h.store.ListFileMetadata(r.Context(), projectID, "", 1000)
	if err != nil {
		h.logger.Error("listing file metadata", "error", err, "project_id", projectID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list files")
		return
	}

	totalBytes, err := h.store.SumFileSizes(r.Context(), projectID)
	if err != nil {
		h.logger.Error("summing file sizes", "error", err, "project_id", projectID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to compute storage usage")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"buckets":    buckets,
		"files":      files,
		"totalBytes": totalBytes,
	})
}
