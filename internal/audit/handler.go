package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Marczelloo/atlas-hub/internal/httpserver"
	"github.com/Marczelloo/atlas-hub/internal/store"
)

// Handler provides the admin audit-log listing endpoint.
type Handler struct {
	logger *slog.Logger
	store  *store.Store
}

// NewHandler creates an audit Handler.
func NewHandler(logger *slog.Logger, st *store.Store) *Handler {
	return &Handler{logger: logger, store: st}
}

// Routes returns a chi.Router mounted under /admin/audit-log.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var projectID *uuid.UUID
	if raw := r.URL.Query().Get("projectId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid projectId")
			return
		}
		projectID = &id
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= 1000 {
			limit = n
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	entries, err := h.store.ListAuditEntries(r.Context(), projectID, limit, offset)
	if err != nil {
		h.logger.Error("listing audit entries", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list audit log")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
