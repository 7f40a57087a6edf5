package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Marczelloo/atlas-hub/internal/audit"
	"github.com/Marczelloo/atlas-hub/internal/auth"
	"github.com/Marczelloo/atlas-hub/internal/httpserver"
)

// Handler provides the admin settings endpoints.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	manager *Manager
}

// NewHandler creates a settings Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, manager *Manager) *Handler {
	return &Handler{logger: logger, audit: auditW, manager: manager}
}

// Routes returns a chi.Router mounted under /admin/settings.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleGet)
	r.Put("/", h.handlePut)
	return r
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, h.manager.Get())
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	var req Runtime
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.manager.Update(r.Context(), req); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("settings.update", nil, &id.UserID, req)
	}

	httpserver.Respond(w, http.StatusOK, h.manager.Get())
}
