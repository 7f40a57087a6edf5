package crud

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Marczelloo/atlas-hub/internal/auth"
	"github.com/Marczelloo/atlas-hub/internal/httpserver"
)

// Handler provides the public database API. All routes require a resolved
// project context; mutations require a secret key.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a CRUD Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// Routes returns a chi.Router mounted under /v1/db.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/tables", h.handleTables)
	r.Get("/{table}", h.handleSelect)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSecretKey)
		r.Post("/{table}", h.handleInsert)
		r.Patch("/{table}", h.handleUpdate)
		r.Delete("/{table}", h.handleDelete)
	})
	return r
}

// AdminRoutes returns the table-introspection routes mounted under
// /admin/projects/{projectID}/tables for the admin console.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleAdminTables)
	return r
}

func (h *Handler) handleAdminTables(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid project ID")
		return
	}

	tables, err := h.service.Tables(r.Context(), projectID)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if tables == nil {
		tables = []Table{}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"tables": tables,
		"count":  len(tables),
	})
}

func (h *Handler) handleTables(w http.ResponseWriter, r *http.Request) {
	pc := auth.ProjectFromContext(r.Context())

	tables, err := h.service.Tables(r.Context(), pc.ProjectID)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if tables == nil {
		tables = []Table{}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"tables": tables,
		"count":  len(tables),
	})
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	pc := auth.ProjectFromContext(r.Context())
	table := chi.URLParam(r, "table")

	result, err := h.service.Select(r.Context(), pc.ProjectID, table, r.URL.Query())
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if result.Rows == nil {
		result.Rows = []map[string]any{}
	}

	httpserver.Respond(w, http.StatusOK, result)
}

type insertRequest struct {
	Rows      []map[string]any `json:"rows" validate:"required,min=1,max=1000"`
	Returning bool             `json:"returning"`
}

func (h *Handler) handleInsert(w http.ResponseWriter, r *http.Request) {
	pc := auth.ProjectFromContext(r.Context())
	table := chi.URLParam(r, "table")

	var req insertRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Insert(r.Context(), pc.ProjectID, table, req.Rows, req.Returning)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, result)
}

type updateRequest struct {
	Values    map[string]any `json:"values" validate:"required,min=1"`
	Returning bool           `json:"returning"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	pc := auth.ProjectFromContext(r.Context())
	table := chi.URLParam(r, "table")

	var req updateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Update(r.Context(), pc.ProjectID, table, req.Values, r.URL.Query(), req.Returning)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	pc := auth.ProjectFromContext(r.Context())
	table := chi.URLParam(r, "table")

	deleted, err := h.service.Delete(r.Context(), pc.ProjectID, table, r.URL.Query())
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"deletedCount": deleted})
}
