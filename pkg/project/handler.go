package project

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Marczelloo/atlas-hub/internal/audit"
	"github.com/Marczelloo/atlas-hub/internal/auth"
	"github.com/Marczelloo/atlas-hub/internal/httpserver"
	"github.com/Marczelloo/atlas-hub/internal/store"
)

// Handler provides admin HTTP handlers for project CRUD.
type Handler struct {
	logger      *slog.Logger
	audit       *audit.Writer
	store       *store.Store
	provisioner *Provisioner
}

// NewHandler creates a project Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, st *store.Store, prov *Provisioner) *Handler {
	return &Handler{logger: logger, audit: auditW, store: st, provisioner: prov}
}

// Subresources are the per-project routers mounted under /{projectID}:
// keys, tables, sql, storage.
type Subresources struct {
	Keys    chi.Router
	Tables  chi.Router
	SQL     chi.Router
	Storage chi.Router
}

// Routes returns a chi.Router with all project routes mounted, including
// the per-project subresource routers.
func (h *Handler) Routes(sub Subresources) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{projectID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Patch("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Mount("/keys", sub.Keys)
		r.Mount("/tables", sub.Tables)
		r.Mount("/sql", sub.SQL)
		r.Mount("/storage", sub.Storage)
	})
	return r
}

type createRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.provisioner.Create(r.Context(), CreateInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("project.create", &result.Project.ID, &id.UserID, map[string]string{"name": req.Name})
	}

	httpserver.Respond(w, http.StatusCreated, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		h.logger.Error("listing projects", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list projects")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"projects": projects,
		"count":    len(projects),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid project ID")
		return
	}

	proj, err := h.store.GetProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "NOT_FOUND", "project not found")
			return
		}
		h.logger.Error("getting project", "error", err, "id", projectID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load project")
		return
	}

	httpserver.Respond(w, http.StatusOK, proj)
}

type updateRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid project ID")
		return
	}

	var req updateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	proj, err := h.store.UpdateProject(r.Context(), projectID, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "NOT_FOUND", "project not found")
			return
		}
		h.logger.Error("updating project", "error", err, "id", projectID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update project")
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("project.update", &projectID, &id.UserID, nil)
	}

	httpserver.Respond(w, http.StatusOK, proj)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid project ID")
		return
	}

	if err := h.provisioner.Delete(r.Context(), projectID); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("project.delete", nil, &id.UserID, map[string]string{"project_id": projectID.String()})
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
