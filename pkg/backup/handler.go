package backup

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Marczelloo/atlas-hub/internal/audit"
	"github.com/Marczelloo/atlas-hub/internal/auth"
	"github.com/Marczelloo/atlas-hub/internal/httpserver"
)

// Handler provides admin HTTP handlers for backups.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	service *Service
}

// NewHandler creates a backup Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, service *Service) *Handler {
	return &Handler{logger: logger, audit: auditW, service: service}
}

// Routes returns a chi.Router mounted under /admin/backups.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Post("/retention/run", h.handleRetention)
	r.Post("/expired/cleanup", h.handleExpiredCleanup)
	r.Get("/{backupID}", h.handleGet)
	r.Get("/{backupID}/download", h.handleDownload)
	r.Post("/{backupID}/restore", h.handleRestore)
	r.Delete("/{backupID}", h.handleDelete)
	return r
}

type createRequest struct {
	BackupType    string     `json:"backupType" validate:"required,oneof=platform project table"`
	ProjectID     *uuid.UUID `json:"projectId,omitempty"`
	TableName     *string    `json:"tableName,omitempty"`
	Format        string     `json:"format,omitempty" validate:"omitempty,oneof=sql csv json"`
	RetentionDays *int       `json:"retentionDays,omitempty" validate:"omitempty,gte=1,lte=365"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var userID *uuid.UUID
	if id := auth.FromContext(r.Context()); id != nil {
		userID = &id.UserID
	}

	row, err := h.service.Create(r.Context(), CreateInput{
		BackupType:    req.BackupType,
		ProjectID:     req.ProjectID,
		TableName:     req.TableName,
		Format:        req.Format,
		RetentionDays: req.RetentionDays,
	}, userID)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	h.audit.Log("backup.create", req.ProjectID, userID, map[string]string{"type": req.BackupType})

	// The run is asynchronous; the caller polls the row for completion.
	httpserver.Respond(w, http.StatusAccepted, row)
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

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	backups, err := h.service.List(r.Context(), projectID, limit, offset)
	if err != nil {
		h.logger.Error("listing backups", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list backups")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"backups": backups,
		"count":   len(backups),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	backupID, err := uuid.Parse(chi.URLParam(r, "backupID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid backup ID")
		return
	}

	b, err := h.service.Get(r.Context(), backupID)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, b)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	backupID, err := uuid.Parse(chi.URLParam(r, "backupID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid backup ID")
		return
	}

	grant, err := h.service.DownloadURL(r.Context(), backupID)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, grant)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	backupID, err := uuid.Parse(chi.URLParam(r, "backupID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid backup ID")
		return
	}

	outcome, err := h.service.Restore(r.Context(), backupID)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("backup.restore", nil, &id.UserID, map[string]string{"backup_id": backupID.String()})
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"status":   "restored",
		"warnings": outcome.Warnings,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	backupID, err := uuid.Parse(chi.URLParam(r, "backupID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid backup ID")
		return
	}

	if err := h.service.Delete(r.Context(), backupID); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleRetention(w http.ResponseWriter, r *http.Request) {
	var projectID *uuid.UUID
	if raw := r.URL.Query().Get("projectId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid projectId")
			return
		}
		projectID = &id
	}

	deleted, err := h.service.ApplyRetention(r.Context(), projectID)
	if err != nil {
		h.logger.Error("running retention", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "retention sweep failed")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *Handler) handleExpiredCleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.CleanupExpired(r.Context())
	if err != nil {
		h.logger.Error("cleaning expired backups", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "expired cleanup failed")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]int{"deleted": deleted})
}
