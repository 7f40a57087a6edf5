package apikey

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
)

// Handler provides admin HTTP handlers for project API keys.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	service *Service
}

// NewHandler creates an API key Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, service *Service) *Handler {
	return &Handler{logger: logger, audit: auditW, service: service}
}

// Routes returns a chi.Router mounted under /admin/projects/{projectID}/keys.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/rotate", h.handleRotate)
	r.Post("/{keyID}/revoke", h.handleRevoke)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid project ID")
		return
	}

	keys, err := h.service.List(r.Context(), projectID)
	if err != nil {
		h.logger.Error("listing api keys", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list api keys")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

type rotateRequest struct {
	KeyType string `json:"keyType" validate:"required,oneof=publishable secret"`
}

func (h *Handler) handleRotate(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid project ID")
		return
	}

	var req rotateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Rotate(r.Context(), projectID, req.KeyType)
	if err != nil {
		h.logger.Error("rotating api key", "error", err, "project_id", projectID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to rotate api key")
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("api_key.rotate", &projectID, &id.UserID, map[string]string{"key_type": req.KeyType})
	}

	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid project ID")
		return
	}
	keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid key ID")
		return
	}

	if err := h.service.Revoke(r.Context(), keyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "NOT_FOUND", "api key not found or already revoked")
			return
		}
		h.logger.Error("revoking api key", "error", err, "id", keyID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to revoke api key")
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("api_key.revoke", &projectID, &id.UserID, map[string]string{"key_id": keyID.String()})
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
