package sqlexec

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Marczelloo/atlas-hub/internal/audit"
	"github.com/Marczelloo/atlas-hub/internal/auth"
	"github.com/Marczelloo/atlas-hub/internal/httpserver"
)

// SchemaInvalidator drops a project's cached CRUD schema after DDL.
type SchemaInvalidator interface {
	Invalidate(projectID uuid.UUID)
}

// Handler provides the admin SQL endpoint.
type Handler struct {
	logger   *slog.Logger
	audit    *audit.Writer
	executor *Executor
	schemas  SchemaInvalidator
}

// NewHandler creates a SQL executor Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, executor *Executor, schemas SchemaInvalidator) *Handler {
	return &Handler{logger: logger, audit: auditW, executor: executor, schemas: schemas}
}

// Routes returns a chi.Router mounted under /admin/projects/{projectID}/sql.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleExecute)
	return r
}

type executeRequest struct {
	SQL string `json:"sql" validate:"required"`
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid project ID")
		return
	}

	var req executeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.executor.Execute(r.Context(), projectID, req.SQL)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	// DDL and writes change what the CRUD schema cache may serve.
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(req.SQL)), "SELECT") {
		h.schemas.Invalidate(projectID)
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("sql.execute", &projectID, &id.UserID, map[string]any{
			"row_count":   result.RowCount,
			"duration_ms": result.ExecutionTimeMs,
		})
	}

	httpserver.Respond(w, http.StatusOK, result)
}
