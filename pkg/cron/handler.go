package cron

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Marczelloo/atlas-hub/internal/audit"
	"github.com/Marczelloo/atlas-hub/internal/auth"
	"github.com/Marczelloo/atlas-hub/internal/crypto"
	"github.com/Marczelloo/atlas-hub/internal/httpserver"
	"github.com/Marczelloo/atlas-hub/internal/store"
)

// Handler provides admin HTTP handlers for cron jobs.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
	store  *store.Store
	cipher *crypto.Cipher
}

// NewHandler creates a cron Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, st *store.Store, cipher *crypto.Cipher) *Handler {
	return &Handler{logger: logger, audit: auditW, store: st, cipher: cipher}
}

// Routes returns a chi.Router mounted under /admin/cron-jobs.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{jobID}", h.handleGet)
	r.Put("/{jobID}", h.handleUpdate)
	r.Delete("/{jobID}", h.handleDelete)
	r.Get("/{jobID}/runs", h.handleRuns)
	return r
}

type jobRequest struct {
	ProjectID      *uuid.UUID        `json:"projectId,omitempty"`
	Name           string            `json:"name" validate:"required,min=1,max=100"`
	JobType        string            `json:"jobType" validate:"required,oneof=http platform"`
	CronExpr       string            `json:"cronExpr" validate:"required"`
	Timezone       string            `json:"timezone"`
	URL            *string           `json:"url,omitempty" validate:"omitempty,url"`
	Method         *string           `json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           *string           `json:"body,omitempty"`
	Action         *string           `json:"action,omitempty"`
	Config         json.RawMessage   `json:"config,omitempty"`
	Enabled        *bool             `json:"enabled,omitempty"`
	TimeoutMs      int               `json:"timeoutMs" validate:"omitempty,gte=100,lte=600000"`
	Retries        int               `json:"retries" validate:"omitempty,gte=0,lte=10"`
	RetryBackoffMs int               `json:"retryBackoffMs" validate:"omitempty,gte=100,lte=600000"`
}

// toRow validates type-specific fields, seals secrets, and builds the store
// row. Returns a client-facing error message on invalid input.
func (h *Handler) toRow(req jobRequest) (store.CronJob, string) {
	job := store.CronJob{
		ProjectID:      req.ProjectID,
		Name:           req.Name,
		JobType:        req.JobType,
		CronExpr:       req.CronExpr,
		Timezone:       req.Timezone,
		URL:            req.URL,
		Method:         req.Method,
		Action:         req.Action,
		Config:         req.Config,
		Enabled:        true,
		TimeoutMs:      req.TimeoutMs,
		Retries:        req.Retries,
		RetryBackoffMs: req.RetryBackoffMs,
	}
	if job.Timezone == "" {
		job.Timezone = "UTC"
	}
	if req.Enabled != nil {
		job.Enabled = *req.Enabled
	}
	if job.TimeoutMs == 0 {
		job.TimeoutMs = 30000
	}
	if job.RetryBackoffMs == 0 {
		job.RetryBackoffMs = 5000
	}

	if _, _, err := parseSchedule(job.CronExpr, job.Timezone); err != nil {
		return store.CronJob{}, "invalid cron expression or timezone"
	}

	switch req.JobType {
	case store.CronJobTypeHTTP:
		if req.URL == nil || req.Method == nil {
			return store.CronJob{}, "http jobs require url and method"
		}
		if len(req.Headers) > 0 {
			raw, _ := json.Marshal(req.Headers)
			sealed, err := Seal(h.cipher, raw)
			if err != nil {
				return store.CronJob{}, "failed to encrypt headers"
			}
			job.EncryptedHeaders = &sealed
		}
		if req.Body != nil && *req.Body != "" {
			sealed, err := Seal(h.cipher, []byte(*req.Body))
			if err != nil {
				return store.CronJob{}, "failed to encrypt body"
			}
			job.EncryptedBody = &sealed
		}
	case store.CronJobTypePlatform:
		if req.Action == nil || *req.Action == "" {
			return store.CronJob{}, "platform jobs require an action"
		}
	}

	return job, ""
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	job, msg := h.toRow(req)
	if msg != "" {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", msg)
		return
	}

	created, err := h.store.CreateCronJob(r.Context(), job)
	if err != nil {
		h.logger.Error("creating cron job", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create cron job")
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("cron_job.create", req.ProjectID, &id.UserID, map[string]string{"name": req.Name})
	}

	httpserver.Respond(w, http.StatusCreated, created)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListCronJobs(r.Context())
	if err != nil {
		h.logger.Error("listing cron jobs", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list cron jobs")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid job ID")
		return
	}

	job, err := h.store.GetCronJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "NOT_FOUND", "cron job not found")
			return
		}
		h.logger.Error("getting cron job", "error", err, "id", jobID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load cron job")
		return
	}

	httpserver.Respond(w, http.StatusOK, job)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid job ID")
		return
	}

	var req jobRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	job, msg := h.toRow(req)
	if msg != "" {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", msg)
		return
	}
	job.ID = jobID

	updated, err := h.store.UpdateCronJob(r.Context(), job)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "NOT_FOUND", "cron job not found")
			return
		}
		h.logger.Error("updating cron job", "error", err, "id", jobID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update cron job")
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("cron_job.update", req.ProjectID, &id.UserID, map[string]string{"job_id": jobID.String()})
	}

	httpserver.Respond(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid job ID")
		return
	}

	if err := h.store.DeleteCronJob(r.Context(), jobID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "NOT_FOUND", "cron job not found")
			return
		}
		h.logger.Error("deleting cron job", "error", err, "id", jobID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete cron job")
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("cron_job.delete", nil, &id.UserID, map[string]string{"job_id": jobID.String()})
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid job ID")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= 500 {
			limit = n
		}
	}

	runs, err := h.store.ListCronJobRuns(r.Context(), jobID, limit)
	if err != nil {
		h.logger.Error("listing cron job runs", "error", err, "job_id", jobID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list runs")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}
