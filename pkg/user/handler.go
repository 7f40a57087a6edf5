package user

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

// Handler provides authentication and user administration endpoints.
type Handler struct {
	logger   *slog.Logger
	audit    *audit.Writer
	service  *Service
	sessions *auth.SessionManager
	store    *store.Store
}

// NewHandler creates a user Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, service *Service, sessions *auth.SessionManager, st *store.Store) *Handler {
	return &Handler{logger: logger, audit: auditW, service: service, sessions: sessions, store: st}
}

// AuthRoutes returns the public (pre-session) routes: login, register and
// logout.
func (h *Handler) AuthRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.handleLogin)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
	return r
}

// AdminRoutes returns the session-authenticated user administration routes.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/me", h.handleMe)
	r.Get("/", h.handleList)
	r.Delete("/{userID}", h.handleDelete)
	r.Post("/invites", h.handleCreateInvite)
	r.Get("/invites", h.handleListInvites)
	return r
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	if err := h.sessions.IssueCookie(w, auth.SessionClaims{
		Email:  u.Email,
		Role:   u.Role,
		UserID: u.ID.String(),
	}); err != nil {
		h.logger.Error("issuing session cookie", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to start session")
		return
	}

	h.audit.Log("user.login", nil, &u.ID, nil)
	httpserver.Respond(w, http.StatusOK, u)
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"displayName" validate:"omitempty,max=100"`
	InviteKey   string `json:"inviteKey"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.service.Register(r.Context(), req.Email, req.Password, req.DisplayName, req.InviteKey)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	h.audit.Log("user.register", nil, &u.ID, nil)
	httpserver.Respond(w, http.StatusCreated, u)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	u, err := h.store.GetUser(r.Context(), id.UserID)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, u)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("listing users", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list users")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid user ID")
		return
	}

	if id := auth.FromContext(r.Context()); id != nil && id.UserID == userID {
		httpserver.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "cannot delete your own account")
		return
	}

	if err := h.store.DeleteUser(r.Context(), userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "NOT_FOUND", "user not found")
			return
		}
		h.logger.Error("deleting user", "error", err, "id", userID)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete user")
		return
	}

	if id := auth.FromContext(r.Context()); id != nil {
		h.audit.Log("user.delete", nil, &id.UserID, map[string]string{"deleted_user_id": userID.String()})
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

type createInviteRequest struct {
	Role string `json:"role" validate:"required,oneof=admin readonly"`
}

func (h *Handler) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var req createInviteRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	inv, token, err := h.service.CreateInvite(r.Context(), req.Role, id.UserID)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	h.audit.Log("invite.create", nil, &id.UserID, map[string]string{"role": req.Role})

	// The plaintext key is shown exactly once.
	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"invite":    inv,
		"inviteKey": token,
	})
}

func (h *Handler) handleListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.store.ListInvites(r.Context())
	if err != nil {
		h.logger.Error("listing invites", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list invites")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"invites": invites,
		"count":   len(invites),
	})
}
