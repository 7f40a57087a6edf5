// Package user manages platform administrator accounts: login sessions,
// registration through invite keys, and user administration.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Marczelloo/atlas-hub/internal/apperr"
	"github.com/Marczelloo/atlas-hub/internal/auth"
	"github.com/Marczelloo/atlas-hub/internal/crypto"
	"github.com/Marczelloo/atlas-hub/internal/store"
)

// inviteTTL is how long an issued invite key stays redeemable.
const inviteTTL = 7 * 24 * time.Hour

// Service encapsulates user account business logic.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// NewService creates a user Service.
func NewService(st *store.Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger}
}

// Login verifies credentials and returns the account.
func (s *Service) Login(ctx context.Context, email, password string) (store.User, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.User{}, apperr.New(apperr.KindUnauthorized, "invalid email or password")
		}
		return store.User{}, fmt.Errorf("loading user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return store.User{}, apperr.New(apperr.KindUnauthorized, "invalid email or password")
	}
	return u, nil
}

// Register creates an account from an invite token. The very first account
// may register without a token to bootstrap the platform.
func (s *Service) Register(ctx context.Context, email, password, displayName, inviteToken string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(password) < 8 {
		return store.User{}, apperr.New(apperr.KindValidation, "password must be at least 8 characters")
	}

	role := auth.RoleAdmin
	var invite *store.Invite

	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return store.User{}, fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		if inviteToken == "" {
			return store.User{}, apperr.New(apperr.KindForbidden, "an invite key is required")
		}
		inv, err := s.store.GetInviteByTokenHash(ctx, crypto.HashKey(inviteToken))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.User{}, apperr.New(apperr.KindForbidden, "invalid or expired invite key")
			}
			return store.User{}, fmt.Errorf("loading invite: %w", err)
		}
		invite = &inv
		role = inv.Role
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hashing password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, email, string(hash), displayName, role)
	if err != nil {
		if strings.Contains(err.Error(), "23505") {
			return store.User{}, apperr.New(apperr.KindConflict, "an account with this email already exists")
		}
		return store.User{}, fmt.Errorf("creating user: %w", err)
	}

	if invite != nil {
		if err := s.store.MarkInviteUsed(ctx, invite.ID, u.ID); err != nil {
			s.logger.Error("marking invite used", "error", err, "invite_id", invite.ID)
		}
	}

	s.logger.Info("user registered", "user_id", u.ID, "email", email)
	return u, nil
}

// CreateInvite issues a new invite key and returns the plaintext token once.
func (s *Service) CreateInvite(ctx context.Context, role string, createdBy uuid.UUID) (store.Invite, string, error) {
	if !auth.IsValidRole(role) {
		return store.Invite{}, "", apperr.Newf(apperr.KindValidation, "unknown role %q", role)
	}

	token := crypto.GenerateInviteToken()
	inv, err := s.store.CreateInvite(ctx, crypto.HashKey(token), role, &createdBy, time.Now().Add(inviteTTL))
	if err != nil {
		return store.Invite{}, "", fmt.Errorf("creating invite: %w", err)
	}
	return inv, token, nil
}
