package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// KeyValidator resolves a raw API key into a project context. Implemented by
// the API key service.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*ProjectContext, error)
}

// AdminMiddleware authenticates admin requests via the session cookie and
// stores the resulting Identity in the request context.
func AdminMiddleware(sessionMgr *SessionManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := sessionMgr.ValidateCookie(r)
			if err != nil {
				respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				sessionMgr.ClearCookie(w)
				respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session")
				return
			}

			identity := &Identity{
				UserID: userID,
				Email:  claims.Email,
				Role:   claims.Role,
			}

			logger.Debug("authenticated via session cookie", "email", claims.Email)
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), identity)))
		})
	}
}

// RequireRole returns middleware that rejects identities without one of the
// listed roles.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}
			if _, ok := set[id.Role]; !ok {
				respondErr(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyMiddleware authenticates public requests via the x-api-key header
// and stores the resolved ProjectContext in the request context.
func APIKeyMiddleware(keys KeyValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get("x-api-key")
			if rawKey == "" {
				respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing API key")
				return
			}

			pc, err := keys.Validate(r.Context(), rawKey)
			if err != nil || pc == nil {
				if err != nil {
					logger.Warn("API key validation failed", "error", err)
				}
				respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(NewProjectContext(r.Context(), pc)))
		})
	}
}

// RequireSecretKey rejects requests whose project context was resolved from
// a publishable key. Secret-tier operations: storage listing, mutations.
func RequireSecretKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pc := ProjectFromContext(r.Context())
		if pc == nil {
			respondErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		if pc.KeyType != "secret" {
			respondErr(w, http.StatusForbidden, "FORBIDDEN", "secret key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondErr(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      code,
		"message":    message,
		"statusCode": status,
	})
}
