package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/estore/internal/user"
)

type UserEnsurer interface {
	EnsureUser(ctx context.Context, identity user.Identity) (*user.User, error)
}

type Authenticator struct {
	verifier *TokenVerifier
	users    UserEnsurer
}

func NewAuthenticator(verifier *TokenVerifier, users UserEnsurer) *Authenticator {
	return &Authenticator{verifier: verifier, users: users}
}

// Middleware rejects requests without a valid bearer token. The caller's
// user record is created on first sight and the resulting Session is stored
// in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		identity, err := a.verifier.Verify(strings.TrimSpace(raw))
		if err != nil {
			log.Debug().Err(err).Msg("Rejected bearer token")
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		u, err := a.users.EnsureUser(r.Context(), identity)
		if err != nil {
			log.Error().Err(err).Str("user_id", identity.Subject).Msg("Failed to load user for session")
			writeError(w, http.StatusInternalServerError, "Failed to load user")
			return
		}

		session := Session{
			UserID:  u.ID,
			Email:   u.Email,
			Name:    u.DisplayName,
			IsAdmin: u.IsAdmin,
		}
		if session.Email == "" {
			session.Email = identity.Email
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

// RequireAdmin must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !session.IsAdmin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
