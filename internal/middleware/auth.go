package middleware

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/shopgrab/internal/api"
	"github.com/dukerupert/shopgrab/internal/auth"
	"github.com/dukerupert/shopgrab/internal/store"
)

const SessionCookieName = "shopgrab_session"

// LoadSession attaches the caller's Identity when the session cookie is
// valid. Requests without one continue anonymously.
func LoadSession(sessions *store.SessionStore, accounts *store.AccountStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessions.GetByToken(cookie.Value)
			if err != nil {
				logger.Error("load session", "error", err)
			}
			if err != nil || sess == nil {
				next.ServeHTTP(w, r)
				return
			}

			account, err := accounts.GetByID(sess.AccountID)
			if err != nil || account == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{
				AccountID: account.ID,
				Email:     account.Email,
				SessionID: sess.ID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests with a 401 JSON error.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
