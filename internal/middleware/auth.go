package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"finitefield.org/route-planner/internal/platform/observability"
	"finitefield.org/route-planner/internal/platform/requestctx"
	"finitefield.org/route-planner/internal/store"
)

// UserLookup resolves the account stored in the session.
type UserLookup func(ctx context.Context, id int64) (store.User, error)

// Auth confirms the session's user still exists and hydrates the request
// context. Sessions pointing at deleted accounts are signed out.
func Auth(lookup UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := GetSession(r)
			if s.UserID == 0 || lookup == nil {
				next.ServeHTTP(w, r)
				return
			}
			u, err := lookup(r.Context(), s.UserID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					s.SignOut()
					ctx := context.WithValue(r.Context(), ctxKeyUser, (*User)(nil))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				requestctx.Logger(r.Context()).Error("session user lookup failed", zap.Error(err))
				writeError(w, r, http.StatusInternalServerError, "internal", "Internal server error.")
				return
			}
			userID := strconv.FormatInt(u.ID, 10)
			observability.NoteUser(r, userID)
			ctx := WithUser(r.Context(), &User{ID: u.ID, Username: u.Username})
			ctx = requestctx.WithUserID(ctx, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser redirects anonymous browsers to /login and answers JSON
// clients with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		if IsHTMX(r.Context()) {
			w.Header().Set("HX-Redirect", "/login")
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", "Login required.")
			return
		}
		if WantsJSON(r) {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", "Login required.")
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
}

// RedirectIfAuthenticated sends signed-in users away from login and register.
func RedirectIfAuthenticated(target string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserFromContext(r.Context()) != nil {
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
