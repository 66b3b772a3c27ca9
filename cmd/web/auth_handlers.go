package main

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"finitefield.org/route-planner/internal/accounts"
	handlersPkg "finitefield.org/route-planner/internal/handlers"
	mw "finitefield.org/route-planner/internal/middleware"
	"finitefield.org/route-planner/internal/platform/requestctx"
)

// LoginPageHandler renders the login form.
func (a *app) LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	vm := a.pageData(r, "auth.login.title", "auth.login.description", false)
	vm.Auth = &handlersPkg.AuthView{Action: "/login"}
	a.renderPage(w, r, http.StatusOK, "login", vm)
}

// LoginHandler checks the credentials and signs the session in.
func (a *app) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := mw.GetSession(r)
	user, err := a.accounts.Authenticate(ctx, r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, accounts.ErrInvalidCredentials) {
			a.serverError(w, r, err)
			return
		}
		sess.AddFlash("error", "auth.invalid")
		mw.Redirect(w, r, "/login")
		return
	}
	sess.SignIn(user.ID, user.Username)
	a.events(ctx, "auth.login", map[string]any{"user_id": strconv.FormatInt(user.ID, 10)})
	mw.Redirect(w, r, "/")
}

// RegisterPageHandler renders the registration form.
func (a *app) RegisterPageHandler(w http.ResponseWriter, r *http.Request) {
	vm := a.pageData(r, "auth.register.title", "auth.register.description", false)
	vm.Auth = &handlersPkg.AuthView{Action: "/register"}
	a.renderPage(w, r, http.StatusOK, "register", vm)
}

// RegisterHandler creates an account and sends the user to the login form.
func (a *app) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := mw.GetSession(r)
	user, err := a.accounts.Register(ctx, r.PostFormValue("username"), r.PostFormValue("password"))
	switch {
	case err == nil:
		a.events(ctx, "auth.register", map[string]any{"user_id": strconv.FormatInt(user.ID, 10)})
		sess.AddFlash("success", "auth.registered")
		mw.Redirect(w, r, "/login")
		return
	case errors.Is(err, accounts.ErrUsernameTaken):
		sess.AddFlash("error", "auth.taken")
	case errors.Is(err, accounts.ErrMissingFields):
		sess.AddFlash("error", "auth.missing")
	case errors.Is(err, accounts.ErrUsernameTooLong):
		sess.AddFlash("error", "auth.too_long")
	case errors.Is(err, accounts.ErrPasswordTooLong):
		sess.AddFlash("error", "auth.password_too_long")
	default:
		a.serverError(w, r, err)
		return
	}
	mw.Redirect(w, r, "/register")
}

// LogoutHandler clears the draft list and signs the session out.
func (a *app) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := mw.GetSession(r)
	if user := mw.UserFromContext(ctx); user != nil {
		if err := a.store.SaveDraft(ctx, user.ID, nil); err != nil {
			requestctx.Logger(ctx).Warn("clear draft on logout failed", zap.Error(err))
		}
		a.events(ctx, "auth.logout", map[string]any{"user_id": strconv.FormatInt(user.ID, 10)})
	}
	sess.SignOut()
	sess.AddFlash("success", "auth.logged_out")
	mw.Redirect(w, r, "/login")
}
