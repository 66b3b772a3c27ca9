package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"finitefield.org/route-planner/internal/accounts"
	"finitefield.org/route-planner/internal/cms"
	handlersPkg "finitefield.org/route-planner/internal/handlers"
	"finitefield.org/route-planner/internal/i18n"
	mw "finitefield.org/route-planner/internal/middleware"
	"finitefield.org/route-planner/internal/nav"
	"finitefield.org/route-planner/internal/optimize"
	"finitefield.org/route-planner/internal/planner"
	"finitefield.org/route-planner/internal/platform/config"
	"finitefield.org/route-planner/internal/platform/httpx"
	"finitefield.org/route-planner/internal/platform/observability"
	"finitefield.org/route-planner/internal/platform/requestctx"
	"finitefield.org/route-planner/internal/presets"
	"finitefield.org/route-planner/internal/seo"
	"finitefield.org/route-planner/internal/store"
)

// app holds everything the handlers share.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *store.Store
	accounts  *accounts.Service
	optimizer *optimize.Service
	planner   *planner.Controller
	presets   []presets.Preset
	i18n      *i18n.Bundle
	content   *cms.Client
	sessions  *mw.SessionStore
	limiter   *handlersPkg.RateLimiter
	templates *templateSet
	events    func(context.Context, string, map[string]any)
}

type appDeps struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     *store.Store
	Accounts  *accounts.Service
	Optimizer *optimize.Service
	Presets   []presets.Preset
	I18n      *i18n.Bundle
	Content   *cms.Client
	Sessions  *mw.SessionStore
	Clock     func() time.Time
}

func newApp(deps appDeps) (*app, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &app{
		cfg:       deps.Config,
		logger:    logger,
		store:     deps.Store,
		accounts:  deps.Accounts,
		optimizer: deps.Optimizer,
		planner:   planner.NewController(deps.Optimizer.MaxAddresses()),
		presets:   deps.Presets,
		i18n:      deps.I18n,
		content:   deps.Content,
		sessions:  deps.Sessions,
		limiter:   handlersPkg.NewRateLimiter(deps.Config.RateLimits.OptimizePerMinute, time.Minute, deps.Clock),
		events:    observability.EventLogger(logger.Named("audit")),
	}
	ts, err := newTemplateSet(deps.Config.Server.TemplatesDir, deps.Config.Server.DevMode, a.funcMap())
	if err != nil {
		return nil, err
	}
	a.templates = ts
	return a, nil
}

func (a *app) t(lang, key string) string {
	return a.i18n.T(lang, key)
}

// pageData fills the layout fields every page needs. Flashes are consumed.
func (a *app) pageData(r *http.Request, titleKey, descKey string, private bool) handlersPkg.PageData {
	lang := mw.Lang(r)
	user := mw.UserFromContext(r.Context())
	sess := mw.GetSession(r)

	vm := handlersPkg.PageData{
		Title:     a.t(lang, titleKey),
		Lang:      lang,
		Languages: a.i18n.Supported(),
		Path:      r.URL.Path,
		Nav:       nav.Build(r.URL.Path, user != nil),
		CSRFToken: mw.CSRFToken(r),
	}
	if user != nil {
		vm.User = &handlersPkg.UserView{ID: user.ID, Username: user.Username}
	}
	for _, f := range sess.PopFlashes() {
		vm.Flashes = append(vm.Flashes, handlersPkg.FlashView{Kind: f.Kind, Message: a.t(lang, f.Key)})
	}
	desc := ""
	if descKey != "" {
		desc = a.t(lang, descKey)
	}
	vm.SEO = seo.Page(a.t(lang, "brand.name"), vm.Title, desc, absoluteURL(r), private)
	return vm
}

// serverError logs err and answers with a generic 500.
func (a *app) serverError(w http.ResponseWriter, r *http.Request, err error) {
	requestctx.Logger(r.Context()).Error("request failed", zap.Error(err))
	if mw.WantsJSON(r) {
		httpx.WriteError(r.Context(), w, httpx.NewError("internal", "Internal server error.", http.StatusInternalServerError))
		return
	}
	http.Error(w, "Internal server error.", http.StatusInternalServerError)
}

func (a *app) notFound(w http.ResponseWriter, r *http.Request) {
	if mw.WantsJSON(r) && !mw.IsHTMX(r.Context()) {
		httpx.WriteError(r.Context(), w, httpx.NewError("not_found", "Not found.", http.StatusNotFound))
		return
	}
	vm := a.pageData(r, "error.not_found.title", "", true)
	a.renderPage(w, r, http.StatusNotFound, "error", vm)
}

// rateKey buckets optimize calls per signed-in account.
func rateKey(user *mw.User) string {
	return "user:" + strconv.FormatInt(user.ID, 10)
}

func absoluteURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.Path
}
