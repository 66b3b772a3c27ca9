package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/route-planner/internal/cms"
	"finitefield.org/route-planner/internal/di"
	"finitefield.org/route-planner/internal/i18n"
	mw "finitefield.org/route-planner/internal/middleware"
	"finitefield.org/route-planner/internal/platform/config"
	"finitefield.org/route-planner/internal/platform/observability"
	"finitefield.org/route-planner/internal/presets"
)

var supportedLanguages = []string{"en", "ja"}

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("web")

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn("database close error", zap.Error(err))
		}
	}()

	presetList, err := presets.Load(cfg.Planner.PresetsFile)
	if err != nil {
		logger.Fatal("failed to load presets", zap.Error(err))
	}

	bundle, err := i18n.Load(cfg.Server.LocalesDir, cfg.Server.FallbackLang, supportedLanguages)
	if err != nil {
		logger.Fatal("failed to load locales", zap.Error(err))
	}

	contentTTL := time.Duration(-1)
	if cfg.Server.DevMode {
		contentTTL = 0
	}
	content := cms.NewClient(cfg.Server.ContentDir, cfg.Server.FallbackLang, contentTTL)

	sessions, err := mw.NewSessionStore([]byte(cfg.Session.HashKey), []byte(cfg.Session.BlockKey), cfg.Server.Production(), logger.Named("session"))
	if errors.Is(err, mw.ErrEphemeralKey) {
		logger.Warn("ROUTE_SESSION_HASH_KEY not set; sessions will not survive a restart")
	} else if err != nil {
		logger.Fatal("failed to initialise sessions", zap.Error(err))
	}

	a, err := newApp(appDeps{
		Config:    cfg,
		Logger:    logger,
		Store:     container.Store,
		Accounts:  container.Accounts,
		Optimizer: container.Optimizer,
		Presets:   presetList,
		I18n:      bundle,
		Content:   content,
		Sessions:  sessions,
	})
	if err != nil {
		logger.Fatal("failed to parse templates", zap.Error(err))
	}

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("web listening", zap.Bool("dev_mode", cfg.Server.DevMode), zap.String("env", cfg.Server.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("shutdown signal received; draining requests")

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// routes builds the router. Health checks and static assets bypass the
// session stack.
func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	// If deployed behind a trusted reverse proxy/load balancer, RealIP will use
	// X-Forwarded-For to determine the client IP.
	r.Use(chimw.RealIP)
	r.Use(observability.TraceMiddleware)
	r.Use(observability.InjectLoggerMiddleware(a.logger))
	r.Use(observability.RequestLoggerMiddleware)
	r.Use(observability.RecoveryMiddleware(a.logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(a.requestTimeout()))

	r.Get("/healthz", a.HealthHandler)

	assets := http.StripPrefix("/assets", mw.Assets(filepath.Join(a.cfg.Server.PublicDir, "assets"), a.cfg.Server.DevMode))
	r.Handle("/assets/*", assets)

	r.Group(func(r chi.Router) {
		r.Use(mw.HTMX)
		r.Use(mw.Session(a.sessions))
		r.Use(mw.Locale(a.i18n))
		r.Use(mw.Auth(a.accounts.Lookup))
		r.Use(mw.CSRF)
		r.Use(mw.VaryLocale)

		r.Get("/help", a.HelpHandler)
		r.Post("/logout", a.LogoutHandler)

		r.Group(func(r chi.Router) {
			r.Use(mw.RedirectIfAuthenticated("/"))
			r.Get("/login", a.LoginPageHandler)
			r.Post("/login", a.LoginHandler)
			r.Get("/register", a.RegisterPageHandler)
			r.Post("/register", a.RegisterHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireUser)
			r.Get("/", a.PlannerHandler)
			r.Post("/planner/addresses", a.AddAddressHandler)
			r.Post("/planner/addresses/{index}/delete", a.RemoveAddressHandler)
			r.Post("/planner/clear", a.ClearAddressesHandler)
			r.Post("/planner/optimize", a.PlannerOptimizeHandler)
			r.Post("/optimize", a.OptimizeAPIHandler)
			r.Get("/plans/{planID}", a.PlanHandler)
			r.Post("/locations/{id}/delete", a.DeleteLocationHandler)
		})

		r.NotFound(a.notFound)
	})
	return r
}

// requestTimeout leaves a little headroom below the server write timeout.
func (a *app) requestTimeout() time.Duration {
	timeout := a.cfg.Server.WriteTimeout - 5*time.Second
	if timeout < 5*time.Second {
		timeout = 30 * time.Second
	}
	return timeout
}

// HealthHandler reports ok once the database answers.
func (a *app) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := a.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
