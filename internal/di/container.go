// Package di assembles the runtime collaborators shared by the web server and
// the command line tool.
package di

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"finitefield.org/route-planner/internal/accounts"
	"finitefield.org/route-planner/internal/geocode"
	"finitefield.org/route-planner/internal/mapview"
	"finitefield.org/route-planner/internal/optimize"
	"finitefield.org/route-planner/internal/platform/config"
	"finitefield.org/route-planner/internal/routing"
	"finitefield.org/route-planner/internal/store"
)

// Container wires storage, accounts and the optimize pipeline for runtime use.
type Container struct {
	Config    config.Config
	Store     *store.Store
	Accounts  *accounts.Service
	Optimizer *optimize.Service
}

// Option customises container construction. Tests use these to avoid the network.
type Option func(*options)

type options struct {
	geocoder   geocode.Geocoder
	httpClient *http.Client
	bcryptCost int
}

// WithGeocoder replaces the Nominatim client and its cache.
func WithGeocoder(g geocode.Geocoder) Option {
	return func(o *options) {
		o.geocoder = g
	}
}

// WithHTTPClient sets the client used for upstream geocoding and routing calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(o *options) {
		o.bcryptCost = cost
	}
}

// NewContainer opens the database and builds every service.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := collect(opts)

	db, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	accountOpts := []accounts.Option{accounts.WithLogger(logger.Named("accounts"))}
	if o.bcryptCost > 0 {
		accountOpts = append(accountOpts, accounts.WithCost(o.bcryptCost))
	}
	accountSvc, err := accounts.NewService(db, accountOpts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	optimizer, err := NewOptimizer(cfg, logger, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Container{
		Config:    cfg,
		Store:     db,
		Accounts:  accountSvc,
		Optimizer: optimizer,
	}, nil
}

// Close releases the database.
func (c *Container) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// NewOptimizer builds the optimize pipeline. A nil history disables persistence.
func NewOptimizer(cfg config.Config, logger *zap.Logger, history optimize.History, opts ...Option) (*optimize.Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := collect(opts)

	geocoder := o.geocoder
	if geocoder == nil {
		client, err := geocode.NewClient(geocode.Config{
			BaseURL:    cfg.Geocoder.BaseURL,
			UserAgent:  cfg.Geocoder.UserAgent,
			Email:      cfg.Geocoder.Email,
			Timeout:    cfg.Geocoder.Timeout,
			Attempts:   cfg.Geocoder.Attempts,
			RetryDelay: cfg.Geocoder.RetryDelay,
			Interval:   cfg.Geocoder.Interval,
			HTTPClient: o.httpClient,
			Logger:     logger.Named("geocode"),
		})
		if err != nil {
			return nil, fmt.Errorf("di: geocoder: %w", err)
		}
		geocoder = geocode.NewCache(client, cfg.Geocoder.CacheTTL)
	}

	router := routing.NewClient(routing.Config{
		BaseURL:    cfg.Routing.BaseURL,
		APIKey:     cfg.Routing.APIKey,
		Profile:    cfg.Routing.Profile,
		Timeout:    cfg.Routing.Timeout,
		HTTPClient: o.httpClient,
	})
	if router.Offline() {
		logger.Warn("openrouteservice api key not set; using offline distance estimates")
	}

	maps := mapview.NewRenderer(mapview.Config{
		TileURL:     cfg.Map.TileURL,
		Attribution: cfg.Map.Attribution,
		Zoom:        cfg.Map.Zoom,
	})

	return optimize.NewService(optimize.Deps{
		Geocoder:     geocoder,
		Router:       router,
		Maps:         maps,
		History:      history,
		MaxAddresses: cfg.Planner.MaxAddresses,
		Logger:       logger.Named("optimize"),
	})
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
