// Package geocode resolves free-text addresses to coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"finitefield.org/route-planner/internal/geo"
	"finitefield.org/route-planner/internal/platform/observability"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultAttempts   = 3
	defaultRetryDelay = time.Second
	maxErrorBody      = 256
)

var tracer = otel.Tracer("finitefield.org/route-planner/internal/geocode")

// Result is a single geocoding match.
type Result struct {
	Coordinate  geo.Coordinate
	DisplayName string
}

// Geocoder resolves an address to its best match.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Result, error)
}

// Config configures the Nominatim client.
type Config struct {
	BaseURL    string
	UserAgent  string
	Email      string
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
	// Interval is the minimum spacing between upstream requests. Zero disables throttling.
	Interval   time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client queries a Nominatim search endpoint.
type Client struct {
	baseURL    string
	userAgent  string
	email      string
	timeout    time.Duration
	attempts   int
	retryDelay time.Duration
	limiter    *rate.Limiter
	http       *http.Client
	logger     *zap.Logger
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, errUserAgentRequired
	}
	c := &Client{
		baseURL:    base,
		userAgent:  strings.TrimSpace(cfg.UserAgent),
		email:      strings.TrimSpace(cfg.Email),
		timeout:    cfg.Timeout,
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
		http:       cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.attempts <= 0 {
		c.attempts = defaultAttempts
	}
	if c.retryDelay < 0 {
		c.retryDelay = defaultRetryDelay
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if cfg.Interval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.Interval), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return c, nil
}

// Geocode resolves address, retrying attempts that time out.
// A missing match is returned as *NotFoundError and never retried.
func (c *Client) Geocode(ctx context.Context, address string) (Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Result{}, errEmptyAddress
	}

	ctx, span := tracer.Start(ctx, "geocode.search")
	defer span.End()

	attempt := 0
	op := func() (Result, error) {
		attempt++
		res, err := c.search(ctx, address)
		if err == nil {
			return res, nil
		}
		if isTimeout(err) && ctx.Err() == nil {
			return Result{}, err
		}
		return Result{}, backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		observability.FromContext(ctx).Named("geocode").Warn("geocode attempt timed out",
			zap.String("address", observability.SanitizeAddress(address)),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(c.attempts-1)),
		ctx,
	)
	res, err := backoff.RetryNotifyWithData(op, policy, notify)
	span.SetAttributes(attribute.Int("geocode.attempts", attempt))
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			err = &TimeoutError{Address: address, Attempts: attempt, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "geocode failed")
		return Result{}, err
	}
	return res, nil
}

type searchHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (c *Client) search(ctx context.Context, address string) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	if c.email != "" {
		q.Set("email", c.email)
	}
	endpoint := c.baseURL + "/search?" + q.Encode()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Result{}, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var hits []searchHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return Result{}, fmt.Errorf("geocode: decode response: %w", err)
	}
	if len(hits) == 0 {
		return Result{}, &NotFoundError{Address: address}
	}
	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: parse longitude: %w", err)
	}
	coord := geo.Coordinate{Lat: lat, Lon: lon}
	if !coord.Valid() {
		return Result{}, fmt.Errorf("geocode: coordinate %s out of range", coord)
	}
	return Result{Coordinate: coord, DisplayName: hits[0].DisplayName}, nil
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
