// Package routing talks to openrouteservice for distance matrices and directions.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"finitefield.org/route-planner/internal/geo"
)

const (
	defaultTimeout = 20 * time.Second
	defaultProfile = "driving-car"
	maxErrorBody   = 512
)

var tracer = otel.Tracer("finitefield.org/route-planner/internal/routing")

var (
	// ErrTooFewPoints is returned when fewer than two coordinates are supplied.
	ErrTooFewPoints = errors.New("routing: at least two points are required")
	// ErrUnreachable is returned when the provider cannot connect two points.
	ErrUnreachable = errors.New("routing: location unreachable")
	// ErrEmptyRoute is returned when directions carry no geometry.
	ErrEmptyRoute = errors.New("routing: empty route geometry")
)

// StatusError reports a non-2xx response from openrouteservice.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("routing: status %d", e.Status)
	}
	return fmt.Sprintf("routing: status %d: %s", e.Status, e.Message)
}

// Route is a drivable path through ordered points.
type Route struct {
	Geometry   []geo.Coordinate
	DistanceKm float64
	Duration   time.Duration
}

// Provider computes road distances and directions.
type Provider interface {
	DistanceMatrix(ctx context.Context, points []geo.Coordinate) ([][]float64, error)
	Directions(ctx context.Context, points []geo.Coordinate) (Route, error)
}

// Config configures Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Profile    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client issues openrouteservice calls. Without an API key it serves offline
// estimates computed from great-circle distances.
type Client struct {
	baseURL string
	apiKey  string
	profile string
	http    *http.Client
}

// NewClient constructs a routing client.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		profile: strings.TrimSpace(cfg.Profile),
		http:    cfg.HTTPClient,
	}
	if c.profile == "" {
		c.profile = defaultProfile
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	return c
}

// Offline reports whether the client serves estimates instead of calling the API.
func (c *Client) Offline() bool { return c == nil || c.apiKey == "" || c.baseURL == "" }

// Profile returns the routing profile, e.g. "driving-car".
func (c *Client) Profile() string { return c.profile }

type matrixRequest struct {
	Locations [][2]float64 `json:"locations"`
	Metrics   []string     `json:"metrics"`
	Units     string       `json:"units"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
}

// DistanceMatrix returns pairwise road distances in kilometres.
func (c *Client) DistanceMatrix(ctx context.Context, points []geo.Coordinate) ([][]float64, error) {
	if len(points) < 2 {
		return nil, ErrTooFewPoints
	}
	ctx, span := tracer.Start(ctx, "routing.matrix", trace.WithAttributes(
		attribute.Int("routing.points", len(points)),
		attribute.Bool("routing.offline", c.Offline()),
	))
	defer span.End()

	if c.Offline() {
		return estimateMatrix(points), nil
	}

	body := matrixRequest{
		Locations: lonLats(points),
		Metrics:   []string{"distance"},
		Units:     "km",
	}
	var resp matrixResponse
	if err := c.post(ctx, []string{"v2", "matrix", c.profile}, body, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "matrix failed")
		return nil, err
	}
	if len(resp.Distances) != len(points) {
		return nil, fmt.Errorf("routing: matrix has %d rows, want %d", len(resp.Distances), len(points))
	}
	out := make([][]float64, len(points))
	for i, row := range resp.Distances {
		if len(row) != len(points) {
			return nil, fmt.Errorf("routing: matrix row %d has %d columns, want %d", i, len(row), len(points))
		}
		out[i] = make([]float64, len(row))
		for j, d := range row {
			if d == nil {
				return nil, fmt.Errorf("%w: %d to %d", ErrUnreachable, i, j)
			}
			out[i][j] = *d
		}
	}
	return out, nil
}

type directionsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type featureCollection struct {
	Features []struct {
		Geometry struct {
			Type        string      `json:"type"`
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

// Directions returns the road geometry visiting points in order.
func (c *Client) Directions(ctx context.Context, points []geo.Coordinate) (Route, error) {
	if len(points) < 2 {
		return Route{}, ErrTooFewPoints
	}
	ctx, span := tracer.Start(ctx, "routing.directions", trace.WithAttributes(
		attribute.Int("routing.points", len(points)),
		attribute.Bool("routing.offline", c.Offline()),
	))
	defer span.End()

	if c.Offline() {
		return estimateRoute(points), nil
	}

	var fc featureCollection
	if err := c.post(ctx, []string{"v2", "directions", c.profile, "geojson"}, directionsRequest{Coordinates: lonLats(points)}, &fc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "directions failed")
		return Route{}, err
	}
	if len(fc.Features) == 0 || len(fc.Features[0].Geometry.Coordinates) == 0 {
		return Route{}, ErrEmptyRoute
	}
	feature := fc.Features[0]
	geometry := make([]geo.Coordinate, 0, len(feature.Geometry.Coordinates))
	for _, p := range feature.Geometry.Coordinates {
		coord, err := geo.FromLonLat(p)
		if err != nil {
			return Route{}, fmt.Errorf("routing: %w", err)
		}
		geometry = append(geometry, coord)
	}
	return Route{
		Geometry:   geometry,
		DistanceKm: feature.Properties.Summary.Distance / 1000,
		Duration:   time.Duration(feature.Properties.Summary.Duration * float64(time.Second)),
	}, nil
}

func (c *Client) post(ctx context.Context, path []string, body any, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, application/geo+json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &StatusError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("routing: decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the message from either {"error":"..."} or
// {"error":{"code":n,"message":"..."}} bodies.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Error) > 0 {
		var msg string
		if err := json.Unmarshal(envelope.Error, &msg); err == nil {
			return strings.TrimSpace(msg)
		}
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &detail); err == nil && detail.Message != "" {
			return strings.TrimSpace(detail.Message)
		}
	}
	return strings.TrimSpace(string(raw))
}

func lonLats(points []geo.Coordinate) [][2]float64 {
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = p.LonLat()
	}
	return out
}
