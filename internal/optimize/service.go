package optimize

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"finitefield.org/route-planner/internal/geo"
	"finitefield.org/route-planner/internal/geocode"
	"finitefield.org/route-planner/internal/mapview"
	"finitefield.org/route-planner/internal/platform/requestctx"
	"finitefield.org/route-planner/internal/routing"
	"finitefield.org/route-planner/internal/store"
)

const defaultMaxAddresses = 25

const instrumentationName = "finitefield.org/route-planner/internal/optimize"

var tracer = otel.Tracer(instrumentationName)

// MapRenderer draws a route fragment.
type MapRenderer interface {
	Render(route mapview.Route) (template.HTML, error)
}

// History persists saved locations and plans. Optional.
type History interface {
	SaveLocations(ctx context.Context, userID int64, addresses []string) error
	SavePlan(ctx context.Context, plan store.Plan) (store.Plan, error)
}

// Deps bundles the collaborators required by Service.
type Deps struct {
	Geocoder     geocode.Geocoder
	Router       routing.Provider
	Maps         MapRenderer
	History      History
	MaxAddresses int
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       *zap.Logger
	// Meter defaults to the global meter provider.
	Meter metric.Meter
}

// Service runs the optimize pipeline: save, geocode, matrix, order, directions, map.
type Service struct {
	geocoder geocode.Geocoder
	router   routing.Provider
	maps     MapRenderer
	history  History
	max      int
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
	plans    metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewService validates deps and constructs the service.
func NewService(deps Deps) (*Service, error) {
	if deps.Geocoder == nil {
		return nil, errors.New("optimize: geocoder is required")
	}
	if deps.Router == nil {
		return nil, errors.New("optimize: router is required")
	}
	if deps.Maps == nil {
		return nil, errors.New("optimize: map renderer is required")
	}
	s := &Service{
		geocoder: deps.Geocoder,
		router:   deps.Router,
		maps:     deps.Maps,
		history:  deps.History,
		max:      deps.MaxAddresses,
		now:      deps.Clock,
		newID:    deps.IDGenerator,
		logger:   deps.Logger,
	}
	if s.max <= 0 {
		s.max = defaultMaxAddresses
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return ulid.Make().String() }
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	var err error
	if s.plans, err = meter.Int64Counter(
		"optimize.plans",
		metric.WithDescription("Optimize requests by outcome code"),
	); err != nil {
		return nil, fmt.Errorf("optimize: register plans counter: %w", err)
	}
	if s.latency, err = meter.Float64Histogram(
		"optimize.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("End to end optimize latency in milliseconds"),
	); err != nil {
		return nil, fmt.Errorf("optimize: register latency histogram: %w", err)
	}
	return s, nil
}

// MaxAddresses reports the per-request address limit.
func (s *Service) MaxAddresses() int { return s.max }

// Optimize plans a route for the user. A zero userID skips persistence.
func (s *Service) Optimize(ctx context.Context, userID int64, addresses []string) (Plan, error) {
	start := time.Now()
	plan, err := s.optimize(ctx, userID, addresses)

	outcome := "ok"
	if err != nil {
		outcome = AsError(err).Code
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	s.plans.Add(ctx, 1, attrs)
	s.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), attrs)
	return plan, err
}

func (s *Service) optimize(ctx context.Context, userID int64, addresses []string) (Plan, error) {
	ctx, span := tracer.Start(ctx, "optimize.plan")
	defer span.End()

	addresses = cleanAddresses(addresses)
	span.SetAttributes(attribute.Int("optimize.addresses", len(addresses)))
	if len(addresses) < MinAddresses {
		return Plan{}, tooFewError()
	}
	if len(addresses) > s.max {
		return Plan{}, newError(http.StatusBadRequest, CodeTooManyAddresses,
			fmt.Sprintf("Too many addresses (maximum %d).", s.max), nil)
	}

	logger := s.logger
	if scoped := requestctx.Logger(ctx); scoped != requestctx.NoopLogger() {
		logger = scoped
	}

	if s.history != nil && userID != 0 {
		if err := s.history.SaveLocations(ctx, userID, addresses); err != nil {
			return Plan{}, fail(span, newError(http.StatusInternalServerError, CodeStorageFailed, "Could not save locations.", err))
		}
	}

	coords := make([]geo.Coordinate, len(addresses))
	for i, address := range addresses {
		res, err := s.geocoder.Geocode(ctx, address)
		if err != nil {
			return Plan{}, fail(span, geocodeError(address, err))
		}
		coords[i] = res.Coordinate
	}

	distances, err := s.router.DistanceMatrix(ctx, coords)
	if err != nil {
		return Plan{}, fail(span, newError(http.StatusInternalServerError, CodeMatrixFailed, "API error: "+err.Error(), err))
	}
	indices, totalKm, err := NearestNeighbour(distances)
	if err != nil {
		return Plan{}, fail(span, newError(http.StatusInternalServerError, CodeMatrixFailed, "API error: "+err.Error(), err))
	}

	ordered := make([]geo.Coordinate, len(indices))
	order := make([]string, len(indices))
	for i, idx := range indices {
		ordered[i] = coords[idx]
		order[i] = addresses[idx]
	}
	route, err := s.router.Directions(ctx, ordered)
	if err != nil {
		return Plan{}, fail(span, newError(http.StatusInternalServerError, CodeRouteFailed, "Route error: "+err.Error(), err))
	}

	stops := make([]mapview.Stop, len(addresses))
	for i, address := range addresses {
		stops[i] = mapview.Stop{Address: address, Coordinate: coords[i]}
	}
	mapHTML, err := s.maps.Render(mapview.Route{Stops: stops, Path: route.Geometry})
	if err != nil {
		return Plan{}, fail(span, newError(http.StatusInternalServerError, CodeMapFailed, "Map error: "+err.Error(), err))
	}

	// Only persisted plans get an id; nothing else can look them up.
	plan := Plan{
		Addresses:  addresses,
		Indices:    indices,
		Summary:    Summary{Distance: FormatDistance(totalKm), Order: order},
		DistanceKm: totalKm,
		MapHTML:    mapHTML,
		CreatedAt:  s.now().UTC(),
	}

	if s.history != nil && userID != 0 {
		plan.ID = s.newID()
		if _, err := s.history.SavePlan(ctx, store.Plan{
			ID:         plan.ID,
			UserID:     userID,
			Addresses:  plan.Addresses,
			Order:      plan.Summary.Order,
			Distance:   plan.Summary.Distance,
			DistanceKm: plan.DistanceKm,
			MapHTML:    string(plan.MapHTML),
			CreatedAt:  plan.CreatedAt,
		}); err != nil {
			return Plan{}, fail(span, newError(http.StatusInternalServerError, CodeStorageFailed, "Could not save plan.", err))
		}
	}

	span.SetAttributes(attribute.String("optimize.plan_id", plan.ID), attribute.Float64("optimize.distance_km", totalKm))
	logger.Info("route optimized",
		zap.String("plan_id", plan.ID),
		zap.Int("addresses", len(addresses)),
		zap.String("distance", plan.Summary.Distance),
	)
	return plan, nil
}

// FromStored rebuilds a plan from its stored record.
func FromStored(p store.Plan) Plan {
	return Plan{
		ID:         p.ID,
		Addresses:  p.Addresses,
		Summary:    Summary{Distance: p.Distance, Order: p.Order},
		DistanceKm: p.DistanceKm,
		MapHTML:    template.HTML(p.MapHTML),
		CreatedAt:  p.CreatedAt,
	}
}

func fail(span trace.Span, err *Error) *Error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Code)
	return err
}

func geocodeError(address string, err error) *Error {
	switch {
	case geocode.IsNotFound(err):
		return newError(http.StatusBadRequest, CodeGeocodeNotFound, "Could not geocode address: "+address, err)
	case geocode.IsTimeout(err):
		return newError(http.StatusInternalServerError, CodeGeocodeTimeout, "Geocoding timeout for address: "+address, err)
	default:
		return newError(http.StatusInternalServerError, CodeGeocodeFailed, "Geocoding error: "+err.Error(), err)
	}
}

func cleanAddresses(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
