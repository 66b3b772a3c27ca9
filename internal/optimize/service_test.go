package optimize

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"finitefield.org/route-planner/internal/geo"
	"finitefield.org/route-planner/internal/geocode"
	"finitefield.org/route-planner/internal/mapview"
	"finitefield.org/route-planner/internal/routing"
	"finitefield.org/route-planner/internal/store"
)

type fakeGeocoder struct {
	coords map[string]geo.Coordinate
	errs   map[string]error
	calls  []string
}

func (f *fakeGeocoder) Geocode(_ context.Context, address string) (geocode.Result, error) {
	f.calls = append(f.calls, address)
	if err, ok := f.errs[address]; ok {
		return geocode.Result{}, err
	}
	c, ok := f.coords[address]
	if !ok {
		return geocode.Result{}, &geocode.NotFoundError{Address: address}
	}
	return geocode.Result{Coordinate: c, DisplayName: address}, nil
}

type fakeRouter struct {
	matrix    [][]float64
	matrixErr error
	routeErr  error
	routed    []geo.Coordinate
}

func (f *fakeRouter) DistanceMatrix(_ context.Context, points []geo.Coordinate) ([][]float64, error) {
	if f.matrixErr != nil {
		return nil, f.matrixErr
	}
	return f.matrix, nil
}

func (f *fakeRouter) Directions(_ context.Context, points []geo.Coordinate) (routing.Route, error) {
	if f.routeErr != nil {
		return routing.Route{}, f.routeErr
	}
	f.routed = points
	return routing.Route{Geometry: points}, nil
}

type fakeMaps struct {
	last mapview.Route
}

func (f *fakeMaps) Render(route mapview.Route) (template.HTML, error) {
	f.last = route
	return "<div>map</div>", nil
}

type fakeHistory struct {
	mu        sync.Mutex
	locations []string
	plans     []store.Plan
}

func (f *fakeHistory) SaveLocations(_ context.Context, _ int64, addresses []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = append(f.locations, addresses...)
	return nil
}

func (f *fakeHistory) SavePlan(_ context.Context, p store.Plan) (store.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, p)
	return p, nil
}

var (
	pointA = geo.Coordinate{Lat: 1, Lon: 1}
	pointB = geo.Coordinate{Lat: 2, Lon: 2}
	pointC = geo.Coordinate{Lat: 3, Lon: 3}
	pointD = geo.Coordinate{Lat: 4, Lon: 4}
)

func newTestService(t *testing.T, g *fakeGeocoder, r *fakeRouter, m *fakeMaps, h History) *Service {
	t.Helper()
	svc, err := NewService(Deps{
		Geocoder:    g,
		Router:      r,
		Maps:        m,
		History:     h,
		Clock:       func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
		IDGenerator: func() string { return "plan-1" },
	})
	require.NoError(t, err)
	return svc
}

func TestOptimizeOrdersAndSummarises(t *testing.T) {
	g := &fakeGeocoder{coords: map[string]geo.Coordinate{"A": pointA, "B": pointB, "C": pointC, "D": pointD}}
	r := &fakeRouter{matrix: [][]float64{
		{0, 10, 2, 9},
		{10, 0, 3, 1},
		{2, 3, 0, 8},
		{9, 1, 8, 0},
	}}
	m := &fakeMaps{}
	h := &fakeHistory{}
	svc := newTestService(t, g, r, m, h)

	plan, err := svc.Optimize(context.Background(), 7, []string{"A", " B ", "C", "D", "  "})
	require.NoError(t, err)

	want := Summary{Distance: "6.00 km", Order: []string{"A", "C", "B", "D"}}
	if diff := cmp.Diff(want, plan.Summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "plan-1", plan.ID)
	require.Equal(t, template.HTML("<div>map</div>"), plan.MapHTML)
	require.Equal(t, []geo.Coordinate{pointA, pointC, pointB, pointD}, r.routed)

	// markers follow input order
	require.Len(t, m.last.Stops, 4)
	require.Equal(t, "B", m.last.Stops[1].Address)

	require.Equal(t, []string{"A", "B", "C", "D"}, h.locations)
	require.Len(t, h.plans, 1)
	require.Equal(t, int64(7), h.plans[0].UserID)
	require.Equal(t, "6.00 km", h.plans[0].Distance)
}

func TestOptimizeTwoAddressesUsesMatrixDistance(t *testing.T) {
	g := &fakeGeocoder{coords: map[string]geo.Coordinate{"A": pointA, "B": pointB}}
	r := &fakeRouter{matrix: [][]float64{{0, 12.346}, {12.3, 0}}}
	svc := newTestService(t, g, r, &fakeMaps{}, nil)

	plan, err := svc.Optimize(context.Background(), 0, []string{"A", "B"})
	require.NoError(t, err)
	require.Equal(t, "12.35 km", plan.Summary.Distance)
	require.Equal(t, []string{"A", "B"}, plan.Summary.Order)
	require.Empty(t, plan.ID, "unsaved plans carry no id")
}

func TestOptimizeWithoutUserSavesNothing(t *testing.T) {
	g := &fakeGeocoder{coords: map[string]geo.Coordinate{"A": pointA, "B": pointB}}
	r := &fakeRouter{matrix: [][]float64{{0, 5}, {5, 0}}}
	h := &fakeHistory{}
	svc := newTestService(t, g, r, &fakeMaps{}, h)

	plan, err := svc.Optimize(context.Background(), 0, []string{"A", "B"})
	require.NoError(t, err)
	require.Empty(t, plan.ID)
	require.Empty(t, plan.Response().PlanID)
	require.Empty(t, h.locations)
	require.Empty(t, h.plans)
}

func TestOptimizeErrors(t *testing.T) {
	tests := []struct {
		name       string
		addresses  []string
		geocoder   *fakeGeocoder
		router     *fakeRouter
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "too few",
			addresses:  []string{"A", " "},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeTooFewAddresses,
			wantMsg:    "At least two addresses are required.",
		},
		{
			name:       "not found",
			addresses:  []string{"A", "Nowhere"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeGeocodeNotFound,
			wantMsg:    "Could not geocode address: Nowhere",
		},
		{
			name:      "timeout",
			addresses: []string{"A", "Slow"},
			geocoder: &fakeGeocoder{
				coords: map[string]geo.Coordinate{"A": pointA},
				errs:   map[string]error{"Slow": &geocode.TimeoutError{Address: "Slow", Attempts: 3}},
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeGeocodeTimeout,
			wantMsg:    "Geocoding timeout for address: Slow",
		},
		{
			name:      "other geocode failure",
			addresses: []string{"A", "Broken"},
			geocoder: &fakeGeocoder{
				coords: map[string]geo.Coordinate{"A": pointA},
				errs:   map[string]error{"Broken": errors.New("boom")},
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeGeocodeFailed,
			wantMsg:    "Geocoding error: boom",
		},
		{
			name:       "matrix failure",
			addresses:  []string{"A", "B"},
			router:     &fakeRouter{matrixErr: errors.New("quota exceeded")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeMatrixFailed,
			wantMsg:    "API error: quota exceeded",
		},
		{
			name:       "directions failure",
			addresses:  []string{"A", "B"},
			router:     &fakeRouter{matrix: [][]float64{{0, 1}, {1, 0}}, routeErr: errors.New("no route")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeRouteFailed,
			wantMsg:    "Route error: no route",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.geocoder
			if g == nil {
				g = &fakeGeocoder{coords: map[string]geo.Coordinate{"A": pointA, "B": pointB}}
			}
			r := tt.router
			if r == nil {
				r = &fakeRouter{matrix: [][]float64{{0, 1}, {1, 0}}}
			}
			svc := newTestService(t, g, r, &fakeMaps{}, nil)

			_, err := svc.Optimize(context.Background(), 1, tt.addresses)
			var oe *Error
			require.ErrorAs(t, err, &oe)
			require.Equal(t, tt.wantStatus, oe.Status)
			require.Equal(t, tt.wantCode, oe.Code)
			require.Equal(t, tt.wantMsg, oe.Message)
		})
	}
}

func TestOptimizeStopsGeocodingAfterFailure(t *testing.T) {
	g := &fakeGeocoder{coords: map[string]geo.Coordinate{"A": pointA, "C": pointC}}
	svc := newTestService(t, g, &fakeRouter{}, &fakeMaps{}, nil)

	_, err := svc.Optimize(context.Background(), 0, []string{"A", "B", "C"})
	require.Error(t, err)
	require.Equal(t, []string{"A", "B"}, g.calls)
}

func TestOptimizeTooManyAddresses(t *testing.T) {
	svc, err := NewService(Deps{Geocoder: &fakeGeocoder{}, Router: &fakeRouter{}, Maps: &fakeMaps{}, MaxAddresses: 2})
	require.NoError(t, err)
	_, err = svc.Optimize(context.Background(), 0, []string{"A", "B", "C"})
	require.Equal(t, CodeTooManyAddresses, AsError(err).Code)
}

func TestNewServiceValidatesDeps(t *testing.T) {
	_, err := NewService(Deps{Router: &fakeRouter{}, Maps: &fakeMaps{}})
	require.Error(t, err)
	_, err = NewService(Deps{Geocoder: &fakeGeocoder{}, Maps: &fakeMaps{}})
	require.Error(t, err)
	_, err = NewService(Deps{Geocoder: &fakeGeocoder{}, Router: &fakeRouter{}})
	require.Error(t, err)
}

func TestAsErrorWrapsUnknown(t *testing.T) {
	oe := AsError(errors.New("x"))
	require.Equal(t, http.StatusInternalServerError, oe.Status)
	require.Equal(t, "Internal server error.", oe.HTTP().Message)
}
