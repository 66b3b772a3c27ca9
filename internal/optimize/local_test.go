package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/route-planner/internal/geo"
)

func TestLocalReportsPipelineErrorsInResponse(t *testing.T) {
	g := &fakeGeocoder{coords: map[string]geo.Coordinate{"A": pointA}}
	svc := newTestService(t, g, &fakeRouter{}, &fakeMaps{}, nil)

	resp, err := svc.ForUser(0).Optimize(context.Background(), []string{"A", "Nowhere"})
	require.NoError(t, err)
	require.Nil(t, resp.Summary)
	require.Equal(t, "Could not geocode address: Nowhere", resp.Error)
}

func TestLocalReturnsSummary(t *testing.T) {
	g := &fakeGeocoder{coords: map[string]geo.Coordinate{"A": pointA, "B": pointB, "C": pointC, "D": pointD}}
	r := &fakeRouter{matrix: [][]float64{
		{0, 10, 2, 9},
		{10, 0, 3, 1},
		{2, 3, 0, 8},
		{9, 1, 8, 0},
	}}
	h := &fakeHistory{}
	svc := newTestService(t, g, r, &fakeMaps{}, h)

	resp, err := svc.ForUser(7).Optimize(context.Background(), []string{"A", "B", "C", "D"})
	require.NoError(t, err)
	require.Empty(t, resp.Error)
	require.Equal(t, "plan-1", resp.PlanID)
	require.Equal(t, "6.00 km", resp.Summary.Distance)
	require.Equal(t, []string{"A", "C", "B", "D"}, resp.Summary.Order)
	require.Equal(t, "<div>map</div>", resp.MapHTML)
	require.Len(t, h.plans, 1)
}

func TestLocalWithoutUserHasNoPlanID(t *testing.T) {
	g := &fakeGeocoder{coords: map[string]geo.Coordinate{"A": pointA, "B": pointB}}
	r := &fakeRouter{matrix: [][]float64{{0, 5}, {5, 0}}}
	svc := newTestService(t, g, r, &fakeMaps{}, &fakeHistory{})

	resp, err := svc.ForUser(0).Optimize(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	require.Empty(t, resp.PlanID)
	require.Equal(t, "5.00 km", resp.Summary.Distance)
}
