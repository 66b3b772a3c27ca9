package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finitefield.org/route-planner/internal/optimize"
	"finitefield.org/route-planner/internal/presets"
	"finitefield.org/route-planner/internal/store"
)

func TestBuildPlannerViewMergesOptions(t *testing.T) {
	v := BuildPlannerView(PlannerInput{
		Lang:      "en",
		Addresses: []string{"A"},
		Locations: []store.Location{{ID: 1, Address: "Home"}, {ID: 2, Address: "Office"}},
		Presets:   []presets.Preset{{Name: "HQ", Address: "Office"}, {Name: "Depot", Address: "Depot Rd"}},
		Plans:     []store.Plan{{ID: "p1", Distance: "1234.50 km", DistanceKm: 1234.5, Addresses: []string{"A", "B"}, CreatedAt: time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)}},
		Max:       25,
	})

	require.False(t, v.CanSubmit)
	require.Len(t, v.Saved, 2)
	var labels []string
	for _, o := range v.Options {
		labels = append(labels, o.Group+":"+o.Label)
	}
	require.Equal(t, []string{"saved:Home", "saved:Office", "preset:Depot (Depot Rd)"}, labels)
	require.Equal(t, "2", v.Recent[0].Stops)
	require.Equal(t, "1,234.50 km", v.Recent[0].Distance)
	require.Equal(t, "Feb 1, 2024 10:00", v.Recent[0].CreatedAt)
}

func TestParseIndex(t *testing.T) {
	if n, ok := ParseIndex("3"); !ok || n != 3 {
		t.Fatalf("unexpected parse result %d %v", n, ok)
	}
	if _, ok := ParseIndex("-1"); ok {
		t.Fatalf("negative index accepted")
	}
	if _, ok := ParseIndex("x"); ok {
		t.Fatalf("non-numeric index accepted")
	}
}

func TestBuildPlanViewFromStoredPlan(t *testing.T) {
	stored := store.Plan{
		ID:         "01PLAN",
		UserID:     3,
		Addresses:  []string{"A", "B", "C"},
		Order:      []string{"A", "C", "B"},
		Distance:   "1234.50 km",
		DistanceKm: 1234.5,
		MapHTML:    "<div>map</div>",
		CreatedAt:  time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC),
	}

	view := BuildPlanView(optimize.FromStored(stored), "en")
	require.Equal(t, "01PLAN", view.ID)
	require.Equal(t, []string{"A", "B", "C"}, view.Addresses)
	require.Equal(t, "01PLAN", view.Result.PlanID)
	require.Equal(t, "1,234.50 km", view.Result.Distance)
	require.Equal(t, []string{"A", "C", "B"}, view.Result.Order)
	require.Equal(t, "<div>map</div>", string(view.Result.MapHTML))
	require.NotEmpty(t, view.CreatedAt)

	stored.DistanceKm = 0
	require.Equal(t, "1234.50 km", BuildPlanView(optimize.FromStored(stored), "en").Result.Distance)
}
