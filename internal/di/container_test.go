package di

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"finitefield.org/route-planner/internal/geo"
	"finitefield.org/route-planner/internal/geocode"
	"finitefield.org/route-planner/internal/platform/config"
)

type mapGeocoder map[string]geo.Coordinate

func (m mapGeocoder) Geocode(_ context.Context, address string) (geocode.Result, error) {
	c, ok := m[address]
	if !ok {
		return geocode.Result{}, &geocode.NotFoundError{Address: address}
	}
	return geocode.Result{Coordinate: c, DisplayName: address}, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load(context.Background(),
		config.WithEnvMap(map[string]string{
			"ROUTE_DB_PATH": filepath.Join(t.TempDir(), "planner.db"),
		}),
		config.WithoutSystemEnv(),
		config.WithEnvFile(""),
	)
	require.NoError(t, err)
	return cfg
}

func TestContainerRunsOfflinePipeline(t *testing.T) {
	ctx := context.Background()
	geocoder := mapGeocoder{
		"Tokyo Station": {Lat: 35.6812, Lon: 139.7671},
		"Shinjuku":      {Lat: 35.6896, Lon: 139.7006},
		"Shibuya":       {Lat: 35.6580, Lon: 139.7016},
	}
	c, err := NewContainer(ctx, testConfig(t), nil, WithGeocoder(geocoder), WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	user, err := c.Accounts.Register(ctx, "ada", "secret")
	require.NoError(t, err)

	plan, err := c.Optimizer.Optimize(ctx, user.ID, []string{"Tokyo Station", "Shibuya", "Shinjuku"})
	require.NoError(t, err)
	require.Equal(t, "Tokyo Station", plan.Summary.Order[0])
	require.Equal(t, "Shinjuku", plan.Summary.Order[2])
	require.Contains(t, string(plan.MapHTML), "<iframe")

	stored, err := c.Store.GetPlan(ctx, user.ID, plan.ID)
	require.NoError(t, err)
	require.Equal(t, plan.Summary.Distance, stored.Distance)

	locations, err := c.Store.ListLocations(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, locations, 3)
}

func TestNewOptimizerWithoutHistory(t *testing.T) {
	geocoder := mapGeocoder{"A": {Lat: 1, Lon: 1}, "B": {Lat: 1.1, Lon: 1.1}}
	svc, err := NewOptimizer(testConfig(t), nil, nil, WithGeocoder(geocoder))
	require.NoError(t, err)

	plan, err := svc.Optimize(context.Background(), 42, []string{"A", "B"})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, plan.Summary.Order)
}
