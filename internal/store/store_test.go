package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "test.db"), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	require.NotZero(t, u.ID)

	_, err = s.CreateUser(ctx, "alice", "other")
	require.ErrorIs(t, err, ErrUsernameTaken)

	got, err := s.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "hash", got.PasswordHash)

	byID, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", byID.Username)

	_, err = s.UserByUsername(ctx, "bob")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveLocationsDeduplicatesPerUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice, err := s.CreateUser(ctx, "alice", "h")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob", "h")
	require.NoError(t, err)

	require.NoError(t, s.SaveLocations(ctx, alice.ID, []string{"Berlin", "Potsdam", " Berlin ", ""}))
	require.NoError(t, s.SaveLocations(ctx, alice.ID, []string{"Potsdam", "Leipzig"}))
	require.NoError(t, s.SaveLocations(ctx, bob.ID, []string{"Berlin"}))

	locs, err := s.ListLocations(ctx, alice.ID)
	require.NoError(t, err)
	var addresses []string
	for _, l := range locs {
		addresses = append(addresses, l.Address)
	}
	if diff := cmp.Diff([]string{"Berlin", "Potsdam", "Leipzig"}, addresses); diff != "" {
		t.Fatalf("locations mismatch (-want +got):\n%s", diff)
	}

	bobLocs, err := s.ListLocations(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobLocs, 1)

	// bob cannot delete alice's rows
	require.ErrorIs(t, s.DeleteLocation(ctx, bob.ID, locs[0].ID), ErrNotFound)
	require.NoError(t, s.DeleteLocation(ctx, alice.ID, locs[0].ID))
	locs, err = s.ListLocations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, locs, 2)
}

func TestPlansRoundTripNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u, err := s.CreateUser(ctx, "alice", "h")
	require.NoError(t, err)

	first, err := s.SavePlan(ctx, Plan{
		ID:         "01HZZZZZZZZZZZZZZZZZZZZZZ1",
		UserID:     u.ID,
		Addresses:  []string{"A", "B", "C"},
		Order:      []string{"A", "C", "B"},
		Distance:   "12.50 km",
		DistanceKm: 12.5,
		MapHTML:    "<div></div>",
	})
	require.NoError(t, err)
	_, err = s.SavePlan(ctx, Plan{ID: "01HZZZZZZZZZZZZZZZZZZZZZZ2", UserID: u.ID, Addresses: []string{"A", "B"}, Order: []string{"A", "B"}, Distance: "1.00 km", DistanceKm: 1})
	require.NoError(t, err)

	got, err := s.GetPlan(ctx, u.ID, first.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(first, got); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}

	list, err := s.ListPlans(ctx, u.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "01HZZZZZZZZZZZZZZZZZZZZZZ2", list[0].ID)

	_, err = s.GetPlan(ctx, u.ID+1, first.ID)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestDraftReplacesList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u, err := s.CreateUser(ctx, "alice", "h")
	require.NoError(t, err)

	draft, err := s.Draft(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, draft)

	require.NoError(t, s.SaveDraft(ctx, u.ID, []string{"B", "A", "B"}))
	draft, err = s.Draft(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A", "B"}, draft)

	require.NoError(t, s.SaveDraft(ctx, u.ID, nil))
	draft, err = s.Draft(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, draft)
}

func TestUpdateDraftConcurrentAppendsKeepEveryEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u, err := s.CreateUser(ctx, "alice", "h")
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpdateDraft(ctx, u.ID, func(current []string) ([]string, error) {
				return append(current, fmt.Sprintf("addr-%02d", i)), nil
			})
			if err != nil {
				t.Errorf("UpdateDraft %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	draft, err := s.Draft(ctx, u.ID)
	require.NoError(t, err)
	want := make([]string, writers)
	for i := range want {
		want[i] = fmt.Sprintf("addr-%02d", i)
	}
	require.ElementsMatch(t, want, draft)
}

func TestUpdateDraftEditErrorLeavesListUntouched(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u, err := s.CreateUser(ctx, "alice", "h")
	require.NoError(t, err)
	require.NoError(t, s.SaveDraft(ctx, u.ID, []string{"A"}))

	errFull := errors.New("full")
	current, err := s.UpdateDraft(ctx, u.ID, func(current []string) ([]string, error) {
		return nil, errFull
	})
	require.ErrorIs(t, err, errFull)
	require.Equal(t, []string{"A"}, current)

	next, err := s.UpdateDraft(ctx, u.ID, func(current []string) ([]string, error) {
		return append(current, "B"), nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, next)

	draft, err := s.Draft(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, draft)
}
