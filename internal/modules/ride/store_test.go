package ride

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuspool/internal/apperr"
	"campuspool/internal/testutil"
	"campuspool/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.OpenDB(t, "request_state_events", "ride_requests", "rides")
	return NewStore(db)
}

func TestStoreRideRequestFlow(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	f := newFixtureWith(t, store, noLock{})

	r, err := f.rides.Create(ctx, CreateRideCommand{
		Caller: driverA, Source: "Main Gate", Destination: "Central Station",
		SourcePoint: &types.Point{Lat: 25.033, Lng: 121.565},
		Date:        "2025-03-02", Time: "08:30", AvailableSeats: 1, EstimatedCost: 80,
	})
	require.NoError(t, err)

	got, err := store.GetRide(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, &types.Point{Lat: 25.033, Lng: 121.565}, got.SourcePoint)
	assert.Nil(t, got.DestinationPoint)

	req := f.mustRequest(t, r.ID, rider(1))
	_, err = f.reqs.Create(ctx, rider(1), r.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	f.mustAccept(t, driverA, req.ID)
	_, err = f.reqs.Create(ctx, rider(2), r.ID)
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)

	_, err = f.reqs.Start(ctx, driverA, req.ID, "0000")
	assert.ErrorIs(t, err, apperr.ErrInvalidPin)
	f.mustStart(t, driverA, req.ID)

	done, err := f.reqs.MarkReachedSafely(ctx, rider(1), req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestCompleted, done.Status)
	assert.NotNil(t, done.ReachedSafelyAt)
	assert.Equal(t, StatusCompleted, f.rideStatus(t, r.ID))

	n, err := f.acct.Committed(ctx, &Ride{ID: r.ID, Status: StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreDiscoverFilters(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	f := newFixtureWith(t, store, noLock{})

	r := f.mustCreateRide(t, driverA, 2, 10)
	_, err := f.rides.Create(ctx, CreateRideCommand{
		Caller: driverB, Source: "Dorm", Destination: "100%_Stadium",
		Date: "2025-03-09", Time: "10:00", AvailableSeats: 2, EstimatedCost: 10,
	})
	require.NoError(t, err)

	got, err := f.rides.Discover(ctx, DiscoverQuery{Destination: "central"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.ID, got[0].ID)

	got, err = f.rides.Discover(ctx, DiscoverQuery{Destination: "%_s"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = f.rides.Discover(ctx, DiscoverQuery{Date: "2025-03-09"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStoreUpdateAndClose(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	f := newFixtureWith(t, store, noLock{})

	r := f.mustCreateRide(t, driverA, 3, 90)
	a := f.mustRequest(t, r.ID, rider(1))
	b := f.mustRequest(t, r.ID, rider(2))
	f.mustAccept(t, driverA, a.ID)
	f.mustAccept(t, driverA, b.ID)
	f.mustStart(t, driverA, b.ID)

	one := 1
	_, err := f.rides.Update(ctx, UpdateRideCommand{Caller: driverA, RideID: r.ID, Patch: RidePatch{AvailableSeats: &one}})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	dest := "North Campus"
	updated, err := f.rides.Update(ctx, UpdateRideCommand{Caller: driverA, RideID: r.ID, Patch: RidePatch{Destination: &dest}})
	require.NoError(t, err)
	assert.Equal(t, "North Campus", updated.Destination)
	assert.Equal(t, "Main Gate", updated.Source)
	assert.Equal(t, 3, updated.AvailableSeats)

	closed, err := f.rides.Close(ctx, driverA, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, closed.Status)
	assert.Equal(t, RequestCompleted, f.status(t, a.ID))
	assert.Equal(t, RequestCompleted, f.status(t, b.ID))

	res, err := store.CloseRide(ctx, r.ID, closed.CreatedAt)
	require.NoError(t, err)
	assert.False(t, res.Closed)

	require.NoError(t, f.rides.Delete(ctx, driverA, r.ID))
	_, err = store.GetRequest(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStoreConcurrentAcceptsNeverOverbook(t *testing.T) {
	store := setupTestStore(t)
	f := newFixtureWith(t, store, noLock{})
	runCapacityProperty(t, f, 2, 4)
}
