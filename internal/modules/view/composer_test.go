package view

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuspool/internal/modules/ride"
	"campuspool/internal/modules/sos"
	"campuspool/internal/types"
)

var (
	driver   = types.Caller{ID: "driver-a", Role: types.RoleDriver, Verification: types.VerificationVerified}
	riderA   = types.Caller{ID: "rider-a", Role: types.RoleRider, Verification: types.VerificationVerified}
	riderB   = types.Caller{ID: "rider-b", Role: types.RoleRider, Verification: types.VerificationVerified}
	outsider = types.Caller{ID: "rider-x", Role: types.RoleRider, Verification: types.VerificationVerified}
	admin    = types.Caller{ID: "admin-1", Role: types.RoleAdmin, Verification: types.VerificationVerified}
)

type harness struct {
	repo  *ride.MemoryStore
	rides *ride.RideService
	reqs  *ride.RequestService
	views *Composer
}

func newHarness() *harness {
	repo := ride.NewMemoryStore()
	acct := ride.NewAccountant(repo)
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	deps := ride.Deps{
		Now:  func() time.Time { return start },
		Pins: func() (string, error) { return "4821", nil },
	}
	return &harness{
		repo:  repo,
		rides: ride.NewRideService(repo, acct, deps),
		reqs:  ride.NewRequestService(repo, acct, deps),
		views: NewComposer(acct, repo),
	}
}

func (h *harness) ride(t *testing.T, seats int, cost float64) *ride.Ride {
	t.Helper()
	r, err := h.rides.Create(context.Background(), ride.CreateRideCommand{
		Caller:         driver,
		Source:         "North Gate",
		Destination:    "Airport Terminal 2",
		SourcePoint:    &types.Point{Lat: 25.0330, Lng: 121.5654},
		Date:           "2025-03-02",
		Time:           "08:30",
		AvailableSeats: seats,
		EstimatedCost:  cost,
	})
	require.NoError(t, err)
	return r
}

func (h *harness) accepted(t *testing.T, rideID types.ID, who types.Caller) *ride.Request {
	t.Helper()
	ctx := context.Background()
	req, err := h.reqs.Create(ctx, who, rideID)
	require.NoError(t, err)
	req, err = h.reqs.Accept(ctx, driver, req.ID)
	require.NoError(t, err)
	return req
}

func (h *harness) rideView(t *testing.T, id types.ID) RideView {
	t.Helper()
	r, err := h.repo.GetRide(context.Background(), id)
	require.NoError(t, err)
	v, err := h.views.Ride(context.Background(), r)
	require.NoError(t, err)
	return v
}

func TestRideViewCostSplit(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	r := h.ride(t, 2, 100)

	v := h.rideView(t, r.ID)
	assert.Equal(t, 2, v.SeatsAvailable)
	assert.Equal(t, 0, v.SeatsTaken)
	assert.Equal(t, 100.0, v.CostPerRider)

	a := h.accepted(t, r.ID, riderA)
	h.accepted(t, r.ID, riderB)
	_, err := h.reqs.Start(ctx, driver, a.ID, "4821")
	require.NoError(t, err)

	v = h.rideView(t, r.ID)
	assert.Equal(t, 0, v.SeatsAvailable)
	assert.Equal(t, 2, v.SeatsTaken)
	assert.Equal(t, 33.33, v.CostPerRider)
	assert.Equal(t, 2, v.AvailableSeats)
	assert.Equal(t, ride.StatusActive, v.Status)
}

func TestRideViewCompletedCountsRiders(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	r := h.ride(t, 3, 90)
	a := h.accepted(t, r.ID, riderA)
	_, err := h.reqs.Start(ctx, driver, a.ID, "4821")
	require.NoError(t, err)
	_, err = h.reqs.MarkReachedSafely(ctx, riderA, a.ID)
	require.NoError(t, err)

	v := h.rideView(t, r.ID)
	assert.Equal(t, ride.StatusCompleted, v.Status)
	assert.Equal(t, 1, v.SeatsTaken)
	assert.Equal(t, 45.0, v.CostPerRider)
	assert.NotNil(t, v.CompletedAt)
}

func TestRequestViewPinVisibility(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	r := h.ride(t, 2, 50)
	req := h.accepted(t, r.ID, riderA)

	for _, tc := range []struct {
		name   string
		viewer types.Caller
		pin    string
	}{
		{"rider", riderA, "4821"},
		{"driver", driver, "4821"},
		{"admin", admin, ""},
		{"outsider", outsider, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v, err := h.views.Request(ctx, tc.viewer, req)
			require.NoError(t, err)
			assert.Equal(t, tc.pin, v.Pin)
			assert.Equal(t, "North Gate", v.RideSource)
			assert.Equal(t, "Airport Terminal 2", v.RideDestination)
			assert.Nil(t, v.ETA)
		})
	}
}

func TestRequestViewETAOnlyWhileOngoing(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	r := h.ride(t, 2, 50)
	req := h.accepted(t, r.ID, riderA)

	req, err := h.reqs.Start(ctx, driver, req.ID, "4821")
	require.NoError(t, err)
	v, err := h.views.Request(ctx, riderA, req)
	require.NoError(t, err)
	require.NotNil(t, v.ETA)
	assert.Equal(t, req.StartedAt.Add(EstimateDuration("North Gate", "Airport Terminal 2")), *v.ETA)

	req, err = h.reqs.MarkReachedSafely(ctx, riderA, req.ID)
	require.NoError(t, err)
	v, err = h.views.Request(ctx, riderA, req)
	require.NoError(t, err)
	assert.Nil(t, v.ETA)
}

func TestRequestViewAfterRideDeleted(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	r := h.ride(t, 2, 50)
	req := h.accepted(t, r.ID, riderA)
	require.NoError(t, h.rides.Delete(ctx, driver, r.ID))

	v, err := h.views.Request(ctx, riderA, req)
	require.NoError(t, err)
	assert.Empty(t, v.RideSource)
	assert.Empty(t, v.Pin)
}

func TestSOSViewDistance(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	r := h.ride(t, 2, 50)

	e := &sos.Event{
		ID: "sos-1", RideID: r.ID, RideRequestID: "req-1",
		TriggeredBy: riderA.ID, TriggeredRole: types.RoleRider,
		Location: &types.Point{Lat: 25.0478, Lng: 121.5170},
		Status:   sos.StatusActive,
	}
	v, err := h.views.SOS(ctx, e)
	require.NoError(t, err)
	require.NotNil(t, v.DistanceFromPickupKm)
	assert.InDelta(t, 5.1, *v.DistanceFromPickupKm, 0.3)

	e.Location = nil
	v, err = h.views.SOS(ctx, e)
	require.NoError(t, err)
	assert.Nil(t, v.DistanceFromPickupKm)
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, etaBase, EstimateDuration("Library", "library"))
	assert.Equal(t, etaBase+2*etaPerToken, EstimateDuration("Main Gate", "North Gate"))
	assert.Equal(t, etaMax, EstimateDuration("a b c d e f g h i j", "k l m n o p q r s t"))
}

func TestFareHelpers(t *testing.T) {
	assert.Equal(t, 0, SeatsAvailable(2, 3))
	assert.Equal(t, 1, SeatsAvailable(3, 2))
	assert.Equal(t, 12.5, CostPerRider(12.5, 0))
	assert.Equal(t, 33.33, CostPerRider(100, 2))
	assert.Equal(t, 66.67, CostPerRider(200, 2))
}
