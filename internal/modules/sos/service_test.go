package sos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuspool/internal/apperr"
	"campuspool/internal/events"
	"campuspool/internal/lock"
	"campuspool/internal/modules/ride"
	"campuspool/internal/types"
)

var (
	driver   = types.Caller{ID: "driver-1", Role: types.RoleDriver, Verification: types.VerificationVerified}
	rider    = types.Caller{ID: "rider-1", Role: types.RoleRider, Verification: types.VerificationVerified}
	stranger = types.Caller{ID: "rider-2", Role: types.RoleRider, Verification: types.VerificationVerified}
	admin    = types.Caller{ID: "admin-1", Role: types.RoleAdmin, Verification: types.VerificationVerified}
)

type harness struct {
	svc   *Service
	rides *ride.RideService
	reqs  *ride.RequestService
	rec   *events.Recorder
}

func newHarness(t *testing.T, repo Repository) *harness {
	t.Helper()
	trips := ride.NewMemoryStore()
	locker := lock.NewLocal()
	rec := &events.Recorder{}
	deps := ride.Deps{Locker: locker, Pins: func() (string, error) { return "1111", nil }}
	acct := ride.NewAccountant(trips)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		base = base.Add(time.Second)
		return base
	}
	return &harness{
		svc:   NewService(repo, trips, WithLocker(locker), WithPublisher(rec), WithClock(clock)),
		rides: ride.NewRideService(trips, acct, deps),
		reqs:  ride.NewRequestService(trips, acct, deps),
		rec:   rec,
	}
}

// requestAt drives a fresh request up to the given status.
func (h *harness) requestAt(t *testing.T, status ride.RequestStatus) *ride.Request {
	t.Helper()
	ctx := context.Background()
	r, err := h.rides.Create(ctx, ride.CreateRideCommand{
		Caller: driver, Source: "Dorm", Destination: "Stadium",
		SourcePoint: &types.Point{Lat: 25.03, Lng: 121.56},
		Date:        "2025-03-02", Time: "07:45", AvailableSeats: 2, EstimatedCost: 40,
	})
	require.NoError(t, err)
	req, err := h.reqs.Create(ctx, rider, r.ID)
	require.NoError(t, err)
	steps := []ride.RequestStatus{ride.RequestAccepted, ride.RequestOngoing, ride.RequestCompleted}
	for _, next := range steps {
		if req.Status == status {
			break
		}
		switch next {
		case ride.RequestAccepted:
			req, err = h.reqs.Accept(ctx, driver, req.ID)
		case ride.RequestOngoing:
			req, err = h.reqs.Start(ctx, driver, req.ID, "1111")
		case ride.RequestCompleted:
			req, err = h.reqs.MarkReachedSafely(ctx, rider, req.ID)
		}
		require.NoError(t, err)
	}
	require.Equal(t, status, req.Status)
	return req
}

func TestTriggerRequiresOngoingRequest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, NewMemoryStore())

	for _, st := range []ride.RequestStatus{ride.RequestRequested, ride.RequestAccepted, ride.RequestCompleted} {
		req := h.requestAt(t, st)
		_, err := h.svc.Trigger(ctx, TriggerCommand{Caller: rider, RequestID: req.ID})
		assert.ErrorIs(t, err, apperr.ErrConflict, "status %s", st)
	}

	_, err := h.svc.Trigger(ctx, TriggerCommand{Caller: rider, RequestID: "missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTriggerByParticipants(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, NewMemoryStore())
	req := h.requestAt(t, ride.RequestOngoing)

	_, err := h.svc.Trigger(ctx, TriggerCommand{Caller: stranger, RequestID: req.ID})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = h.svc.Trigger(ctx, TriggerCommand{Caller: admin, RequestID: req.ID})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = h.svc.Trigger(ctx, TriggerCommand{Caller: rider, RequestID: req.ID, Location: &types.Point{Lat: 200}})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	e, err := h.svc.Trigger(ctx, TriggerCommand{
		Caller:    driver,
		RequestID: req.ID,
		Location:  &types.Point{Lat: 25.04, Lng: 121.55},
		Message:   "  passenger unwell  ",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, e.Status)
	assert.Equal(t, types.RoleDriver, e.TriggeredRole)
	assert.Equal(t, req.RideID, e.RideID)
	assert.Equal(t, "passenger unwell", e.Message)
	assert.Len(t, e.Geohash, 7)
	assert.Len(t, h.rec.OfType(events.TypeSOSTriggered), 1)
}

func TestOneOpenEscalationPerRequest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, NewMemoryStore())
	req := h.requestAt(t, ride.RequestOngoing)

	first, err := h.svc.Trigger(ctx, TriggerCommand{Caller: rider, RequestID: req.ID})
	require.NoError(t, err)

	_, err = h.svc.Trigger(ctx, TriggerCommand{Caller: driver, RequestID: req.ID})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = h.svc.Review(ctx, admin, first.ID, nil)
	require.NoError(t, err)
	_, err = h.svc.Trigger(ctx, TriggerCommand{Caller: rider, RequestID: req.ID})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = h.svc.Resolve(ctx, admin, first.ID, nil)
	require.NoError(t, err)
	second, err := h.svc.Trigger(ctx, TriggerCommand{Caller: rider, RequestID: req.ID})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestConcurrentTriggersOpenOnlyOne(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, NewMemoryStore())
	req := h.requestAt(t, ride.RequestOngoing)

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		who := rider
		if i%2 == 1 {
			who = driver
		}
		wg.Add(1)
		go func(c types.Caller) {
			defer wg.Done()
			<-start
			_, err := h.svc.Trigger(ctx, TriggerCommand{Caller: c, RequestID: req.ID})
			errs <- err
		}(who)
	}
	close(start)
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, 1, ok)
}

func TestReviewAndResolve(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, NewMemoryStore())
	req := h.requestAt(t, ride.RequestOngoing)
	e, err := h.svc.Trigger(ctx, TriggerCommand{Caller: rider, RequestID: req.ID})
	require.NoError(t, err)

	_, err = h.svc.Review(ctx, driver, e.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	notes := "called rider, en route"
	reviewed, err := h.svc.Review(ctx, admin, e.ID, &notes)
	require.NoError(t, err)
	assert.Equal(t, StatusReviewed, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedAt)
	assert.Equal(t, notes, *reviewed.AdminNotes)

	_, err = h.svc.Review(ctx, admin, e.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	resolved, err := h.svc.Resolve(ctx, admin, e.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, admin.ID, *resolved.ResolvedBy)
	assert.Equal(t, notes, *resolved.AdminNotes)

	_, err = h.svc.Resolve(ctx, admin, e.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = h.svc.Review(ctx, admin, e.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = h.svc.Review(ctx, admin, "missing", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResolveDirectlyFromActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, NewMemoryStore())
	req := h.requestAt(t, ride.RequestOngoing)
	e, err := h.svc.Trigger(ctx, TriggerCommand{Caller: rider, RequestID: req.ID})
	require.NoError(t, err)

	notes := "false alarm"
	resolved, err := h.svc.Resolve(ctx, admin, e.ID, &notes)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	assert.Nil(t, resolved.ReviewedAt)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "false alarm", *resolved.AdminNotes)
	assert.Len(t, h.rec.OfType(events.TypeSOSResolved), 1)
}

func TestEscalationListings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, NewMemoryStore())
	a := h.requestAt(t, ride.RequestOngoing)
	b := h.requestAt(t, ride.RequestOngoing)

	e1, err := h.svc.Trigger(ctx, TriggerCommand{Caller: rider, RequestID: a.ID})
	require.NoError(t, err)
	e2, err := h.svc.Trigger(ctx, TriggerCommand{Caller: driver, RequestID: b.ID})
	require.NoError(t, err)
	_, err = h.svc.Review(ctx, admin, e2.ID, nil)
	require.NoError(t, err)

	mine, err := h.svc.MyActive(ctx, rider)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, e1.ID, mine[0].ID)

	_, err = h.svc.Resolve(ctx, admin, e1.ID, nil)
	require.NoError(t, err)
	mine, err = h.svc.MyActive(ctx, rider)
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, _, err = h.svc.AdminList(ctx, rider, nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	all, counts, err := h.svc.AdminList(ctx, admin, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, e2.ID, all[0].ID)
	assert.Equal(t, Counts{Active: 0, Reviewed: 1, Resolved: 1, Total: 2}, counts)

	reviewed := StatusReviewed
	only, _, err := h.svc.AdminList(ctx, admin, &reviewed)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, e2.ID, only[0].ID)

	_, err = h.svc.Get(ctx, stranger, e1.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	got, err := h.svc.Get(ctx, rider, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusActive, StatusReviewed))
	assert.True(t, CanTransition(StatusActive, StatusResolved))
	assert.True(t, CanTransition(StatusReviewed, StatusResolved))
	assert.False(t, CanTransition(StatusReviewed, StatusActive))
	assert.False(t, CanTransition(StatusResolved, StatusReviewed))
	assert.False(t, CanTransition(StatusResolved, StatusActive))
	assert.False(t, CanTransition(StatusActive, StatusActive))
}
