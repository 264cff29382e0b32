package ride

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campuspool/internal/apperr"
	"campuspool/internal/events"
	"campuspool/internal/lock"
	"campuspool/internal/types"
)

const testPin = "4821"

var (
	driverA = types.Caller{ID: "driver-a", Role: types.RoleDriver, Verification: types.VerificationVerified}
	driverB = types.Caller{ID: "driver-b", Role: types.RoleDriver, Verification: types.VerificationVerified}
	admin   = types.Caller{ID: "admin-1", Role: types.RoleAdmin, Verification: types.VerificationVerified}
)

func rider(n int) types.Caller {
	return types.Caller{ID: types.ID(fmt.Sprintf("rider-%d", n)), Role: types.RoleRider, Verification: types.VerificationVerified}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so creation order is strict.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// noLock disables the ride lock so only store-level atomicity guards admission.
type noLock struct{}

func (noLock) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// flakyRepo fails selected store calls while the flags are set.
type flakyRepo struct {
	Repository
	failCount   bool
	failArrival bool
}

var errStoreDown = errors.New("boom")

func (r *flakyRepo) CountRequests(ctx context.Context, rideID types.ID, statuses []RequestStatus) (int, error) {
	if r.failCount {
		return 0, apperr.Unavailable("count", errStoreDown)
	}
	return r.Repository.CountRequests(ctx, rideID, statuses)
}

func (r *flakyRepo) CompleteArrival(ctx context.Context, tr Transition) (ArrivalResult, error) {
	if r.failArrival {
		return ArrivalResult{}, apperr.Unavailable("complete arrival", errStoreDown)
	}
	return r.Repository.CompleteArrival(ctx, tr)
}

type fixture struct {
	repo  Repository
	mem   *MemoryStore
	acct  *Accountant
	rides *RideService
	reqs  *RequestService
	rec   *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := NewMemoryStore()
	f := newFixtureWith(t, mem, lock.NewLocal())
	f.mem = mem
	return f
}

func newFixtureWith(t *testing.T, repo Repository, l lock.Locker) *fixture {
	t.Helper()
	rec := &events.Recorder{}
	clock := &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	deps := Deps{
		Locker:    l,
		Publisher: rec,
		Now:       clock.Now,
		Pins:      func() (string, error) { return testPin, nil },
	}
	acct := NewAccountant(repo)
	return &fixture{
		repo:  repo,
		acct:  acct,
		rides: NewRideService(repo, acct, deps),
		reqs:  NewRequestService(repo, acct, deps),
		rec:   rec,
	}
}

func (f *fixture) mustCreateRide(t *testing.T, driver types.Caller, seats int, cost float64) *Ride {
	t.Helper()
	r, err := f.rides.Create(context.Background(), CreateRideCommand{
		Caller:         driver,
		Source:         "Main Gate",
		Destination:    "Central Station",
		Date:           "2025-03-02",
		Time:           "08:30",
		AvailableSeats: seats,
		EstimatedCost:  cost,
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) mustRequest(t *testing.T, rideID types.ID, who types.Caller) *Request {
	t.Helper()
	req, err := f.reqs.Create(context.Background(), who, rideID)
	require.NoError(t, err)
	return req
}

func (f *fixture) mustAccept(t *testing.T, driver types.Caller, reqID types.ID) *Request {
	t.Helper()
	req, err := f.reqs.Accept(context.Background(), driver, reqID)
	require.NoError(t, err)
	return req
}

func (f *fixture) mustStart(t *testing.T, driver types.Caller, reqID types.ID) *Request {
	t.Helper()
	req, err := f.reqs.Start(context.Background(), driver, reqID, testPin)
	require.NoError(t, err)
	return req
}

func (f *fixture) status(t *testing.T, reqID types.ID) RequestStatus {
	t.Helper()
	req, err := f.repo.GetRequest(context.Background(), reqID)
	require.NoError(t, err)
	return req.Status
}

func (f *fixture) rideStatus(t *testing.T, rideID types.ID) Status {
	t.Helper()
	r, err := f.repo.GetRide(context.Background(), rideID)
	require.NoError(t, err)
	return r.Status
}
