// README: Capacity accounting; seats taken are always derived from request statuses.
package ride

import (
	"context"

	"campuspool/internal/types"
)

// Admission is a point-in-time capacity decision for one ride.
type Admission struct {
	Committed int
	Capacity  int
}

func (a Admission) Allowed() bool {
	return a.Committed < a.Capacity
}

func (a Admission) Remaining() int {
	if a.Committed >= a.Capacity {
		return 0
	}
	return a.Capacity - a.Committed
}

// Accountant never caches: every call re-counts at the store.
type Accountant struct {
	repo Repository
}

func NewAccountant(repo Repository) *Accountant {
	return &Accountant{repo: repo}
}

func (a *Accountant) Count(ctx context.Context, rideID types.ID, statuses []RequestStatus) (int, error) {
	return a.repo.CountRequests(ctx, rideID, statuses)
}

// Committed returns seats taken for display. A completed ride also counts
// completed requests so past trips report how many riders actually rode.
func (a *Accountant) Committed(ctx context.Context, r *Ride) (int, error) {
	return a.Count(ctx, r.ID, CommittedStatuses(r.Status))
}

// Admit evaluates whether one more request may take a seat on r.
func (a *Accountant) Admit(ctx context.Context, r *Ride) (Admission, error) {
	n, err := a.Count(ctx, r.ID, Committing)
	if err != nil {
		return Admission{}, err
	}
	return Admission{Committed: n, Capacity: r.AvailableSeats}, nil
}
