// README: Record Store contract for rides and ride requests.
package ride

import (
	"context"
	"time"

	"campuspool/internal/types"
)

// Repository is implemented by the Postgres Store and the in-memory MemoryStore.
// Conditional writes report a lost race as (false, nil); capacity-guarded writes
// return apperr CapacityExceeded/Conflict so admission is atomic at the store too.
type Repository interface {
	CreateRide(ctx context.Context, r *Ride) error
	GetRide(ctx context.Context, id types.ID) (*Ride, error)
	ListRides(ctx context.Context, f RideFilter) ([]*Ride, error)
	UpdateRide(ctx context.Context, id types.ID, p RidePatch) error
	CloseRide(ctx context.Context, id types.ID, at time.Time) (CloseResult, error)
	DeleteRide(ctx context.Context, id types.ID) error

	CountRequests(ctx context.Context, rideID types.ID, statuses []RequestStatus) (int, error)
	FindRequest(ctx context.Context, rideID, riderID types.ID) (*Request, error)
	GetRequest(ctx context.Context, id types.ID) (*Request, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]*Request, error)

	// InsertRequest stores req if the ride is active, the (ride, rider) pair is new
	// and committed seats are below capacity, all evaluated atomically.
	InsertRequest(ctx context.Context, req *Request) error
	// AcceptRequest applies tr (requested -> accepted) only while committed seats
	// are below capacity, evaluated atomically with the write.
	AcceptRequest(ctx context.Context, tr Transition) error
	UpdateRequestStatus(ctx context.Context, tr Transition) (bool, error)
	// CompleteArrival applies tr (ongoing -> completed) and, when no accepted or
	// ongoing requests remain on the ride, completes the ride in the same write.
	CompleteArrival(ctx context.Context, tr Transition) (ArrivalResult, error)

	AppendEvent(ctx context.Context, e *Event) error
}
