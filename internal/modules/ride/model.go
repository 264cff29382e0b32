// README: Ride and RideRequest aggregates, status definitions and the request state flow.
package ride

import (
	"fmt"
	"time"

	"campuspool/internal/types"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// ParseStatus converts a stored or wire value into a Status.
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusActive, StatusCompleted:
		return s, nil
	}
	return "", fmt.Errorf("unknown ride status %q", v)
}

type RequestStatus string

const (
	RequestNone      RequestStatus = "none"
	RequestRequested RequestStatus = "requested"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestOngoing   RequestStatus = "ongoing"
	RequestCompleted RequestStatus = "completed"
)

// ParseRequestStatus converts a stored or wire value into a RequestStatus.
func ParseRequestStatus(v string) (RequestStatus, error) {
	switch s := RequestStatus(v); s {
	case RequestRequested, RequestAccepted, RequestRejected, RequestOngoing, RequestCompleted:
		return s, nil
	}
	return "", fmt.Errorf("unknown request status %q", v)
}

const (
	MinSeats = 1
	MaxSeats = 10
)

type Ride struct {
	ID               types.ID
	DriverID         types.ID
	Source           string
	Destination      string
	SourcePoint      *types.Point
	DestinationPoint *types.Point
	Date             string
	Time             string
	AvailableSeats   int
	EstimatedCost    float64
	Status           Status
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

type Request struct {
	ID              types.ID
	RideID          types.ID
	RiderID         types.ID
	Status          RequestStatus
	StatusVersion   int
	Pin             string
	CreatedAt       time.Time
	AcceptedAt      *time.Time
	RejectedAt      *time.Time
	StartedAt       *time.Time
	ReachedSafelyAt *time.Time
	CompletedAt     *time.Time
}

// Event is one row of the request transition audit trail.
type Event struct {
	ID        int64
	RequestID types.ID
	RideID    types.ID
	From      RequestStatus
	To        RequestStatus
	ActorRole types.Role
	ActorID   *types.ID
	CreatedAt time.Time
}

// AllowedTransitions represents the request state flow (diagram) as code.
var AllowedTransitions = map[RequestStatus][]RequestStatus{
	RequestNone:      {RequestRequested},
	RequestRequested: {RequestAccepted, RequestRejected},
	RequestAccepted:  {RequestOngoing, RequestCompleted},
	RequestOngoing:   {RequestCompleted},
}

func CanTransition(from, to RequestStatus) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Committing statuses hold a seat while the ride is active.
var Committing = []RequestStatus{RequestAccepted, RequestOngoing}

// Occupying statuses count toward historical occupancy once the ride is completed.
var Occupying = []RequestStatus{RequestAccepted, RequestOngoing, RequestCompleted}

// CommittedStatuses returns the status set counted against a ride in the given state.
func CommittedStatuses(s Status) []RequestStatus {
	if s == StatusCompleted {
		return Occupying
	}
	return Committing
}

// Transition is a conditional status write: it only lands if the stored request
// is still at From with the given StatusVersion.
type Transition struct {
	RequestID types.ID
	RideID    types.ID
	From      RequestStatus
	To        RequestStatus
	Version   int
	At        time.Time
	Pin       string
}

// RidePatch carries a partial update; nil fields are left untouched.
type RidePatch struct {
	Source           *string
	Destination      *string
	SourcePoint      *types.Point
	DestinationPoint *types.Point
	Date             *string
	Time             *string
	AvailableSeats   *int
	EstimatedCost    *float64
}

func (p RidePatch) Empty() bool {
	return p.Source == nil && p.Destination == nil && p.SourcePoint == nil &&
		p.DestinationPoint == nil && p.Date == nil && p.Time == nil &&
		p.AvailableSeats == nil && p.EstimatedCost == nil
}

// Apply writes the patch onto r in place.
func (p RidePatch) Apply(r *Ride) {
	if p.Source != nil {
		r.Source = *p.Source
	}
	if p.Destination != nil {
		r.Destination = *p.Destination
	}
	if p.SourcePoint != nil {
		pt := *p.SourcePoint
		r.SourcePoint = &pt
	}
	if p.DestinationPoint != nil {
		pt := *p.DestinationPoint
		r.DestinationPoint = &pt
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.Time != nil {
		r.Time = *p.Time
	}
	if p.AvailableSeats != nil {
		r.AvailableSeats = *p.AvailableSeats
	}
	if p.EstimatedCost != nil {
		r.EstimatedCost = *p.EstimatedCost
	}
}

type RideFilter struct {
	DriverID    *types.ID
	Status      *Status
	Destination string
	Date        string
}

type RequestFilter struct {
	RideID   *types.ID
	RiderID  *types.ID
	DriverID *types.ID
	Statuses []RequestStatus
}

// CompletedRequest is one request force-completed by a ride close.
type CompletedRequest struct {
	ID   types.ID
	From RequestStatus
}

// CloseResult reports what a close write changed. Closed is false when the ride
// was already completed.
type CloseResult struct {
	Closed    bool
	Completed []CompletedRequest
}

// ArrivalResult reports a safe-arrival write. Applied is false when the request
// was no longer in the expected status and version. RideClosed is set when the
// same write also completed the ride.
type ArrivalResult struct {
	Applied    bool
	RideClosed bool
}
