// README: Presentation views; derived fields are computed from current records and never stored.
package view

import (
	"context"
	"errors"
	"time"

	"campuspool/internal/apperr"
	"campuspool/internal/modules/location"
	"campuspool/internal/modules/ride"
	"campuspool/internal/modules/sos"
	"campuspool/internal/types"
)

type RideView struct {
	ID               types.ID     `json:"id"`
	DriverID         types.ID     `json:"driver_id"`
	Source           string       `json:"source"`
	Destination      string       `json:"destination"`
	SourcePoint      *types.Point `json:"source_point,omitempty"`
	DestinationPoint *types.Point `json:"destination_point,omitempty"`
	Date             string       `json:"date"`
	Time             string       `json:"time"`
	AvailableSeats   int          `json:"available_seats"`
	SeatsAvailable   int          `json:"seats_available"`
	SeatsTaken       int          `json:"seats_taken"`
	EstimatedCost    float64      `json:"estimated_cost"`
	CostPerRider     float64      `json:"cost_per_rider"`
	Status           ride.Status  `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

type RequestView struct {
	ID              types.ID           `json:"id"`
	RideID          types.ID           `json:"ride_id"`
	RiderID         types.ID           `json:"rider_id"`
	Status          ride.RequestStatus `json:"status"`
	Pin             string             `json:"ride_pin,omitempty"`
	RideSource      string             `json:"ride_source"`
	RideDestination string             `json:"ride_destination"`
	RideDate        string             `json:"ride_date"`
	RideTime        string             `json:"ride_time"`
	CreatedAt       time.Time          `json:"created_at"`
	AcceptedAt      *time.Time         `json:"accepted_at,omitempty"`
	RejectedAt      *time.Time         `json:"rejected_at,omitempty"`
	StartedAt       *time.Time         `json:"ride_started_at,omitempty"`
	ReachedSafelyAt *time.Time         `json:"reached_safely_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	ETA             *time.Time         `json:"eta,omitempty"`
}

type SOSView struct {
	ID                   types.ID     `json:"id"`
	RideRequestID        types.ID     `json:"ride_request_id"`
	RideID               types.ID     `json:"ride_id"`
	TriggeredBy          types.ID     `json:"triggered_by"`
	TriggeredRole        types.Role   `json:"triggered_role"`
	Location             *types.Point `json:"location,omitempty"`
	Geohash              string       `json:"geohash,omitempty"`
	DistanceFromPickupKm *float64     `json:"distance_from_pickup_km,omitempty"`
	Message              string       `json:"message,omitempty"`
	Status               sos.Status   `json:"status"`
	AdminNotes           *string      `json:"admin_notes"`
	CreatedAt            time.Time    `json:"created_at"`
	ReviewedAt           *time.Time   `json:"reviewed_at,omitempty"`
	ResolvedAt           *time.Time   `json:"resolved_at,omitempty"`
	ResolvedBy           *types.ID    `json:"resolved_by,omitempty"`
}

// Rides is the read side the composer needs.
type Rides interface {
	GetRide(ctx context.Context, id types.ID) (*ride.Ride, error)
}

type Composer struct {
	acct  *ride.Accountant
	rides Rides
}

func NewComposer(acct *ride.Accountant, rides Rides) *Composer {
	return &Composer{acct: acct, rides: rides}
}

func (c *Composer) Ride(ctx context.Context, r *ride.Ride) (RideView, error) {
	committed, err := c.acct.Committed(ctx, r)
	if err != nil {
		return RideView{}, err
	}
	return RideView{
		ID:               r.ID,
		DriverID:         r.DriverID,
		Source:           r.Source,
		Destination:      r.Destination,
		SourcePoint:      r.SourcePoint,
		DestinationPoint: r.DestinationPoint,
		Date:             r.Date,
		Time:             r.Time,
		AvailableSeats:   r.AvailableSeats,
		SeatsAvailable:   SeatsAvailable(r.AvailableSeats, committed),
		SeatsTaken:       committed,
		EstimatedCost:    r.EstimatedCost,
		CostPerRider:     CostPerRider(r.EstimatedCost, committed),
		Status:           r.Status,
		CreatedAt:        r.CreatedAt,
		CompletedAt:      r.CompletedAt,
	}, nil
}

func (c *Composer) Rides(ctx context.Context, rs []*ride.Ride) ([]RideView, error) {
	out := make([]RideView, 0, len(rs))
	for _, r := range rs {
		v, err := c.Ride(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Request renders req for viewer. The PIN is shown only to the rider and the
// driver of this pairing.
func (c *Composer) Request(ctx context.Context, viewer types.Caller, req *ride.Request) (RequestView, error) {
	v := RequestView{
		ID:              req.ID,
		RideID:          req.RideID,
		RiderID:         req.RiderID,
		Status:          req.Status,
		CreatedAt:       req.CreatedAt,
		AcceptedAt:      req.AcceptedAt,
		RejectedAt:      req.RejectedAt,
		StartedAt:       req.StartedAt,
		ReachedSafelyAt: req.ReachedSafelyAt,
		CompletedAt:     req.CompletedAt,
	}
	r, err := c.rides.GetRide(ctx, req.RideID)
	if errors.Is(err, apperr.ErrNotFound) {
		return v, nil
	}
	if err != nil {
		return RequestView{}, err
	}
	v.RideSource = r.Source
	v.RideDestination = r.Destination
	v.RideDate = r.Date
	v.RideTime = r.Time
	if viewer.ID == req.RiderID || viewer.ID == r.DriverID {
		v.Pin = req.Pin
	}
	if req.Status == ride.RequestOngoing {
		v.ETA = ETA(req.StartedAt, r.Source, r.Destination)
	}
	return v, nil
}

func (c *Composer) Requests(ctx context.Context, viewer types.Caller, reqs []*ride.Request) ([]RequestView, error) {
	out := make([]RequestView, 0, len(reqs))
	for _, req := range reqs {
		v, err := c.Request(ctx, viewer, req)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SOS adds the distance between the reported position and the ride's pickup
// point when both are known.
func (c *Composer) SOS(ctx context.Context, e *sos.Event) (SOSView, error) {
	v := SOSView{
		ID:            e.ID,
		RideRequestID: e.RideRequestID,
		RideID:        e.RideID,
		TriggeredBy:   e.TriggeredBy,
		TriggeredRole: e.TriggeredRole,
		Location:      e.Location,
		Geohash:       e.Geohash,
		Message:       e.Message,
		Status:        e.Status,
		AdminNotes:    e.AdminNotes,
		CreatedAt:     e.CreatedAt,
		ReviewedAt:    e.ReviewedAt,
		ResolvedAt:    e.ResolvedAt,
		ResolvedBy:    e.ResolvedBy,
	}
	if e.Location == nil {
		return v, nil
	}
	r, err := c.rides.GetRide(ctx, e.RideID)
	if errors.Is(err, apperr.ErrNotFound) {
		return v, nil
	}
	if err != nil {
		return SOSView{}, err
	}
	if km, ok := location.DistanceKm(r.SourcePoint, e.Location); ok {
		km = round2(km)
		v.DistanceFromPickupKm = &km
	}
	return v, nil
}

func (c *Composer) SOSList(ctx context.Context, es []*sos.Event) ([]SOSView, error) {
	out := make([]SOSView, 0, len(es))
	for _, e := range es {
		v, err := c.SOS(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
