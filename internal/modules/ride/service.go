// README: Ride lifecycle service: who may create, modify, close and delete a ride.
package ride

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"campuspool/internal/apperr"
	"campuspool/internal/events"
	"campuspool/internal/observability"
	"campuspool/internal/types"
)

type RideService struct {
	repo Repository
	acct *Accountant
	deps Deps
}

func NewRideService(repo Repository, acct *Accountant, deps Deps) *RideService {
	return &RideService{repo: repo, acct: acct, deps: deps.withDefaults()}
}

type CreateRideCommand struct {
	Caller           types.Caller
	Source           string
	Destination      string
	SourcePoint      *types.Point
	DestinationPoint *types.Point
	Date             string
	Time             string
	AvailableSeats   int
	EstimatedCost    float64
}

type UpdateRideCommand struct {
	Caller types.Caller
	RideID types.ID
	Patch  RidePatch
}

type DiscoverQuery struct {
	Destination string
	Date        string
}

func (s *RideService) Create(ctx context.Context, cmd CreateRideCommand) (*Ride, error) {
	if cmd.Caller.Role != types.RoleDriver || !cmd.Caller.IsVerified() {
		return nil, apperr.Forbidden("only verified drivers can create rides")
	}
	cmd.Source = strings.TrimSpace(cmd.Source)
	cmd.Destination = strings.TrimSpace(cmd.Destination)
	cmd.Date = strings.TrimSpace(cmd.Date)
	cmd.Time = strings.TrimSpace(cmd.Time)
	if cmd.Source == "" || cmd.Destination == "" || cmd.Date == "" || cmd.Time == "" {
		return nil, apperr.InvalidArgument("source, destination, date and time are required")
	}
	if err := validateSeats(cmd.AvailableSeats); err != nil {
		return nil, err
	}
	if err := validateCost(cmd.EstimatedCost); err != nil {
		return nil, err
	}
	if err := validatePoints(cmd.SourcePoint, cmd.DestinationPoint); err != nil {
		return nil, err
	}

	r := &Ride{
		ID:               types.NewID(),
		DriverID:         cmd.Caller.ID,
		Source:           cmd.Source,
		Destination:      cmd.Destination,
		SourcePoint:      cmd.SourcePoint,
		DestinationPoint: cmd.DestinationPoint,
		Date:             cmd.Date,
		Time:             cmd.Time,
		AvailableSeats:   cmd.AvailableSeats,
		EstimatedCost:    cmd.EstimatedCost,
		Status:           StatusActive,
		CreatedAt:        s.deps.Now(),
	}
	if err := s.repo.CreateRide(ctx, r); err != nil {
		return nil, err
	}
	s.deps.Log.WithFields(logrus.Fields{"ride_id": r.ID, "actor_id": r.DriverID}).Info("ride created")
	return r, nil
}

// Update applies a partial patch. Fields absent from the patch are left untouched.
func (s *RideService) Update(ctx context.Context, cmd UpdateRideCommand) (*Ride, error) {
	p := cmd.Patch
	if p.Empty() {
		return nil, apperr.InvalidArgument("no fields to update")
	}
	for _, f := range []**string{&p.Source, &p.Destination, &p.Date, &p.Time} {
		if *f == nil {
			continue
		}
		v := strings.TrimSpace(**f)
		if v == "" {
			return nil, apperr.InvalidArgument("source, destination, date and time cannot be blank")
		}
		*f = &v
	}
	if p.AvailableSeats != nil {
		if err := validateSeats(*p.AvailableSeats); err != nil {
			return nil, err
		}
	}
	if p.EstimatedCost != nil {
		if err := validateCost(*p.EstimatedCost); err != nil {
			return nil, err
		}
	}
	if err := validatePoints(p.SourcePoint, p.DestinationPoint); err != nil {
		return nil, err
	}

	unlock, err := s.deps.lockRide(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.repo.GetRide(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != cmd.Caller.ID {
		return nil, apperr.Forbidden("you can only update your own rides")
	}
	if err := s.repo.UpdateRide(ctx, r.ID, p); err != nil {
		return nil, err
	}
	s.deps.Log.WithFields(logrus.Fields{"ride_id": r.ID, "actor_id": cmd.Caller.ID}).Info("ride updated")
	return s.repo.GetRide(ctx, r.ID)
}

// Close completes the ride and force-completes every accepted or ongoing request.
// Closing an already completed ride is a no-op.
func (s *RideService) Close(ctx context.Context, caller types.Caller, rideID types.ID) (*Ride, error) {
	unlock, err := s.deps.lockRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != caller.ID {
		return nil, apperr.Forbidden("you can only complete your own rides")
	}
	if err := closeRide(ctx, s.repo, s.deps, r.ID, caller, "driver"); err != nil {
		return nil, err
	}
	return s.repo.GetRide(ctx, r.ID)
}

// Delete removes the ride and its requests. Owner or administrator only.
func (s *RideService) Delete(ctx context.Context, caller types.Caller, rideID types.ID) error {
	unlock, err := s.deps.lockRide(ctx, rideID)
	if err != nil {
		return err
	}
	defer unlock()

	r, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if r.DriverID != caller.ID && !caller.IsAdmin() {
		return apperr.Forbidden("you can only delete your own rides")
	}
	if err := s.repo.DeleteRide(ctx, r.ID); err != nil {
		return err
	}
	s.deps.Log.WithFields(logrus.Fields{"ride_id": r.ID, "actor_id": caller.ID}).Info("ride deleted")
	return nil
}

func (s *RideService) Get(ctx context.Context, rideID types.ID) (*Ride, error) {
	return s.repo.GetRide(ctx, rideID)
}

// Discover lists active rides with at least one free seat, newest first.
func (s *RideService) Discover(ctx context.Context, q DiscoverQuery) ([]*Ride, error) {
	active := StatusActive
	rides, err := s.repo.ListRides(ctx, RideFilter{
		Status:      &active,
		Destination: strings.TrimSpace(q.Destination),
		Date:        strings.TrimSpace(q.Date),
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Ride, 0, len(rides))
	for _, r := range rides {
		adm, err := s.acct.Admit(ctx, r)
		if err != nil {
			return nil, err
		}
		if adm.Allowed() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *RideService) ListByDriver(ctx context.Context, caller types.Caller) ([]*Ride, error) {
	if caller.Role != types.RoleDriver {
		return nil, apperr.Forbidden("only drivers have rides")
	}
	id := caller.ID
	return s.repo.ListRides(ctx, RideFilter{DriverID: &id})
}

func (s *RideService) ListAll(ctx context.Context, caller types.Caller) ([]*Ride, error) {
	if !caller.IsAdmin() {
		return nil, apperr.Forbidden("admin access required")
	}
	return s.repo.ListRides(ctx, RideFilter{})
}

// closeRide runs under the ride lock. by is "driver" for an explicit close and
// "auto" when the last committed request completed.
func closeRide(ctx context.Context, repo Repository, deps Deps, rideID types.ID, caller types.Caller, by string) error {
	at := deps.Now()
	res, err := repo.CloseRide(ctx, rideID, at)
	if err != nil {
		return err
	}
	if !res.Closed {
		return nil
	}
	announceClose(ctx, repo, deps, rideID, caller, by, at, res.Completed)
	return nil
}

// announceClose records a committed ride close: force-completed requests are
// audited first, then the close itself is counted, logged and published.
func announceClose(ctx context.Context, repo Repository, deps Deps, rideID types.ID, caller types.Caller, by string, at time.Time, completed []CompletedRequest) {
	observability.RidesClosed.WithLabelValues(by).Inc()
	deps.Log.WithFields(logrus.Fields{
		"ride_id":   rideID,
		"actor_id":  caller.ID,
		"by":        by,
		"completed": len(completed),
	}).Info("ride closed")

	for _, c := range completed {
		recordTransition(ctx, repo, deps, rideID, c.ID, c.From, RequestCompleted, caller, at)
	}
	deps.publish(ctx, events.Event{
		Type:      events.TypeRideClosed,
		RideID:    string(rideID),
		ActorID:   string(caller.ID),
		ActorRole: string(caller.Role),
		At:        at,
	})
}

func validateSeats(n int) error {
	if n < MinSeats || n > MaxSeats {
		return apperr.InvalidArgument("available seats must be between 1 and 10")
	}
	return nil
}

func validateCost(c float64) error {
	if c < 0 {
		return apperr.InvalidArgument("estimated cost cannot be negative")
	}
	return nil
}

func validatePoints(pts ...*types.Point) error {
	for _, p := range pts {
		if p != nil && !p.Valid() {
			return apperr.InvalidArgument("coordinates out of range")
		}
	}
	return nil
}
