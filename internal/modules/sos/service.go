// README: Safety escalation service: trigger by a trip participant, review/resolve by an administrator.
package sos

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"campuspool/internal/apperr"
	"campuspool/internal/events"
	"campuspool/internal/lock"
	"campuspool/internal/modules/location"
	"campuspool/internal/modules/ride"
	"campuspool/internal/observability"
	"campuspool/internal/types"
)

const maxMessageLen = 1000

// Trips is the slice of the ride store the SOS flow reads.
type Trips interface {
	GetRequest(ctx context.Context, id types.ID) (*ride.Request, error)
	GetRide(ctx context.Context, id types.ID) (*ride.Ride, error)
}

type Service struct {
	repo      Repository
	trips     Trips
	locker    lock.Locker
	publisher events.Publisher
	log       *logrus.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithLocker(l lock.Locker) Option         { return func(s *Service) { s.locker = l } }
func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }
func WithLogger(l *logrus.Logger) Option      { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option   { return func(s *Service) { s.now = now } }

func NewService(repo Repository, trips Trips, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		trips:     trips,
		locker:    lock.NewLocal(),
		publisher: events.Nop{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logrus.New()
		s.log.SetOutput(io.Discard)
	}
	return s
}

type TriggerCommand struct {
	Caller    types.Caller
	RequestID types.ID
	Location  *types.Point
	Message   string
}

// Trigger raises an escalation on an ongoing request. Only its rider or the
// ride's driver may raise one, and only one may be open at a time.
func (s *Service) Trigger(ctx context.Context, cmd TriggerCommand) (*Event, error) {
	if cmd.Location != nil && !cmd.Location.Valid() {
		return nil, apperr.InvalidArgument("coordinates out of range")
	}
	msg := strings.TrimSpace(cmd.Message)
	if len(msg) > maxMessageLen {
		return nil, apperr.InvalidArgument("message is too long")
	}

	req, err := s.trips.GetRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	r, err := s.trips.GetRide(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if cmd.Caller.ID != req.RiderID && cmd.Caller.ID != r.DriverID {
		return nil, apperr.Forbidden("only trip participants can raise an SOS")
	}

	unlock, err := s.locker.Lock(ctx, lock.RideKey(string(r.ID)))
	if err != nil {
		return nil, apperr.Unavailable("lock ride", err)
	}
	defer unlock()

	if req, err = s.trips.GetRequest(ctx, cmd.RequestID); err != nil {
		return nil, err
	}
	if req.Status != ride.RequestOngoing {
		return nil, apperr.Conflict("SOS can only be raised during an ongoing ride")
	}
	open, err := s.repo.List(ctx, Filter{RideRequestID: &req.ID, Statuses: Open})
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, apperr.Conflict("an SOS is already open for this ride")
	}

	e := &Event{
		ID:            types.NewID(),
		RideRequestID: req.ID,
		RideID:        r.ID,
		TriggeredBy:   cmd.Caller.ID,
		TriggeredRole: cmd.Caller.Role,
		Location:      cmd.Location,
		Message:       msg,
		Status:        StatusActive,
		CreatedAt:     s.now(),
	}
	if cmd.Location != nil {
		e.Geohash = location.Geohash(*cmd.Location)
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	observability.SOSEvents.WithLabelValues(string(StatusActive)).Inc()
	s.log.WithFields(logrus.Fields{
		"sos_id":     e.ID,
		"ride_id":    e.RideID,
		"request_id": e.RideRequestID,
		"actor_id":   e.TriggeredBy,
		"role":       e.TriggeredRole,
		"geohash":    e.Geohash,
	}).Warn("SOS triggered")
	s.publish(ctx, events.TypeSOSTriggered, e, cmd.Caller)
	return e, nil
}

// Review marks an active escalation as seen. Notes may be nil.
func (s *Service) Review(ctx context.Context, caller types.Caller, id types.ID, notes *string) (*Event, error) {
	return s.move(ctx, caller, id, StatusReviewed, notes)
}

// Resolve closes an escalation from active or reviewed. Nil notes keep what is stored.
func (s *Service) Resolve(ctx context.Context, caller types.Caller, id types.ID, notes *string) (*Event, error) {
	return s.move(ctx, caller, id, StatusResolved, notes)
}

func (s *Service) move(ctx context.Context, caller types.Caller, id types.ID, to Status, notes *string) (*Event, error) {
	if !caller.IsAdmin() {
		return nil, apperr.Forbidden("admin access required")
	}
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(e.Status, to) {
		return nil, apperr.Conflict("SOS event is already " + string(e.Status))
	}
	ok, err := s.repo.Transition(ctx, Change{
		ID:      e.ID,
		From:    e.Status,
		To:      to,
		At:      s.now(),
		Notes:   trimNotes(notes),
		AdminID: caller.ID,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("SOS event was updated concurrently")
	}
	updated, err := s.repo.Get(ctx, e.ID)
	if err != nil {
		return nil, err
	}

	observability.SOSEvents.WithLabelValues(string(to)).Inc()
	s.log.WithFields(logrus.Fields{
		"sos_id":   e.ID,
		"ride_id":  e.RideID,
		"from":     e.Status,
		"to":       to,
		"actor_id": caller.ID,
	}).Info("SOS status changed")
	typ := events.TypeSOSReviewed
	if to == StatusResolved {
		typ = events.TypeSOSResolved
	}
	s.publish(ctx, typ, updated, caller)
	return updated, nil
}

// MyActive lists the caller's own open escalations.
func (s *Service) MyActive(ctx context.Context, caller types.Caller) ([]*Event, error) {
	id := caller.ID
	return s.repo.List(ctx, Filter{TriggeredBy: &id, Statuses: Open})
}

// AdminList lists escalations, optionally by status, with dashboard counts.
func (s *Service) AdminList(ctx context.Context, caller types.Caller, status *Status) ([]*Event, Counts, error) {
	if !caller.IsAdmin() {
		return nil, Counts{}, apperr.Forbidden("admin access required")
	}
	var f Filter
	if status != nil {
		f.Statuses = []Status{*status}
	}
	list, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, Counts{}, err
	}
	counts, err := s.repo.Counts(ctx)
	if err != nil {
		return nil, Counts{}, err
	}
	return list, counts, nil
}

func (s *Service) Get(ctx context.Context, caller types.Caller, id types.ID) (*Event, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && e.TriggeredBy != caller.ID {
		return nil, apperr.Forbidden("you can only view your own SOS events")
	}
	return e, nil
}

func (s *Service) publish(ctx context.Context, typ string, e *Event, caller types.Caller) {
	err := s.publisher.Publish(ctx, events.Event{
		Type:      typ,
		RideID:    string(e.RideID),
		RequestID: string(e.RideRequestID),
		SOSID:     string(e.ID),
		To:        string(e.Status),
		ActorID:   string(caller.ID),
		ActorRole: string(caller.Role),
		At:        s.now(),
	})
	if err != nil {
		observability.PublishErrors.Inc()
		s.log.WithError(err).WithField("sos_id", e.ID).Warn("publish sos event")
	}
}

func trimNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	v := strings.TrimSpace(*notes)
	if v == "" {
		return nil
	}
	return &v
}
