// README: Ride request state machine: admission, accept/reject, PIN-gated start, safe arrival.
package ride

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"campuspool/internal/apperr"
	"campuspool/internal/events"
	"campuspool/internal/observability"
	"campuspool/internal/types"
)

// RequestService owns every request transition. All mutations against one ride
// run under that ride's lock, and every write is additionally conditional on the
// request's status and version at the store.
type RequestService struct {
	repo Repository
	acct *Accountant
	deps Deps
}

func NewRequestService(repo Repository, acct *Accountant, deps Deps) *RequestService {
	return &RequestService{repo: repo, acct: acct, deps: deps.withDefaults()}
}

func (s *RequestService) Create(ctx context.Context, caller types.Caller, rideID types.ID) (*Request, error) {
	if caller.Role != types.RoleRider || !caller.IsVerified() {
		return nil, apperr.Forbidden("only verified riders can request rides")
	}
	if rideID == "" {
		return nil, apperr.InvalidArgument("ride id is required")
	}

	unlock, err := s.deps.lockRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusActive {
		return nil, apperr.Conflict("this ride is no longer active")
	}
	existing, err := s.repo.FindRequest(ctx, r.ID, caller.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("you have already requested this ride")
	}
	adm, err := s.acct.Admit(ctx, r)
	if err != nil {
		return nil, err
	}
	if !adm.Allowed() {
		s.capacityRejected("create", r.ID, "", caller)
		return nil, apperr.CapacityExceeded("no seats available")
	}

	now := s.deps.Now()
	req := &Request{
		ID:        types.NewID(),
		RideID:    r.ID,
		RiderID:   caller.ID,
		Status:    RequestRequested,
		CreatedAt: now,
	}
	if err := s.repo.InsertRequest(ctx, req); err != nil {
		if errors.Is(err, apperr.ErrCapacityExceeded) {
			s.capacityRejected("create", r.ID, "", caller)
		}
		return nil, err
	}
	recordTransition(ctx, s.repo, s.deps, r.ID, req.ID, RequestNone, RequestRequested, caller, now)
	return req, nil
}

// Accept re-checks capacity at the instant of acceptance and issues the start PIN.
func (s *RequestService) Accept(ctx context.Context, caller types.Caller, requestID types.ID) (*Request, error) {
	req, r, unlock, err := s.lockForDriver(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if req.Status != RequestRequested {
		return nil, apperr.Conflict("request already processed")
	}
	if r.Status != StatusActive {
		return nil, apperr.Conflict("this ride is no longer active")
	}
	adm, err := s.acct.Admit(ctx, r)
	if err != nil {
		return nil, err
	}
	if !adm.Allowed() {
		s.capacityRejected("accept", r.ID, req.ID, caller)
		return nil, apperr.CapacityExceeded("no seats available")
	}

	pin, err := s.deps.Pins()
	if err != nil {
		return nil, err
	}
	now := s.deps.Now()
	err = s.repo.AcceptRequest(ctx, Transition{
		RequestID: req.ID,
		RideID:    r.ID,
		From:      RequestRequested,
		To:        RequestAccepted,
		Version:   req.StatusVersion,
		At:        now,
		Pin:       pin,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrCapacityExceeded):
			s.capacityRejected("accept", r.ID, req.ID, caller)
		case errors.Is(err, apperr.ErrConflict):
			s.lostRace("accept", req)
		}
		return nil, err
	}
	recordTransition(ctx, s.repo, s.deps, r.ID, req.ID, RequestRequested, RequestAccepted, caller, now)
	return s.repo.GetRequest(ctx, req.ID)
}

func (s *RequestService) Reject(ctx context.Context, caller types.Caller, requestID types.ID) (*Request, error) {
	req, _, unlock, err := s.lockForDriver(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if req.Status != RequestRequested {
		return nil, apperr.Conflict("request already processed")
	}
	if err := s.transition(ctx, caller, req, RequestRejected); err != nil {
		return nil, err
	}
	return s.repo.GetRequest(ctx, req.ID)
}

// Start moves an accepted request to ongoing once the rider's PIN matches exactly.
func (s *RequestService) Start(ctx context.Context, caller types.Caller, requestID types.ID, pin string) (*Request, error) {
	req, _, unlock, err := s.lockForDriver(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if pin == "" {
		return nil, apperr.InvalidArgument("pin is required")
	}

	switch req.Status {
	case RequestAccepted:
	case RequestOngoing:
		return nil, apperr.Conflict("ride already started")
	default:
		return nil, apperr.Conflict("request must be accepted first")
	}
	if pin != req.Pin {
		s.deps.Log.WithFields(logrus.Fields{
			"ride_id":    req.RideID,
			"request_id": req.ID,
			"actor_id":   caller.ID,
		}).Warn("start rejected: pin mismatch")
		return nil, apperr.InvalidPin("invalid PIN")
	}
	if err := s.transition(ctx, caller, req, RequestOngoing); err != nil {
		return nil, err
	}
	return s.repo.GetRequest(ctx, req.ID)
}

// MarkReachedSafely completes an ongoing request on the rider's word. When no
// accepted or ongoing requests remain the ride is closed by the same store write.
func (s *RequestService) MarkReachedSafely(ctx context.Context, caller types.Caller, requestID types.ID) (*Request, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RiderID != caller.ID {
		return nil, apperr.Forbidden("only the rider can confirm safe arrival")
	}
	unlock, err := s.deps.lockRide(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if req, err = s.repo.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	if req.Status != RequestOngoing {
		return nil, apperr.Conflict("ride is not in progress")
	}
	now := s.deps.Now()
	res, err := s.repo.CompleteArrival(ctx, Transition{
		RequestID: req.ID,
		RideID:    req.RideID,
		From:      RequestOngoing,
		To:        RequestCompleted,
		Version:   req.StatusVersion,
		At:        now,
	})
	if err != nil {
		return nil, err
	}
	if !res.Applied {
		s.lostRace(string(RequestCompleted), req)
		return nil, apperr.Conflict("request already processed")
	}
	recordTransition(ctx, s.repo, s.deps, req.RideID, req.ID, RequestOngoing, RequestCompleted, caller, now)
	if res.RideClosed {
		announceClose(ctx, s.repo, s.deps, req.RideID, caller, "auto", now, nil)
	}
	return s.repo.GetRequest(ctx, req.ID)
}

// Get returns a request visible to its rider, the ride's driver or an administrator.
func (s *RequestService) Get(ctx context.Context, caller types.Caller, requestID types.ID) (*Request, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RiderID == caller.ID || caller.IsAdmin() {
		return req, nil
	}
	r, err := s.repo.GetRide(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != caller.ID {
		return nil, apperr.Forbidden("you are not part of this ride")
	}
	return req, nil
}

func (s *RequestService) MyRequests(ctx context.Context, caller types.Caller) ([]*Request, error) {
	if caller.Role != types.RoleRider {
		return nil, apperr.Forbidden("only riders have ride requests")
	}
	id := caller.ID
	return s.repo.ListRequests(ctx, RequestFilter{RiderID: &id})
}

// PendingForDriver is the driver's inbox: requested entries across all their rides.
func (s *RequestService) PendingForDriver(ctx context.Context, caller types.Caller) ([]*Request, error) {
	if caller.Role != types.RoleDriver {
		return nil, apperr.Forbidden("only drivers have pending requests")
	}
	id := caller.ID
	return s.repo.ListRequests(ctx, RequestFilter{DriverID: &id, Statuses: []RequestStatus{RequestRequested}})
}

func (s *RequestService) ForRide(ctx context.Context, caller types.Caller, rideID types.ID) ([]*Request, error) {
	r, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != caller.ID && !caller.IsAdmin() {
		return nil, apperr.Forbidden("you can only view requests for your own rides")
	}
	return s.repo.ListRequests(ctx, RequestFilter{RideID: &r.ID})
}

// lockForDriver authorizes the ride's driver, takes the ride lock and returns
// fresh copies of the request and ride read under it.
func (s *RequestService) lockForDriver(ctx context.Context, caller types.Caller, requestID types.ID) (*Request, *Ride, func(), error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, nil, err
	}
	r, err := s.repo.GetRide(ctx, req.RideID)
	if err != nil {
		return nil, nil, nil, err
	}
	if r.DriverID != caller.ID {
		return nil, nil, nil, apperr.Forbidden("only the ride's driver can manage this request")
	}
	unlock, err := s.deps.lockRide(ctx, r.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	if req, err = s.repo.GetRequest(ctx, requestID); err != nil {
		unlock()
		return nil, nil, nil, err
	}
	if r, err = s.repo.GetRide(ctx, req.RideID); err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return req, r, unlock, nil
}

// transition performs one conditional write; losing the race is a Conflict.
func (s *RequestService) transition(ctx context.Context, caller types.Caller, req *Request, to RequestStatus) error {
	if !CanTransition(req.Status, to) {
		return apperr.Conflict("invalid state transition")
	}
	now := s.deps.Now()
	ok, err := s.repo.UpdateRequestStatus(ctx, Transition{
		RequestID: req.ID,
		RideID:    req.RideID,
		From:      req.Status,
		To:        to,
		Version:   req.StatusVersion,
		At:        now,
	})
	if err != nil {
		return err
	}
	if !ok {
		s.lostRace(string(to), req)
		return apperr.Conflict("request already processed")
	}
	recordTransition(ctx, s.repo, s.deps, req.RideID, req.ID, req.Status, to, caller, now)
	return nil
}

func (s *RequestService) capacityRejected(op string, rideID, requestID types.ID, caller types.Caller) {
	observability.CapacityRejections.WithLabelValues(op).Inc()
	s.deps.Log.WithFields(logrus.Fields{
		"ride_id":    rideID,
		"request_id": requestID,
		"actor_id":   caller.ID,
		"op":         op,
	}).Warn("capacity exceeded")
}

func (s *RequestService) lostRace(op string, req *Request) {
	observability.LostRaces.WithLabelValues(op).Inc()
	s.deps.Log.WithFields(logrus.Fields{
		"ride_id":    req.RideID,
		"request_id": req.ID,
		"from":       req.Status,
		"op":         op,
	}).Warn("conditional write lost race")
}

// recordTransition appends the audit row, logs and publishes a committed transition.
// Failures here never undo the write.
func recordTransition(ctx context.Context, repo Repository, deps Deps, rideID, requestID types.ID, from, to RequestStatus, caller types.Caller, at time.Time) {
	actor := caller.ID
	fields := logrus.Fields{
		"ride_id":    rideID,
		"request_id": requestID,
		"from":       from,
		"to":         to,
		"actor_id":   actor,
	}
	if err := repo.AppendEvent(ctx, &Event{
		RequestID: requestID,
		RideID:    rideID,
		From:      from,
		To:        to,
		ActorRole: caller.Role,
		ActorID:   &actor,
		CreatedAt: at,
	}); err != nil {
		deps.Log.WithFields(fields).WithError(err).Error("append request event")
	}
	observability.RequestTransitions.WithLabelValues(string(from), string(to)).Inc()
	deps.Log.WithFields(fields).Info("request transition")
	deps.publish(ctx, events.Event{
		Type:      events.TypeRequestTransition,
		RideID:    string(rideID),
		RequestID: string(requestID),
		From:      string(from),
		To:        string(to),
		ActorID:   string(actor),
		ActorRole: string(caller.Role),
		At:        at,
	})
}
