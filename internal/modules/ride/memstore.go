// README: In-memory Record Store for single-instance deployments and tests.
package ride

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"campuspool/internal/apperr"
	"campuspool/internal/types"
)

// MemoryStore keeps rides and requests in maps guarded by one RWMutex. Every
// method copies records in and out so callers never alias stored state.
type MemoryStore struct {
	mu       sync.RWMutex
	rides    map[types.ID]*Ride
	requests map[types.ID]*Request
	events   []Event
	nextEvt  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:    make(map[types.ID]*Ride),
		requests: make(map[types.ID]*Request),
	}
}

func (m *MemoryStore) CreateRide(_ context.Context, r *Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return apperr.Conflict("ride already exists")
	}
	m.rides[r.ID] = cloneRide(r)
	return nil
}

func (m *MemoryStore) GetRide(_ context.Context, id types.ID) (*Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, apperr.NotFound("ride not found")
	}
	return cloneRide(r), nil
}

func (m *MemoryStore) ListRides(_ context.Context, f RideFilter) ([]*Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dest := strings.ToLower(f.Destination)
	out := make([]*Ride, 0)
	for _, r := range m.rides {
		if f.DriverID != nil && r.DriverID != *f.DriverID {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if dest != "" && !strings.Contains(strings.ToLower(r.Destination), dest) {
			continue
		}
		if f.Date != "" && r.Date != f.Date {
			continue
		}
		out = append(out, cloneRide(r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) UpdateRide(_ context.Context, id types.ID, p RidePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return apperr.NotFound("ride not found")
	}
	if r.Status != StatusActive {
		return apperr.Conflict("ride is no longer active")
	}
	if p.AvailableSeats != nil && *p.AvailableSeats < m.countLocked(id, Committing) {
		return apperr.Conflict("seats cannot drop below accepted riders")
	}
	p.Apply(r)
	return nil
}

func (m *MemoryStore) CloseRide(_ context.Context, id types.ID, at time.Time) (CloseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return CloseResult{}, apperr.NotFound("ride not found")
	}
	if r.Status == StatusCompleted {
		return CloseResult{}, nil
	}
	r.Status = StatusCompleted
	t := at
	r.CompletedAt = &t

	res := CloseResult{Closed: true}
	for _, req := range m.requests {
		if req.RideID != id || !statusIn(req.Status, Committing) {
			continue
		}
		res.Completed = append(res.Completed, CompletedRequest{ID: req.ID, From: req.Status})
		req.Status = RequestCompleted
		req.StatusVersion++
		ct := at
		req.CompletedAt = &ct
	}
	sort.Slice(res.Completed, func(i, j int) bool { return res.Completed[i].ID < res.Completed[j].ID })
	return res, nil
}

func (m *MemoryStore) DeleteRide(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[id]; !ok {
		return apperr.NotFound("ride not found")
	}
	delete(m.rides, id)
	for rid, req := range m.requests {
		if req.RideID == id {
			delete(m.requests, rid)
		}
	}
	return nil
}

func (m *MemoryStore) CountRequests(_ context.Context, rideID types.ID, statuses []RequestStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLocked(rideID, statuses), nil
}

func (m *MemoryStore) FindRequest(_ context.Context, rideID, riderID types.ID) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if req := m.findLocked(rideID, riderID); req != nil {
		return cloneRequest(req), nil
	}
	return nil, nil
}

func (m *MemoryStore) GetRequest(_ context.Context, id types.ID) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, apperr.NotFound("request not found")
	}
	return cloneRequest(req), nil
}

func (m *MemoryStore) ListRequests(_ context.Context, f RequestFilter) ([]*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Request, 0)
	for _, req := range m.requests {
		if f.RideID != nil && req.RideID != *f.RideID {
			continue
		}
		if f.RiderID != nil && req.RiderID != *f.RiderID {
			continue
		}
		if f.DriverID != nil {
			r, ok := m.rides[req.RideID]
			if !ok || r.DriverID != *f.DriverID {
				continue
			}
		}
		if len(f.Statuses) > 0 && !statusIn(req.Status, f.Statuses) {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) InsertRequest(_ context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[req.RideID]
	if !ok {
		return apperr.NotFound("ride not found")
	}
	if r.Status != StatusActive {
		return apperr.Conflict("this ride is no longer active")
	}
	if m.findLocked(req.RideID, req.RiderID) != nil {
		return apperr.Conflict("you have already requested this ride")
	}
	if m.countLocked(req.RideID, Committing) >= r.AvailableSeats {
		return apperr.CapacityExceeded("no seats available")
	}
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *MemoryStore) AcceptRequest(_ context.Context, tr Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[tr.RequestID]
	if !ok {
		return apperr.NotFound("request not found")
	}
	if req.Status != RequestRequested || req.StatusVersion != tr.Version {
		return apperr.Conflict("request already processed")
	}
	r, ok := m.rides[req.RideID]
	if !ok {
		return apperr.NotFound("ride not found")
	}
	if r.Status != StatusActive {
		return apperr.Conflict("this ride is no longer active")
	}
	if m.countLocked(req.RideID, Committing) >= r.AvailableSeats {
		return apperr.CapacityExceeded("no seats available")
	}
	m.applyLocked(req, tr)
	return nil
}

func (m *MemoryStore) UpdateRequestStatus(_ context.Context, tr Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[tr.RequestID]
	if !ok {
		return false, apperr.NotFound("request not found")
	}
	if req.Status != tr.From || req.StatusVersion != tr.Version {
		return false, nil
	}
	m.applyLocked(req, tr)
	return true, nil
}

func (m *MemoryStore) CompleteArrival(_ context.Context, tr Transition) (ArrivalResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[tr.RequestID]
	if !ok {
		return ArrivalResult{}, apperr.NotFound("request not found")
	}
	if req.Status != tr.From || req.StatusVersion != tr.Version {
		return ArrivalResult{}, nil
	}
	m.applyLocked(req, tr)

	res := ArrivalResult{Applied: true}
	r, ok := m.rides[req.RideID]
	if ok && r.Status == StatusActive && m.countLocked(r.ID, Committing) == 0 {
		r.Status = StatusCompleted
		at := tr.At
		r.CompletedAt = &at
		res.RideClosed = true
	}
	return res, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEvt++
	ev := *e
	ev.ID = m.nextEvt
	m.events = append(m.events, ev)
	return nil
}

// Events returns the audit trail for one request in append order.
func (m *MemoryStore) Events(requestID types.ID) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryStore) applyLocked(req *Request, tr Transition) {
	at := tr.At
	req.Status = tr.To
	req.StatusVersion++
	switch tr.To {
	case RequestAccepted:
		req.Pin = tr.Pin
		req.AcceptedAt = &at
	case RequestRejected:
		req.RejectedAt = &at
	case RequestOngoing:
		req.StartedAt = &at
	case RequestCompleted:
		if tr.From == RequestOngoing {
			req.ReachedSafelyAt = &at
		}
		req.CompletedAt = &at
	}
}

func (m *MemoryStore) countLocked(rideID types.ID, statuses []RequestStatus) int {
	n := 0
	for _, req := range m.requests {
		if req.RideID == rideID && statusIn(req.Status, statuses) {
			n++
		}
	}
	return n
}

func (m *MemoryStore) findLocked(rideID, riderID types.ID) *Request {
	for _, req := range m.requests {
		if req.RideID == rideID && req.RiderID == riderID {
			return req
		}
	}
	return nil
}

func statusIn(s RequestStatus, set []RequestStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func cloneRide(r *Ride) *Ride {
	c := *r
	if r.SourcePoint != nil {
		p := *r.SourcePoint
		c.SourcePoint = &p
	}
	if r.DestinationPoint != nil {
		p := *r.DestinationPoint
		c.DestinationPoint = &p
	}
	c.CompletedAt = cloneTime(r.CompletedAt)
	return &c
}

func cloneRequest(r *Request) *Request {
	c := *r
	c.AcceptedAt = cloneTime(r.AcceptedAt)
	c.RejectedAt = cloneTime(r.RejectedAt)
	c.StartedAt = cloneTime(r.StartedAt)
	c.ReachedSafelyAt = cloneTime(r.ReachedSafelyAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
