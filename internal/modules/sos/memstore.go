package sos

import (
	"context"
	"sort"
	"sync"

	"campuspool/internal/apperr"
	"campuspool/internal/types"
)

type MemoryStore struct {
	mu     sync.RWMutex
	events map[types.ID]*Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[types.ID]*Event)}
}

func (m *MemoryStore) Create(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.events {
		if cur.RideRequestID == e.RideRequestID && statusIn(cur.Status, Open) {
			return apperr.Conflict("an SOS is already open for this ride")
		}
	}
	m.events[e.ID] = clone(e)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, apperr.NotFound("SOS event not found")
	}
	return clone(e), nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Event, 0)
	for _, e := range m.events {
		if f.RideRequestID != nil && e.RideRequestID != *f.RideRequestID {
			continue
		}
		if f.TriggeredBy != nil && e.TriggeredBy != *f.TriggeredBy {
			continue
		}
		if len(f.Statuses) > 0 && !statusIn(e.Status, f.Statuses) {
			continue
		}
		out = append(out, clone(e))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Counts(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var c Counts
	for _, e := range m.events {
		c.add(e.Status, 1)
	}
	return c, nil
}

func (m *MemoryStore) Transition(_ context.Context, c Change) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[c.ID]
	if !ok {
		return false, apperr.NotFound("SOS event not found")
	}
	if e.Status != c.From {
		return false, nil
	}
	at := c.At
	e.Status = c.To
	if c.Notes != nil {
		n := *c.Notes
		e.AdminNotes = &n
	}
	switch c.To {
	case StatusReviewed:
		e.ReviewedAt = &at
	case StatusResolved:
		e.ResolvedAt = &at
		admin := c.AdminID
		e.ResolvedBy = &admin
	}
	return true, nil
}

func statusIn(s Status, set []Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func clone(e *Event) *Event {
	c := *e
	if e.Location != nil {
		p := *e.Location
		c.Location = &p
	}
	if e.AdminNotes != nil {
		n := *e.AdminNotes
		c.AdminNotes = &n
	}
	if e.ReviewedAt != nil {
		t := *e.ReviewedAt
		c.ReviewedAt = &t
	}
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		c.ResolvedAt = &t
	}
	if e.ResolvedBy != nil {
		id := *e.ResolvedBy
		c.ResolvedBy = &id
	}
	return &c
}
