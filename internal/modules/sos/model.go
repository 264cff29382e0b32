// README: SOS escalation raised during an ongoing ride request and its admin review flow.
package sos

import (
	"fmt"
	"time"

	"campuspool/internal/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusReviewed Status = "reviewed"
	StatusResolved Status = "resolved"
)

func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusActive, StatusReviewed, StatusResolved:
		return s, nil
	}
	return "", fmt.Errorf("unknown sos status %q", v)
}

// Open statuses block a new escalation on the same request.
var Open = []Status{StatusActive, StatusReviewed}

// AllowedTransitions: reviewed is optional, an active event may be resolved directly.
var AllowedTransitions = map[Status][]Status{
	StatusActive:   {StatusReviewed, StatusResolved},
	StatusReviewed: {StatusResolved},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Event struct {
	ID            types.ID
	RideRequestID types.ID
	RideID        types.ID
	TriggeredBy   types.ID
	TriggeredRole types.Role
	Location      *types.Point
	Geohash       string
	Message       string
	Status        Status
	AdminNotes    *string
	CreatedAt     time.Time
	ReviewedAt    *time.Time
	ResolvedAt    *time.Time
	ResolvedBy    *types.ID
}

// Change is a conditional status write that lands only while the event is at From.
// Notes nil keeps the stored notes.
type Change struct {
	ID      types.ID
	From    Status
	To      Status
	At      time.Time
	Notes   *string
	AdminID types.ID
}

type Filter struct {
	RideRequestID *types.ID
	TriggeredBy   *types.ID
	Statuses      []Status
}

// Counts aggregates events by status for the admin dashboard.
type Counts struct {
	Active   int `json:"active"`
	Reviewed int `json:"reviewed"`
	Resolved int `json:"resolved"`
	Total    int `json:"total"`
}

func (c *Counts) add(s Status, n int) {
	switch s {
	case StatusActive:
		c.Active += n
	case StatusReviewed:
		c.Reviewed += n
	case StatusResolved:
		c.Resolved += n
	}
	c.Total += n
}
