// README: Lifecycle event stream; transitions are published best-effort after commit.
package events

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TypeRequestTransition = "ride_request.transition"
	TypeRideClosed        = "ride.closed"
	TypeSOSTriggered      = "sos.triggered"
	TypeSOSReviewed       = "sos.reviewed"
	TypeSOSResolved       = "sos.resolved"
)

type Event struct {
	Type      string    `json:"type"`
	RideID    string    `json:"ride_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	SOSID     string    `json:"sos_id,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	ActorRole string    `json:"actor_role,omitempty"`
	At        time.Time `json:"at"`
}

// Key partitions the stream so every event of one ride stays ordered.
func (e Event) Key() string {
	if e.RideID != "" {
		return e.RideID
	}
	return e.SOSID
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
