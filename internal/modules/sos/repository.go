package sos

import (
	"context"

	"campuspool/internal/types"
)

type Repository interface {
	// Create stores e unless the request already has an open event (Conflict).
	Create(ctx context.Context, e *Event) error
	Get(ctx context.Context, id types.ID) (*Event, error)
	List(ctx context.Context, f Filter) ([]*Event, error)
	Counts(ctx context.Context) (Counts, error)
	Transition(ctx context.Context, c Change) (bool, error)
}
