package ride

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"campuspool/internal/apperr"
	"campuspool/internal/events"
	"campuspool/internal/lock"
	"campuspool/internal/observability"
	"campuspool/internal/types"
)

// Deps are the collaborators shared by RideService and RequestService.
// Zero values are replaced with in-process defaults.
type Deps struct {
	Locker    lock.Locker
	Publisher events.Publisher
	Log       *logrus.Logger
	Now       func() time.Time
	Pins      PinGenerator
}

func (d Deps) withDefaults() Deps {
	if d.Locker == nil {
		d.Locker = lock.NewLocal()
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.Log == nil {
		d.Log = logrus.New()
		d.Log.SetOutput(io.Discard)
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Pins == nil {
		d.Pins = RandomPin
	}
	return d
}

func (d Deps) lockRide(ctx context.Context, rideID types.ID) (func(), error) {
	unlock, err := d.Locker.Lock(ctx, lock.RideKey(string(rideID)))
	if err != nil {
		d.Log.WithError(err).WithField("ride_id", rideID).Error("acquire ride lock")
		return nil, apperr.Unavailable("lock ride", err)
	}
	return unlock, nil
}

// publish never fails the caller; the committed write is the source of truth.
func (d Deps) publish(ctx context.Context, e events.Event) {
	if err := d.Publisher.Publish(ctx, e); err != nil {
		observability.PublishErrors.Inc()
		d.Log.WithError(err).WithField("type", e.Type).Warn("publish lifecycle event")
	}
}
