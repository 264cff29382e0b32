// README: Per-key mutual exclusion used to serialise mutations against one ride.
package lock

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out an exclusive hold on key until the returned unlock is called.
// unlock is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// RideKey is the lock key guarding every mutation against one ride.
func RideKey(rideID string) string {
	return fmt.Sprintf("campuspool:lock:ride:%s", rideID)
}
