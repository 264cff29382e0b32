package ride

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"campuspool/internal/types"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from RequestStatus
		to   RequestStatus
		ok   bool
	}{
		{RequestNone, RequestRequested, true},
		{RequestRequested, RequestAccepted, true},
		{RequestRequested, RequestRejected, true},
		{RequestAccepted, RequestOngoing, true},
		{RequestAccepted, RequestCompleted, true},
		{RequestOngoing, RequestCompleted, true},

		{RequestRequested, RequestOngoing, false},
		{RequestRequested, RequestCompleted, false},
		{RequestAccepted, RequestRejected, false},
		{RequestAccepted, RequestRequested, false},
		{RequestOngoing, RequestAccepted, false},
		{RequestRejected, RequestAccepted, false},
		{RequestCompleted, RequestOngoing, false},
		{RequestNone, RequestAccepted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	_, err := ParseRequestStatus("cancelled")
	assert.Error(t, err)
	_, err = ParseRequestStatus("none")
	assert.Error(t, err)
	s, err := ParseRequestStatus("ongoing")
	assert.NoError(t, err)
	assert.Equal(t, RequestOngoing, s)

	_, err = ParseStatus("paused")
	assert.Error(t, err)
}

func TestCommittedStatusesByRideState(t *testing.T) {
	assert.ElementsMatch(t, []RequestStatus{RequestAccepted, RequestOngoing}, CommittedStatuses(StatusActive))
	assert.ElementsMatch(t, []RequestStatus{RequestAccepted, RequestOngoing, RequestCompleted}, CommittedStatuses(StatusCompleted))
}

func TestRidePatchApplyLeavesAbsentFields(t *testing.T) {
	r := &Ride{Source: "A", Destination: "B", Date: "2025-03-02", Time: "08:00", AvailableSeats: 3, EstimatedCost: 90}
	seats := 4
	dest := "C"
	p := RidePatch{Destination: &dest, AvailableSeats: &seats, DestinationPoint: &types.Point{Lat: 1, Lng: 2}}
	assert.False(t, p.Empty())
	p.Apply(r)

	assert.Equal(t, "A", r.Source)
	assert.Equal(t, "C", r.Destination)
	assert.Equal(t, 4, r.AvailableSeats)
	assert.Equal(t, 90.0, r.EstimatedCost)
	assert.Equal(t, "08:00", r.Time)
	assert.Equal(t, &types.Point{Lat: 1, Lng: 2}, r.DestinationPoint)
	assert.True(t, RidePatch{}.Empty())
}

func TestAdmission(t *testing.T) {
	assert.True(t, Admission{Committed: 1, Capacity: 2}.Allowed())
	assert.False(t, Admission{Committed: 2, Capacity: 2}.Allowed())
	assert.Equal(t, 0, Admission{Committed: 3, Capacity: 2}.Remaining())
	assert.Equal(t, 2, Admission{Committed: 1, Capacity: 3}.Remaining())
}

func TestRandomPinRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		pin, err := RandomPin()
		assert.NoError(t, err)
		assert.Len(t, pin, 4)
		assert.GreaterOrEqual(t, pin, "1000")
		assert.LessOrEqual(t, pin, "9999")
	}
}
