package view

import "math"

// SeatsAvailable never goes negative even if capacity was lowered under load.
func SeatsAvailable(capacity, committed int) int {
	if committed >= capacity {
		return 0
	}
	return capacity - committed
}

// CostPerRider splits the trip cost between committed riders and the driver.
// With nobody committed the full estimate is shown.
func CostPerRider(estimated float64, committed int) float64 {
	if committed <= 0 {
		return round2(estimated)
	}
	return round2(estimated / float64(committed+1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
