package domain

import (
	"errors"
	"math"
)

// CO2PerMileKG is the savings credited per mile, regardless of whether
// the user walked or cycled.
const CO2PerMileKG = 0.4

// PointsPerActivity is the flat score awarded per recorded activity,
// independent of distance.
const PointsPerActivity = 1

var (
	// ErrInvalidDistance rejects non-positive or non-finite distances.
	ErrInvalidDistance = errors.New("distance must be a positive finite number of miles")
	// ErrInvalidActivityType rejects anything other than walk or cycle.
	ErrInvalidActivityType = errors.New("activity type must be walk or cycle")
)

// Reward is the derived outcome of one activity.
type Reward struct {
	CO2SavedKG float64
	Points     int64
}

// ComputeReward maps an activity to its derived metrics. It is pure:
// no storage is touched, and invalid input fails before any caller
// attempts persistence.
func ComputeReward(activityType ActivityType, distanceMiles float64) (Reward, error) {
	if !activityType.Valid() {
		return Reward{}, ErrInvalidActivityType
	}
	if math.IsNaN(distanceMiles) || math.IsInf(distanceMiles, 0) || distanceMiles <= 0 {
		return Reward{}, ErrInvalidDistance
	}

	return Reward{
		CO2SavedKG: distanceMiles * CO2PerMileKG,
		Points:     PointsPerActivity,
	}, nil
}
