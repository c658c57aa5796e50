package domain

import "time"

// ActivityType identifies the kind of logged eco-action.
type ActivityType string

const (
	ActivityWalk  ActivityType = "walk"
	ActivityCycle ActivityType = "cycle"
)

// Valid reports whether the type is one the service accepts.
func (t ActivityType) Valid() bool {
	return t == ActivityWalk || t == ActivityCycle
}

// Activity is the immutable record of one logged walk or cycle.
type Activity struct {
	ID            string
	UserID        string
	Type          ActivityType
	DistanceMiles float64
	CO2SavedKG    float64
	CreatedAt     time.Time
}

// UserStats holds the per-user running totals. Points grow by exactly one
// per recorded activity; CO2SavedKG accumulates each activity's savings.
// The totals must always equal what the activity log implies, which the
// repository guarantees by recording activity and increment together.
type UserStats struct {
	UserID     string
	Points     int64
	CO2SavedKG float64
	UpdatedAt  time.Time
}

// Cursor models the pagination token for activity listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
