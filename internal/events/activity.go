// Package events defines the payloads published for downstream consumers.
package events

import "time"

// Event type and topic identifiers used by the outbox.
const (
	TypeActivityLogged  = "activity.logged"
	TopicActivityEvents = "activity_events"
)

// ActivityLogged represents the message emitted when an activity and its
// reward have been committed.
type ActivityLogged struct {
	ActivityID    string    `json:"activity_id"`
	UserID        string    `json:"user_id"`
	ActivityType  string    `json:"activity_type"`
	DistanceMiles float64   `json:"distance_miles"`
	CO2SavedKG    float64   `json:"co2_saved_kg"`
	PointsEarned  int64     `json:"points_earned"`
	LoggedAt      time.Time `json:"logged_at"`
}
