package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitiesLogged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecolog",
		Subsystem: "rewards",
		Name:      "activities_logged_total",
		Help:      "Activities committed to Postgres, by activity type.",
	}, []string{"activity_type"})
	co2Saved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecolog",
		Subsystem: "rewards",
		Name:      "co2_saved_kg_total",
		Help:      "Total CO2 savings credited across all users.",
	})
	drawsServed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecolog",
		Subsystem: "draw",
		Name:      "requests_total",
		Help:      "Numeric draws served by the public endpoint.",
	})
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecolog",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(activitiesLogged, co2Saved, drawsServed, activityPersistGauge)
}

// RecordActivityLogged counts a committed activity and its CO2 credit.
func RecordActivityLogged(activityType string, co2KG float64) {
	activitiesLogged.WithLabelValues(activityType).Inc()
	co2Saved.Add(co2KG)
}

// RecordDrawServed counts a served draw.
func RecordDrawServed() {
	drawsServed.Inc()
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}
