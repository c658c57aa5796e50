package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/ecolog/internal/domain"
	"example.com/ecolog/internal/events"
	"example.com/ecolog/internal/observability"
)

// Repository provides Postgres-backed persistence for activities, user
// stats, and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureStats creates the zeroed stats row unless it already exists.
// ON CONFLICT DO NOTHING makes concurrent provisioning of the same user
// converge on a single row without surfacing an error.
func (r *Repository) EnsureStats(ctx context.Context, userID string) error {
	const stmt = `INSERT INTO user_stats (user_id, points, co2_saved_kg, updated_at)
        VALUES ($1, 0, 0, $2)
        ON CONFLICT (user_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, stmt, userID, time.Now().UTC())
	return err
}

// GetStats returns the user's totals, or nil when no row exists yet.
func (r *Repository) GetStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	const query = `SELECT user_id, points, co2_saved_kg, updated_at
        FROM user_stats WHERE user_id=$1`

	var stats domain.UserStats
	row := r.pool.QueryRow(ctx, query, userID)
	if err := row.Scan(&stats.UserID, &stats.Points, &stats.CO2SavedKG, &stats.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &stats, nil
}

// RecordActivity persists the activity row, applies the reward to the
// user's totals, and records the outbox event inside a single transaction.
// The increment happens in SQL (points = points + $n), so concurrent
// submissions for one user serialize on the row and no update is lost.
func (r *Repository) RecordActivity(ctx context.Context, activity domain.Activity, reward domain.Reward) (*domain.UserStats, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insertActivity = `INSERT INTO activities (activity_id, user_id, activity_type, distance_miles, co2_saved_kg, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`

	_, err = tx.Exec(ctx, insertActivity,
		activity.ID,
		activity.UserID,
		string(activity.Type),
		activity.DistanceMiles,
		activity.CO2SavedKG,
		activity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	const increment = `UPDATE user_stats
        SET points = points + $2, co2_saved_kg = co2_saved_kg + $3, updated_at = $4
        WHERE user_id = $1
        RETURNING user_id, points, co2_saved_kg, updated_at`

	var stats domain.UserStats
	row := tx.QueryRow(ctx, increment, activity.UserID, reward.Points, reward.CO2SavedKG, activity.CreatedAt)
	if err = row.Scan(&stats.UserID, &stats.Points, &stats.CO2SavedKG, &stats.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = fmt.Errorf("user stats row missing for %s", activity.UserID)
		}
		return nil, err
	}

	if err = r.insertOutbox(ctx, tx, activity, events.TypeActivityLogged, events.ActivityLogged{
		ActivityID:    activity.ID,
		UserID:        activity.UserID,
		ActivityType:  string(activity.Type),
		DistanceMiles: activity.DistanceMiles,
		CO2SavedKG:    activity.CO2SavedKG,
		PointsEarned:  reward.Points,
		LoggedAt:      activity.CreatedAt,
	}); err != nil {
		return nil, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, err
	}

	observability.RecordActivityPersisted(activity.CreatedAt)
	observability.RecordActivityLogged(string(activity.Type), reward.CO2SavedKG)
	return &stats, nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, activity domain.Activity, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(activity)
	dedupeKey := fmt.Sprintf("%s:%s", activity.ID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		"activity",
		activity.ID,
		eventType,
		meta.Topic,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// ListByUser returns activities for a user ordered by time, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT activity_id, user_id, activity_type, distance_miles, co2_saved_kg, created_at
        FROM activities WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (created_at, activity_id) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, activity_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		var activity domain.Activity
		var kind string
		if err := rows.Scan(&activity.ID, &activity.UserID, &kind, &activity.DistanceMiles, &activity.CO2SavedKG, &activity.CreatedAt); err != nil {
			return nil, nil, err
		}
		activity.Type = domain.ActivityType(kind)
		results = append(results, activity)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	return results, nextCursor, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	PartitionKeyFn func(domain.Activity) string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityLogged: {
		Topic: events.TopicActivityEvents,
		PartitionKeyFn: func(a domain.Activity) string {
			return a.UserID
		},
	},
}
