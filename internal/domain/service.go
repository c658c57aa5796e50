// Package domain defines the reward-accounting logic for the ecolog service.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	"example.com/ecolog/internal/rng"
)

// Repository captures persistence operations. Implementations must make
// RecordActivity atomic with respect to the stats totals: the increment is
// applied server-side, never as a client read-modify-write, so concurrent
// submissions for the same user are commutative.
type Repository interface {
	// EnsureStats creates the zeroed stats row for the user if it does
	// not exist yet. Idempotent on user ID; concurrent calls must leave
	// exactly one row.
	EnsureStats(ctx context.Context, userID string) error
	// GetStats returns the current totals, or nil when the user has no
	// stats row yet.
	GetStats(ctx context.Context, userID string) (*UserStats, error)
	// RecordActivity persists the activity and applies its reward to the
	// user's totals as one unit, returning the new totals.
	RecordActivity(ctx context.Context, activity Activity, reward Reward) (*UserStats, error)
	// ListByUser returns the user's activities newest first.
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
}

// Service orchestrates activity logging and dashboard reads.
type Service struct {
	repo  Repository
	ranks *rng.Stream
}

// NewService constructs a Service. The stream backs the placeholder
// leaderboard rank and is typically entropy-seeded at process start.
func NewService(repo Repository, ranks *rng.Stream) *Service {
	return &Service{repo: repo, ranks: ranks}
}

// LogActivityInput captures the payload from the API layer.
type LogActivityInput struct {
	UserID        string
	Type          ActivityType
	DistanceMiles float64
}

// LogActivity validates the submission, provisions the user's stats row
// when missing, and records the activity together with its reward.
func (s *Service) LogActivity(ctx context.Context, input LogActivityInput) (*Activity, *UserStats, error) {
	reward, err := ComputeReward(input.Type, input.DistanceMiles)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.EnsureStats(ctx, input.UserID); err != nil {
		return nil, nil, err
	}

	activity := Activity{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		Type:          input.Type,
		DistanceMiles: input.DistanceMiles,
		CO2SavedKG:    reward.CO2SavedKG,
		CreatedAt:     time.Now().UTC(),
	}

	stats, err := s.repo.RecordActivity(ctx, activity, reward)
	if err != nil {
		return nil, nil, err
	}

	return &activity, stats, nil
}

// Dashboard bundles the data behind the stats endpoint.
type Dashboard struct {
	Stats  UserStats
	Rank   int
	Recent []Activity
}

// GetDashboard returns the user's totals, recent activities, and a
// placeholder world rank. A missing stats row is provisioned with zeroed
// totals rather than reported as an error.
//
// The rank is a uniform draw in [0, 999]; no comparative leaderboard data
// exists behind it.
func (s *Service) GetDashboard(ctx context.Context, userID string, recentLimit int) (*Dashboard, error) {
	stats, err := s.repo.GetStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		if err := s.repo.EnsureStats(ctx, userID); err != nil {
			return nil, err
		}
		stats = &UserStats{UserID: userID}
	}

	recent, _, err := s.repo.ListByUser(ctx, userID, nil, recentLimit)
	if err != nil {
		return nil, err
	}

	rank, err := s.ranks.IntBetween(0, 999)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Stats:  *stats,
		Rank:   rank,
		Recent: recent,
	}, nil
}

// ListActivities fetches the user's activity log with cursor pagination.
func (s *Service) ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.repo.ListByUser(ctx, userID, cursor, limit)
}
