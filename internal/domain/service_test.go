package domain

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/ecolog/internal/rng"
)

// memoryRepo mirrors the repository contract in memory: EnsureStats is
// idempotent, RecordActivity applies the increment atomically under a lock.
type memoryRepo struct {
	mu          sync.Mutex
	stats       map[string]*UserStats
	activities  []Activity
	ensureCalls int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{stats: make(map[string]*UserStats)}
}

func (m *memoryRepo) EnsureStats(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCalls++
	if _, ok := m.stats[userID]; !ok {
		m.stats[userID] = &UserStats{UserID: userID}
	}
	return nil
}

func (m *memoryRepo) GetStats(_ context.Context, userID string) (*UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.stats[userID]
	if !ok {
		return nil, nil
	}
	copied := *stats
	return &copied, nil
}

func (m *memoryRepo) RecordActivity(_ context.Context, activity Activity, reward Reward) (*UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, activity)
	stats := m.stats[activity.UserID]
	stats.Points += reward.Points
	stats.CO2SavedKG += reward.CO2SavedKG
	copied := *stats
	return &copied, nil
}

func (m *memoryRepo) ListByUser(_ context.Context, userID string, _ *Cursor, limit int) ([]Activity, *Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Activity, 0, limit)
	for i := len(m.activities) - 1; i >= 0 && len(out) < limit; i-- {
		if m.activities[i].UserID == userID {
			out = append(out, m.activities[i])
		}
	}
	return out, nil, nil
}

func TestLogActivityProvisionsNewUser(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, rng.New(1))

	activity, stats, err := service.LogActivity(context.Background(), LogActivityInput{
		UserID:        "user-1",
		Type:          ActivityWalk,
		DistanceMiles: 10,
	})
	require.NoError(t, err)

	require.NotEmpty(t, activity.ID)
	require.Equal(t, ActivityWalk, activity.Type)
	require.InDelta(t, 4.0, activity.CO2SavedKG, 1e-9)
	require.False(t, activity.CreatedAt.IsZero())

	require.Equal(t, int64(1), stats.Points)
	require.InDelta(t, 4.0, stats.CO2SavedKG, 1e-9)
}

func TestLogActivityAccumulatesExistingTotals(t *testing.T) {
	repo := newMemoryRepo()
	repo.stats["user-1"] = &UserStats{UserID: "user-1", Points: 5, CO2SavedKG: 12.0}
	service := NewService(repo, rng.New(1))

	_, stats, err := service.LogActivity(context.Background(), LogActivityInput{
		UserID:        "user-1",
		Type:          ActivityCycle,
		DistanceMiles: 2.5,
	})
	require.NoError(t, err)

	require.Equal(t, int64(6), stats.Points)
	require.InDelta(t, 13.0, stats.CO2SavedKG, 1e-9)
}

func TestLogActivityRejectsInvalidInputBeforeStorage(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, rng.New(1))

	_, _, err := service.LogActivity(context.Background(), LogActivityInput{
		UserID:        "user-1",
		Type:          ActivityWalk,
		DistanceMiles: -3,
	})
	require.ErrorIs(t, err, ErrInvalidDistance)
	require.Zero(t, repo.ensureCalls, "storage must not be touched for invalid input")
	require.Empty(t, repo.activities)
}

func TestConcurrentSubmissionsLoseNoUpdates(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, rng.New(1))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := service.LogActivity(context.Background(), LogActivityInput{
				UserID:        "user-1",
				Type:          ActivityWalk,
				DistanceMiles: 1,
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := repo.GetStats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Points)
	require.InDelta(t, 0.8, stats.CO2SavedKG, 1e-9)
}

func TestConcurrentProvisioningCreatesOneRow(t *testing.T) {
	repo := newMemoryRepo()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, repo.EnsureStats(context.Background(), "user-1"))
		}()
	}
	wg.Wait()

	require.Len(t, repo.stats, 1)
	stats := repo.stats["user-1"]
	require.Zero(t, stats.Points)
	require.Zero(t, stats.CO2SavedKG)
}

func TestGetDashboardProvisionsMissingStats(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, rng.New(1))

	dashboard, err := service.GetDashboard(context.Background(), "fresh-user", 10)
	require.NoError(t, err)

	require.Zero(t, dashboard.Stats.Points)
	require.Zero(t, dashboard.Stats.CO2SavedKG)
	require.Empty(t, dashboard.Recent)
	require.GreaterOrEqual(t, dashboard.Rank, 0)
	require.LessOrEqual(t, dashboard.Rank, 999)
	require.Equal(t, 1, repo.ensureCalls)
}

func TestGetDashboardReturnsRecentActivities(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, rng.New(1))

	for i := 0; i < 3; i++ {
		_, _, err := service.LogActivity(context.Background(), LogActivityInput{
			UserID:        "user-1",
			Type:          ActivityCycle,
			DistanceMiles: 2,
		})
		require.NoError(t, err)
	}

	dashboard, err := service.GetDashboard(context.Background(), "user-1", 2)
	require.NoError(t, err)
	require.Len(t, dashboard.Recent, 2)
	require.Equal(t, int64(3), dashboard.Stats.Points)
}
