package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/store"
)

func seedRecords(t *testing.T, st store.Store, userID string, n int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		uid := userID
		rec := &domain.DiagnosisRecord{
			UserID:    &uid,
			Image:     domain.ImageRef{Key: "crops/k.jpg"},
			Crop:      domain.CropContext{Type: "cassava"},
			Diagnosis: domain.DiagnosisResult{Disease: "Cassava Mosaic Disease", Confidence: 0.8, Severity: domain.SeverityHigh},
			Location:  domain.Location{State: "Lagos"},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, st.CreateDiagnosis(context.Background(), rec))
	}
}

func TestHistory_Pagination(t *testing.T) {
	st := store.NewMemory()
	seedRecords(t, st, validUserID, 23, time.Now().Add(-time.Hour))
	svc := NewHistoryService(st, nil, discardLogger())

	page, err := svc.History(context.Background(), validUserID, 3, 10)
	require.NoError(t, err)
	assert.Len(t, page.Records, 3)
	assert.Equal(t, 3, page.CurrentPage)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, int64(23), page.TotalItems)
	assert.Equal(t, 10, page.ItemsPerPage)

	first, err := svc.History(context.Background(), validUserID, 1, 5)
	require.NoError(t, err)
	for i := 1; i < len(first.Records); i++ {
		assert.False(t, first.Records[i].CreatedAt.After(first.Records[i-1].CreatedAt), "newest first")
	}
}

func TestHistory_PagingDefaults(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, domain.DefaultHistoryLimit},
		{-3, 5, 1, 5},
		{2, 500, 2, domain.MaxHistoryLimit},
		{math.MaxInt, 10, MaxHistoryPage, 10},
	}
	for _, tt := range tests {
		page, limit := normalizePaging(tt.page, tt.limit)
		assert.Equal(t, tt.wantPage, page)
		assert.Equal(t, tt.wantLimit, limit)
	}
}

func TestHistory_HugePageIsEmpty(t *testing.T) {
	st := store.NewMemory()
	seedRecords(t, st, validUserID, 3, time.Now().Add(-time.Hour))
	svc := NewHistoryService(st, nil, discardLogger())

	got, err := svc.History(context.Background(), validUserID, math.MaxInt, 10)
	require.NoError(t, err)
	assert.Empty(t, got.Records)
	assert.Equal(t, int64(3), got.TotalItems)
	assert.Equal(t, MaxHistoryPage, got.CurrentPage)
}

func TestHistory_InvalidUser(t *testing.T) {
	svc := NewHistoryService(store.NewMemory(), nil, discardLogger())

	_, err := svc.History(context.Background(), "not-a-valid-id", 1, 10)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestHistory_EmptyUser(t *testing.T) {
	svc := NewHistoryService(store.NewMemory(), nil, discardLogger())

	page, err := svc.History(context.Background(), validUserID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Equal(t, 0, page.TotalPages)
	assert.Equal(t, int64(0), page.TotalItems)
}

// P6
func TestHistory_IdempotentReads(t *testing.T) {
	st := store.NewMemory()
	base := time.Now().Add(-time.Hour)
	seedRecords(t, st, validUserID, 12, base)
	// Identical timestamps must still order deterministically.
	seedRecords(t, st, validUserID, 4, base)
	svc := NewHistoryService(st, nil, discardLogger())

	a, err := svc.History(context.Background(), validUserID, 2, 5)
	require.NoError(t, err)
	b, err := svc.History(context.Background(), validUserID, 2, 5)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

type countErrStore struct {
	store.Store
}

func (countErrStore) CountUserDiagnoses(context.Context, string) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestHistory_StoreFailure(t *testing.T) {
	svc := NewHistoryService(countErrStore{Store: store.NewMemory()}, nil, discardLogger())

	_, err := svc.History(context.Background(), validUserID, 1, 10)
	assert.Equal(t, domain.EPERSISTENCE, domain.ErrorCode(err))
}

// =============================================================================
// Statistics
// =============================================================================

type memoryCache struct {
	entries map[string][]domain.DiseaseStatistic
	getErr  error
	gets    int
}

func (c *memoryCache) Get(_ context.Context, key string) ([]domain.DiseaseStatistic, bool, error) {
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	s, ok := c.entries[key]
	return s, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, stats []domain.DiseaseStatistic) error {
	c.entries[key] = stats
	return nil
}

func (c *memoryCache) Close() error { return nil }

type statsCountingStore struct {
	store.Store
	calls int
}

func (s *statsCountingStore) DiseaseStatistics(ctx context.Context, f domain.StatisticsFilter) ([]domain.DiseaseStatistic, error) {
	s.calls++
	return s.Store.DiseaseStatistics(ctx, f)
}

func TestStatistics(t *testing.T) {
	st := store.NewMemory()
	now := time.Now()
	seedRecords(t, st, validUserID, 3, now.Add(-2*time.Hour))
	// Outside the window.
	seedRecords(t, st, validUserID, 5, now.AddDate(0, 0, -40))

	svc := NewHistoryService(st, nil, discardLogger())

	res, err := svc.Statistics(context.Background(), StatisticsQuery{State: "Lagos", CropType: "Cassava"})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultStatisticsTimeframeDays, res.TimeframeDays)
	assert.Equal(t, "cassava", res.CropType)
	require.Len(t, res.Statistics, 1)
	assert.Equal(t, int64(3), res.Statistics[0].Count)
	assert.InDelta(t, 0.8, res.Statistics[0].AverageConfidence, 1e-9)
	assert.Len(t, res.Statistics[0].SeverityDistribution, 3)

	wide, err := svc.Statistics(context.Background(), StatisticsQuery{TimeframeDays: 60})
	require.NoError(t, err)
	assert.Equal(t, int64(8), wide.Statistics[0].Count)

	none, err := svc.Statistics(context.Background(), StatisticsQuery{State: "Kano"})
	require.NoError(t, err)
	assert.NotNil(t, none.Statistics)
	assert.Empty(t, none.Statistics)
}

func TestStatistics_TimeframeCap(t *testing.T) {
	svc := NewHistoryService(store.NewMemory(), nil, discardLogger())

	res, err := svc.Statistics(context.Background(), StatisticsQuery{TimeframeDays: 10000})
	require.NoError(t, err)
	assert.Equal(t, MaxStatisticsTimeframeDays, res.TimeframeDays)
}

func TestStatistics_UsesCache(t *testing.T) {
	st := &statsCountingStore{Store: store.NewMemory()}
	seedRecords(t, st, validUserID, 2, time.Now().Add(-time.Hour))
	c := &memoryCache{entries: map[string][]domain.DiseaseStatistic{}}
	svc := NewHistoryService(st, c, discardLogger())

	first, err := svc.Statistics(context.Background(), StatisticsQuery{State: "Lagos"})
	require.NoError(t, err)
	second, err := svc.Statistics(context.Background(), StatisticsQuery{State: "Lagos"})
	require.NoError(t, err)

	assert.Equal(t, 1, st.calls)
	assert.Equal(t, first.Statistics, second.Statistics)
}

func TestStatistics_CacheErrorFallsBackToStore(t *testing.T) {
	st := &statsCountingStore{Store: store.NewMemory()}
	seedRecords(t, st, validUserID, 2, time.Now().Add(-time.Hour))
	c := &memoryCache{entries: map[string][]domain.DiseaseStatistic{}, getErr: errors.New("redis down")}
	svc := NewHistoryService(st, c, discardLogger())

	res, err := svc.Statistics(context.Background(), StatisticsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, st.calls)
	require.Len(t, res.Statistics, 1)
}
