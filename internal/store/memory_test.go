package store

import (
	"context"
	"testing"
	"time"

	"github.com/agropal/agropal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func record(user *string, disease string, confidence float64, severity domain.Severity, state, crop string, at time.Time) *domain.DiagnosisRecord {
	return &domain.DiagnosisRecord{
		UserID:    user,
		Image:     domain.ImageRef{Key: "crops/" + disease + ".jpg"},
		Crop:      domain.CropContext{Type: crop},
		Diagnosis: domain.DiagnosisResult{Disease: disease, Confidence: confidence, Severity: severity},
		Location:  domain.Location{State: state},
		Status:    domain.DiagnosisStatusDiagnosed,
		CreatedAt: at,
	}
}

func TestMemory_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec := record(nil, "Rust", 0.5, domain.SeverityLow, "Kano", "maize", time.Time{})
	require.NoError(t, m.CreateDiagnosis(ctx, rec))
	assert.True(t, domain.IsValidUserID(rec.ID))
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := m.GetDiagnosis(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, *rec, *got)

	_, err = m.GetDiagnosis(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_UserHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	user := "64b7f0c2a1e4d3b2c1a09f8e"
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.CreateDiagnosis(ctx, record(ptr(user), "Rust", 0.5, domain.SeverityLow, "Kano", "maize", base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, m.CreateDiagnosis(ctx, record(nil, "Rust", 0.5, domain.SeverityLow, "Kano", "maize", base)))

	count, err := m.CountUserDiagnoses(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	page, err := m.ListUserDiagnoses(ctx, user, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, base.Add(4*time.Hour), page[0].CreatedAt)
	assert.Equal(t, base.Add(3*time.Hour), page[1].CreatedAt)

	last, err := m.ListUserDiagnoses(ctx, user, 4, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, base, last[0].CreatedAt)

	beyond, err := m.ListUserDiagnoses(ctx, user, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	negative, err := m.ListUserDiagnoses(ctx, user, -20, 10)
	require.NoError(t, err)
	assert.Empty(t, negative)
}

func TestMemory_DiseaseStatistics(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -60)

	require.NoError(t, m.CreateDiagnosis(ctx, record(nil, "Cassava Mosaic Disease", 0.9, domain.SeverityHigh, "Lagos", "cassava", now)))
	require.NoError(t, m.CreateDiagnosis(ctx, record(nil, "Cassava Mosaic Disease", 0.7, domain.SeverityModerate, "Lagos", "cassava", now)))
	require.NoError(t, m.CreateDiagnosis(ctx, record(nil, "Fall Armyworm", 0.8, domain.SeverityHigh, "Kano", "maize", now)))
	require.NoError(t, m.CreateDiagnosis(ctx, record(nil, "Fall Armyworm", 0.8, domain.SeverityHigh, "Kano", "maize", old)))

	stats, err := m.DiseaseStatistics(ctx, domain.StatisticsFilter{Since: now.AddDate(0, 0, -30), Limit: 10})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "Cassava Mosaic Disease", stats[0].Disease)
	assert.Equal(t, int64(2), stats[0].Count)
	assert.InDelta(t, 0.8, stats[0].AverageConfidence, 1e-9)
	assert.Equal(t, []domain.Severity{domain.SeverityHigh, domain.SeverityModerate}, stats[0].SeverityDistribution)
	assert.Equal(t, int64(1), stats[1].Count)

	filtered, err := m.DiseaseStatistics(ctx, domain.StatisticsFilter{State: "Kano", Since: old.Add(-time.Hour), Limit: 10})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(2), filtered[0].Count)

	capped, err := m.DiseaseStatistics(ctx, domain.StatisticsFilter{Since: old.Add(-time.Hour), Limit: 1})
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}

func TestMemory_ReferencedImageKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateDiagnosis(ctx, record(nil, "Rust", 0.5, domain.SeverityLow, "", "", time.Time{})))

	found, err := m.ReferencedImageKeys(ctx, []string{"crops/Rust.jpg", "crops/orphan.jpg"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"crops/Rust.jpg": true}, found)
}
