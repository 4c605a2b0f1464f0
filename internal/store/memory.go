package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/agropal/agropal/internal/domain"
)

// Memory is an in-process Store. Records live until the process exits.
type Memory struct {
	mu      sync.RWMutex
	records []domain.DiagnosisRecord
	byID    map[string]int
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byID: make(map[string]int),
		now:  time.Now,
	}
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// All returns a copy of every record in insertion order.
func (m *Memory) All() []domain.DiagnosisRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.DiagnosisRecord(nil), m.records...)
}

func (m *Memory) CreateDiagnosis(ctx context.Context, rec *domain.DiagnosisRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec.ID = newObjectIDHex()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now().UTC()
	}
	m.byID[rec.ID] = len(m.records)
	m.records = append(m.records, *rec)
	return nil
}

func (m *Memory) GetDiagnosis(ctx context.Context, id string) (*domain.DiagnosisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := m.records[i]
	return &rec, nil
}

func (m *Memory) ListUserDiagnoses(ctx context.Context, userID string, offset, limit int) ([]domain.DiagnosisRecord, error) {
	m.mu.RLock()
	owned := m.ownedBy(userID)
	m.mu.RUnlock()

	sort.SliceStable(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID > owned[j].ID
	})

	if offset < 0 || limit < 1 || offset >= len(owned) {
		return []domain.DiagnosisRecord{}, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], nil
}

func (m *Memory) CountUserDiagnoses(ctx context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.ownedBy(userID))), nil
}

func (m *Memory) DiseaseStatistics(ctx context.Context, filter domain.StatisticsFilter) ([]domain.DiseaseStatistic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make(map[string]*domain.DiseaseStatistic)
	sums := make(map[string]float64)
	for _, rec := range m.records {
		if rec.CreatedAt.Before(filter.Since) {
			continue
		}
		if filter.State != "" && rec.Location.State != filter.State {
			continue
		}
		if filter.CropType != "" && rec.Crop.Type != filter.CropType {
			continue
		}

		d := rec.Diagnosis.Disease
		g, ok := groups[d]
		if !ok {
			g = &domain.DiseaseStatistic{Disease: d}
			groups[d] = g
		}
		g.Count++
		sums[d] += rec.Diagnosis.Confidence
		g.SeverityDistribution = append(g.SeverityDistribution, rec.Diagnosis.Severity)
	}

	stats := make([]domain.DiseaseStatistic, 0, len(groups))
	for d, g := range groups {
		g.AverageConfidence = sums[d] / float64(g.Count)
		stats = append(stats, *g)
	}
	SortStatistics(stats)

	if filter.Limit > 0 && len(stats) > filter.Limit {
		stats = stats[:filter.Limit]
	}
	return stats, nil
}

func (m *Memory) ReferencedImageKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}

	found := make(map[string]bool)
	for _, rec := range m.records {
		if want[rec.Image.Key] {
			found[rec.Image.Key] = true
		}
	}
	return found, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ownedBy must be called with the lock held.
func (m *Memory) ownedBy(userID string) []domain.DiagnosisRecord {
	var owned []domain.DiagnosisRecord
	for _, rec := range m.records {
		if rec.UserID != nil && *rec.UserID == userID {
			owned = append(owned, rec)
		}
	}
	return owned
}

// SortStatistics orders by count descending, then disease name.
func SortStatistics(stats []domain.DiseaseStatistic) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Disease < stats[j].Disease
	})
}

// newObjectIDHex returns a random 24 character hex id, the same shape as a
// Mongo ObjectID.
func newObjectIDHex() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
