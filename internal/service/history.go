// Package service contains business logic for the Agropal application.
//
// This file implements the read side: per-user history and regional
// disease statistics.
package service

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agropal/agropal/internal/cache"
	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/metrics"
	"github.com/agropal/agropal/internal/store"
)

// MaxHistoryPage caps the page number so the offset cannot overflow.
const MaxHistoryPage = math.MaxInt32

// MaxStatisticsTimeframeDays caps the statistics window.
const MaxStatisticsTimeframeDays = 365

const recordsUnavailable = "Diagnosis records are temporarily unavailable. Please try again later."

// =============================================================================
// Interface Definition
// =============================================================================

// HistoryService answers read-only queries over stored diagnoses.
type HistoryService interface {
	// History returns one page of a user's diagnoses, newest first.
	// Returns domain.EINVALID if userID is not a valid handle.
	History(ctx context.Context, userID string, page, limit int) (*domain.HistoryPage, error)

	// Statistics aggregates diagnoses by disease over the query window.
	Statistics(ctx context.Context, q StatisticsQuery) (*StatisticsResult, error)
}

// StatisticsQuery is the statistics request after parsing.
type StatisticsQuery struct {
	State         string
	CropType      string
	TimeframeDays int
}

// StatisticsResult carries the aggregation plus the effective query.
type StatisticsResult struct {
	Statistics    []domain.DiseaseStatistic
	TimeframeDays int
	State         string
	CropType      string
}

// =============================================================================
// Implementation
// =============================================================================

type historyService struct {
	store  store.Store
	cache  cache.StatsCache
	logger *slog.Logger
	now    func() time.Time
}

// NewHistoryService creates a new HistoryService. A nil cache disables
// statistics caching.
func NewHistoryService(st store.Store, statsCache cache.StatsCache, logger *slog.Logger) HistoryService {
	if statsCache == nil {
		statsCache = cache.Nop{}
	}
	return &historyService{
		store:  st,
		cache:  statsCache,
		logger: logger,
		now:    time.Now,
	}
}

// History returns one page of a user's diagnoses. Count and page are read
// concurrently.
func (s *historyService) History(ctx context.Context, userID string, page, limit int) (*domain.HistoryPage, error) {
	const op = "history.list"

	ref := domain.ParseUserRef(userID)
	if ref == nil {
		return nil, domain.Invalid(op, "Invalid user ID")
	}

	page, limit = normalizePaging(page, limit)
	offset := (page - 1) * limit

	var (
		total   int64
		records []domain.DiagnosisRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.store.CountUserDiagnoses(gctx, *ref)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.store.ListUserDiagnoses(gctx, *ref, offset, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, domain.Wrap(err, domain.EPERSISTENCE, op, recordsUnavailable)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	return &domain.HistoryPage{
		Records:      records,
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalItems:   total,
		ItemsPerPage: limit,
	}, nil
}

// Statistics aggregates diagnoses by disease, consulting the cache first.
func (s *historyService) Statistics(ctx context.Context, q StatisticsQuery) (*StatisticsResult, error) {
	const op = "history.statistics"

	days := q.TimeframeDays
	if days <= 0 {
		days = domain.DefaultStatisticsTimeframeDays
	}
	if days > MaxStatisticsTimeframeDays {
		days = MaxStatisticsTimeframeDays
	}

	state := strings.TrimSpace(q.State)
	cropType := strings.ToLower(strings.TrimSpace(q.CropType))
	result := &StatisticsResult{TimeframeDays: days, State: state, CropType: cropType}

	key := cache.StatsKey(state, cropType, days)
	cached, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.StatsCacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("statistics cache read failed", "op", op, "error", err)
	case ok:
		metrics.StatsCacheLookups.WithLabelValues("hit").Inc()
		result.Statistics = cached
		return result, nil
	default:
		metrics.StatsCacheLookups.WithLabelValues("miss").Inc()
	}

	stats, err := s.store.DiseaseStatistics(ctx, domain.StatisticsFilter{
		State:    state,
		CropType: cropType,
		Since:    s.now().UTC().AddDate(0, 0, -days),
		Limit:    domain.StatisticsTopN,
	})
	if err != nil {
		return nil, domain.Wrap(err, domain.EPERSISTENCE, op, recordsUnavailable)
	}
	if stats == nil {
		stats = []domain.DiseaseStatistic{}
	}

	if err := s.cache.Set(ctx, key, stats); err != nil {
		s.logger.Warn("statistics cache write failed", "op", op, "error", err)
	}

	result.Statistics = stats
	return result, nil
}

// normalizePaging applies the defaults and caps for history paging.
func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxHistoryPage {
		page = MaxHistoryPage
	}
	if limit < 1 {
		limit = domain.DefaultHistoryLimit
	}
	if limit > domain.MaxHistoryLimit {
		limit = domain.MaxHistoryLimit
	}
	return page, limit
}
