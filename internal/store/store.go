// Package store persists DiagnosisRecords.
//
// Records are written once and never updated. Two durable backends exist
// (mongostore and pgstore); Memory backs tests and local development.
package store

import (
	"context"
	"errors"

	"github.com/agropal/agropal/internal/domain"
)

// ErrNotFound is returned when no record has the requested id. Malformed
// ids are reported the same way.
var ErrNotFound = errors.New("diagnosis record not found")

// Store is the persistence contract used by the diagnosis service.
type Store interface {
	// CreateDiagnosis inserts rec in a single atomic write. It assigns
	// rec.ID, and rec.CreatedAt when zero.
	CreateDiagnosis(ctx context.Context, rec *domain.DiagnosisRecord) error

	// GetDiagnosis returns the record with id or ErrNotFound.
	GetDiagnosis(ctx context.Context, id string) (*domain.DiagnosisRecord, error)

	// ListUserDiagnoses returns a user's records newest first.
	ListUserDiagnoses(ctx context.Context, userID string, offset, limit int) ([]domain.DiagnosisRecord, error)

	// CountUserDiagnoses returns the number of records owned by userID.
	CountUserDiagnoses(ctx context.Context, userID string) (int64, error)

	// DiseaseStatistics aggregates records created at or after filter.Since,
	// grouped by disease, ordered by count descending, capped at filter.Limit.
	DiseaseStatistics(ctx context.Context, filter domain.StatisticsFilter) ([]domain.DiseaseStatistic, error)

	// ReferencedImageKeys reports which of keys are referenced by a record.
	ReferencedImageKeys(ctx context.Context, keys []string) (map[string]bool, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
