// Package jobs holds the periodic maintenance jobs run by the worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/metrics"
	"github.com/agropal/agropal/internal/storage"
	"github.com/agropal/agropal/internal/store"
)

// JobTypeSweepOrphanUploads is the job type for removing unreferenced photos.
const JobTypeSweepOrphanUploads = "sweep_orphan_uploads"

// sweepBatchSize bounds how many keys are checked against the store at once.
const sweepBatchSize = 500

// OrphanSweeper deletes uploaded crop photos that no diagnosis record
// references, once they are older than MinAge. These are left behind when
// a request fails after its upload was committed but before the record
// was written, or when cleanup itself failed.
type OrphanSweeper struct {
	storage storage.Storage
	store   store.Store
	minAge  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewOrphanSweeper creates a new OrphanSweeper.
func NewOrphanSweeper(st storage.Storage, records store.Store, minAge time.Duration, logger *slog.Logger) *OrphanSweeper {
	return &OrphanSweeper{
		storage: st,
		store:   records,
		minAge:  minAge,
		logger:  logger,
		now:     time.Now,
	}
}

// Type returns the job type identifier.
func (s *OrphanSweeper) Type() string {
	return JobTypeSweepOrphanUploads
}

// Run performs one sweep over the upload area.
func (s *OrphanSweeper) Run(ctx context.Context) error {
	objects, err := s.storage.List(ctx, domain.UploadPrefix)
	if err != nil {
		return fmt.Errorf("list uploads: %w", err)
	}

	cutoff := s.now().Add(-s.minAge)
	var candidates []string
	for _, obj := range objects {
		// Young objects may belong to a request that is still in flight.
		if obj.LastModified.After(cutoff) {
			continue
		}
		candidates = append(candidates, obj.Key)
	}

	deleted := 0
	for start := 0; start < len(candidates); start += sweepBatchSize {
		end := min(start+sweepBatchSize, len(candidates))
		batch := candidates[start:end]

		referenced, err := s.store.ReferencedImageKeys(ctx, batch)
		if err != nil {
			return fmt.Errorf("check referenced keys: %w", err)
		}

		for _, key := range batch {
			if referenced[key] {
				continue
			}
			if err := s.storage.Delete(ctx, key); err != nil {
				s.logger.Warn("failed to delete orphan upload", "key", key, "error", err)
				continue
			}
			metrics.UploadsDeleted.WithLabelValues("sweeper").Inc()
			deleted++
		}
	}

	s.logger.Info("swept orphan uploads",
		"scanned", len(objects),
		"candidates", len(candidates),
		"deleted", deleted,
	)
	return nil
}
