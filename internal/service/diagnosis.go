// Package service contains business logic for the Agropal application.
//
// This file implements the crop diagnosis pipeline:
// ingest, normalize, check context, classify, persist, publish.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agropal/agropal/internal/ai"
	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/events"
	"github.com/agropal/agropal/internal/metrics"
	"github.com/agropal/agropal/internal/regional"
	"github.com/agropal/agropal/internal/storage"
	"github.com/agropal/agropal/internal/store"
)

const (
	// DefaultClassifierTimeout bounds a single classifier call.
	DefaultClassifierTimeout = 60 * time.Second

	// imageURLExpiry applies to providers that hand out presigned URLs.
	imageURLExpiry = 7 * 24 * time.Hour

	// cleanupTimeout bounds best-effort deletes after the request context
	// may already be done.
	cleanupTimeout = 10 * time.Second

	publishTimeout = 5 * time.Second
)

// =============================================================================
// Interface Definition
// =============================================================================

// DiagnosisService runs crop diagnosis submissions.
type DiagnosisService interface {
	// Diagnose runs the whole pipeline for one submission.
	// Returns domain.EINVALIDFILE when the upload is rejected.
	// Returns domain.EUNAVAILABLE when the classifier produced nothing usable.
	// Returns domain.EVALIDATION when the record cannot be formed.
	// Returns domain.EPERSISTENCE when the store write fails.
	// On any error no record exists and the uploaded image has been removed.
	Diagnose(ctx context.Context, req *DiagnoseRequest) (*DiagnoseResult, error)

	// Get returns a stored diagnosis by id.
	// Returns domain.ENOTFOUND if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.DiagnosisRecord, error)
}

// DiagnoseResult is what the response assembler needs.
type DiagnoseResult struct {
	Record      *domain.DiagnosisRecord
	Diagnosis   *ai.Diagnosis
	Suitability regional.Suitability
}

// DiagnosisConfig holds the collaborators of the diagnosis service.
type DiagnosisConfig struct {
	Ingestor          *Ingestor
	Normalizer        Normalizer
	Classifier        ai.Classifier
	Store             store.Store
	Storage           storage.Storage
	Publisher         events.Publisher
	ClassifierTimeout time.Duration
	Logger            *slog.Logger
}

// =============================================================================
// Implementation
// =============================================================================

type diagnosisService struct {
	ingestor          *Ingestor
	normalizer        Normalizer
	classifier        ai.Classifier
	store             store.Store
	storage           storage.Storage
	publisher         events.Publisher
	classifierTimeout time.Duration
	logger            *slog.Logger
	now               func() time.Time
}

// NewDiagnosisService creates a new DiagnosisService.
func NewDiagnosisService(cfg DiagnosisConfig) DiagnosisService {
	timeout := cfg.ClassifierTimeout
	if timeout <= 0 {
		timeout = DefaultClassifierTimeout
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &diagnosisService{
		ingestor:          cfg.Ingestor,
		normalizer:        cfg.Normalizer,
		classifier:        cfg.Classifier,
		store:             cfg.Store,
		storage:           cfg.Storage,
		publisher:         publisher,
		classifierTimeout: timeout,
		logger:            cfg.Logger,
		now:               time.Now,
	}
}

// Diagnose runs the pipeline. Steps never overlap within one request.
func (s *diagnosisService) Diagnose(ctx context.Context, req *DiagnoseRequest) (result *DiagnoseResult, err error) {
	const op = "diagnosis.submit"

	defer func() {
		metrics.DiagnosesTotal.WithLabelValues(outcome(err)).Inc()
	}()

	img, err := s.ingestor.Ingest(ctx, req.Image)
	if err != nil {
		return nil, err
	}

	upload := &scopedUpload{storage: s.storage, logger: s.logger}
	upload.track(img.Key)
	defer func() {
		if err != nil {
			upload.release(ctx, domain.ErrorCode(err))
		}
	}()

	img = s.normalizer.Normalize(ctx, img)
	upload.track(img.Key)

	suit := regional.CheckSuitability(req.CropType, req.Location.State)
	if suit.Warning() {
		metrics.ContextWarnings.WithLabelValues(regional.NormalizeState(req.Location.State)).Inc()
		s.logger.Warn("crop/region context warning",
			"op", op,
			"crop_type", req.CropType,
			"state", req.Location.State,
			"zone", suit.Zone,
			"message", suit.Message,
		)
	}

	diag, err := s.classify(ctx, img, req)
	if err != nil {
		return nil, err
	}

	imageURL, err := s.storage.URL(ctx, img.Key, imageURLExpiry)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to resolve image URL")
	}

	rec, err := buildRecord(recordInput{
		req:        req,
		image:      img,
		imageURL:   imageURL,
		diagnosis:  diag,
		classifier: classifierID(s.classifier.Name(), diag.Model),
		now:        s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateDiagnosis(ctx, rec); err != nil {
		return nil, domain.Persistence(err, op)
	}
	upload.commit()

	s.logger.Info("diagnosis stored",
		"op", op,
		"diagnosis_id", rec.ID,
		"crop_type", rec.Crop.Type,
		"state", rec.Location.State,
		"disease", rec.Diagnosis.Disease,
		"confidence", rec.ConfidencePercent(),
		"key", rec.Image.Key,
	)

	s.publish(ctx, rec)

	return &DiagnoseResult{Record: rec, Diagnosis: diag, Suitability: suit}, nil
}

// classify calls the classifier under the service timeout. Every failure
// mode, including a nil result, becomes DiagnosisUnavailable.
func (s *diagnosisService) classify(ctx context.Context, img *StoredImage, req *DiagnoseRequest) (*ai.Diagnosis, error) {
	const op = "diagnosis.classify"

	params := ai.DiagnoseParams{
		ImageData:          img.Data,
		ContentType:        img.ContentType,
		CropType:           req.CropType,
		State:              req.Location.State,
		LGA:                req.Location.LGA,
		Symptoms:           req.Symptoms,
		PlantingDate:       req.PlantingDate,
		GrowthStage:        req.GrowthStage,
		PreviousTreatments: req.PreviousTreatments,
		ImageKey:           img.Key,
		OriginalFilename:   img.OriginalFilename,
		Normalized:         img.Normalized,
	}
	if c := req.Location.Coordinates; c != nil {
		params.Latitude = &c.Lat
		params.Longitude = &c.Lng
	}

	cctx, cancel := context.WithTimeout(ctx, s.classifierTimeout)
	defer cancel()

	provider := s.classifier.Name()
	start := time.Now()
	diag, err := s.classifier.Diagnose(cctx, params)
	metrics.ClassifierDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	if err == nil {
		err = diag.Validate()
	}
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ai.EAITimeout) {
			err = fmt.Errorf("%w: %w", ai.EAITimeout, err)
		}
		metrics.ClassifierCalls.WithLabelValues(provider, "error").Inc()
		s.logger.Error("classifier failed",
			"op", op,
			"provider", provider,
			"key", img.Key,
			"crop_type", req.CropType,
			"error", err,
		)
		return nil, domain.DiagnosisUnavailable(err, op)
	}

	metrics.ClassifierCalls.WithLabelValues(provider, "success").Inc()
	return diag, nil
}

// publish is best effort: the record is already committed.
func (s *diagnosisService) publish(ctx context.Context, rec *domain.DiagnosisRecord) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pctx, events.NewDiagnosisCreated(rec)); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		s.logger.Warn("failed to publish diagnosis event", "diagnosis_id", rec.ID, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues("success").Inc()
}

// Get returns a stored diagnosis by id.
func (s *diagnosisService) Get(ctx context.Context, id string) (*domain.DiagnosisRecord, error) {
	const op = "diagnosis.get"

	rec, err := s.store.GetDiagnosis(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "diagnosis", id)
		}
		return nil, domain.Wrap(err, domain.EPERSISTENCE, op, recordsUnavailable)
	}
	return rec, nil
}

// =============================================================================
// Scoped upload
// =============================================================================

// scopedUpload tracks the objects one request wrote. Unless the record is
// committed, release deletes all of them.
type scopedUpload struct {
	storage   storage.Storage
	logger    *slog.Logger
	keys      []string
	committed bool
}

func (u *scopedUpload) track(key string) {
	for _, k := range u.keys {
		if k == key {
			return
		}
	}
	u.keys = append(u.keys, key)
}

func (u *scopedUpload) commit() {
	u.committed = true
}

// release runs on a detached context so a request that timed out still
// cleans up.
func (u *scopedUpload) release(ctx context.Context, reason string) {
	if u.committed {
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, key := range u.keys {
		if err := u.storage.Delete(cctx, key); err != nil {
			u.logger.Error("failed to remove orphaned upload", "key", key, "reason", reason, "error", err)
			continue
		}
		metrics.UploadsDeleted.WithLabelValues("cleanup").Inc()
		u.logger.Info("removed orphaned upload", "key", key, "reason", reason)
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	switch domain.ErrorCode(err) {
	case domain.EINVALIDFILE:
		return "invalid_upload"
	case domain.EUNAVAILABLE:
		return "unavailable"
	case domain.EVALIDATION:
		return "validation"
	case domain.EPERSISTENCE:
		return "persistence"
	}
	return "internal"
}
