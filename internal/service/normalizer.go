// Package service contains business logic for the Agropal application.
//
// This file implements image normalization for uploaded crop photos.
package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register the WebP decoder with image.Decode

	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/metrics"
	"github.com/agropal/agropal/internal/storage"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Normalizer bounds the resolution and format of a stored image.
type Normalizer interface {
	// Normalize returns the image the rest of the pipeline should use. It
	// never fails: when the copy cannot be produced the input is returned
	// unchanged.
	Normalize(ctx context.Context, img *StoredImage) *StoredImage
}

// =============================================================================
// Implementation
// =============================================================================

// ImagingNormalizer implements Normalizer using the imaging library.
type ImagingNormalizer struct {
	storage storage.Storage
	maxEdge int
	quality int
	logger  *slog.Logger
}

// NewImagingNormalizer creates a normalizer that writes JPEG copies no larger
// than domain.NormalizedMaxEdge on either side.
func NewImagingNormalizer(store storage.Storage, logger *slog.Logger) *ImagingNormalizer {
	return &ImagingNormalizer{
		storage: store,
		maxEdge: domain.NormalizedMaxEdge,
		quality: domain.NormalizedJPEGQuality,
		logger:  logger,
	}
}

// Normalize writes a resized JPEG copy next to the original and removes the
// original once the copy is stored.
func (n *ImagingNormalizer) Normalize(ctx context.Context, img *StoredImage) *StoredImage {
	out, err := n.normalize(ctx, img)
	if err != nil {
		metrics.NormalizationFallbacks.Inc()
		n.logger.Warn("image normalization failed, keeping original",
			"key", img.Key,
			"content_type", img.ContentType,
			"error", err,
		)
		return img
	}
	return out
}

func (n *ImagingNormalizer) normalize(ctx context.Context, img *StoredImage) (*StoredImage, error) {
	src, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Images already within bounds are re-encoded, never upscaled.
	var resized image.Image = src
	b := src.Bounds()
	if b.Dx() > n.maxEdge || b.Dy() > n.maxEdge {
		resized = imaging.Fit(src, n.maxEdge, n.maxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(n.quality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	key := storage.NormalizedKey(img.Key)
	if err := n.storage.Put(ctx, key, bytes.NewReader(buf.Bytes()), storage.PutOptions{
		ContentType: "image/jpeg",
		Public:      true,
	}); err != nil {
		return nil, fmt.Errorf("failed to store normalized image: %w", err)
	}

	if key != img.Key {
		if err := n.storage.Delete(ctx, img.Key); err != nil {
			// The sweeper removes the original later; it is unreferenced.
			n.logger.Warn("failed to remove original after normalization", "key", img.Key, "error", err)
		} else {
			metrics.UploadsDeleted.WithLabelValues("replaced").Inc()
		}
	}

	rb := resized.Bounds()
	n.logger.Debug("image normalized",
		"key", key,
		"from", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"to", fmt.Sprintf("%dx%d", rb.Dx(), rb.Dy()),
		"size", buf.Len(),
	)

	return &StoredImage{
		Key:              key,
		ContentType:      "image/jpeg",
		Size:             int64(buf.Len()),
		Data:             buf.Bytes(),
		OriginalFilename: img.OriginalFilename,
		UploadedAt:       img.UploadedAt,
		Normalized:       true,
	}, nil
}
