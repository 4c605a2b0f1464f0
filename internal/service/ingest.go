// Package service contains business logic for the Agropal application.
//
// This file implements image ingest: validating a crop photo upload and
// writing it to storage.
package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/storage"
)

// ImageUpload is a single file as received from the multipart form.
type ImageUpload struct {
	Filename    string    // Client-supplied filename
	ContentType string    // Client-declared MIME type, may be empty
	Size        int64     // Client-declared size, -1 when unknown
	Body        io.Reader // File contents
}

// StoredImage is an upload that has been written to storage.
type StoredImage struct {
	Key              string
	ContentType      string
	Size             int64
	Data             []byte
	OriginalFilename string
	UploadedAt       time.Time
	Normalized       bool
}

// Ingestor validates uploads and writes accepted ones under the crop
// upload prefix.
type Ingestor struct {
	storage storage.Storage
	maxSize int64
	logger  *slog.Logger
	now     func() time.Time
}

// NewIngestor creates an Ingestor. A non-positive maxSize uses
// domain.DefaultMaxImageSize.
func NewIngestor(store storage.Storage, maxSize int64, logger *slog.Logger) *Ingestor {
	if maxSize <= 0 {
		maxSize = domain.DefaultMaxImageSize
	}
	return &Ingestor{
		storage: store,
		maxSize: maxSize,
		logger:  logger,
		now:     time.Now,
	}
}

// Ingest validates up and writes it to storage. Every check runs before the
// write, so a rejected upload never leaves an object behind.
func (i *Ingestor) Ingest(ctx context.Context, up *ImageUpload) (*StoredImage, error) {
	const op = "image.ingest"

	if up == nil || up.Body == nil {
		return nil, domain.InvalidUpload(op, "No image file uploaded")
	}

	if !domain.IsValidImageExtension(up.Filename) {
		return nil, domain.InvalidUpload(op, "Unsupported file type. Please upload a clear JPEG, PNG, WebP or HEIC photo of the crop.")
	}

	if up.Size > 0 {
		if err := domain.ValidateImageSize(up.Size, i.maxSize); err != nil {
			return nil, err
		}
	}

	// Read one byte past the limit so an understated Size is still caught.
	data, err := io.ReadAll(io.LimitReader(up.Body, i.maxSize+1))
	if err != nil {
		return nil, domain.InvalidUpload(op, "The image could not be read. Please upload it again.")
	}
	if err := domain.ValidateImageSize(int64(len(data)), i.maxSize); err != nil {
		return nil, err
	}

	contentType, ok := resolveImageType(data, up.ContentType)
	if !ok {
		return nil, domain.InvalidUpload(op, "The file does not look like a photo. Please upload a clear image of the crop.")
	}

	now := i.now().UTC()
	key := storage.UploadKey(domain.UploadPrefix, up.Filename, now)

	if err := i.storage.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
		ContentType: contentType,
		MaxSize:     i.maxSize,
		Public:      true,
	}); err != nil {
		if storage.IsTooLarge(err) {
			return nil, domain.InvalidUpload(op, "Image is too large")
		}
		return nil, domain.Internal(err, op, "failed to store uploaded image")
	}

	i.logger.Debug("image ingested",
		"key", key,
		"size", len(data),
		"content_type", contentType,
	)

	return &StoredImage{
		Key:              key,
		ContentType:      contentType,
		Size:             int64(len(data)),
		Data:             data,
		OriginalFilename: path.Base(up.Filename),
		UploadedAt:       now,
	}, nil
}

// resolveImageType prefers the sniffed type. The declared type is only
// trusted when sniffing is inconclusive.
func resolveImageType(data []byte, declared string) (string, bool) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}

	sniffed := storage.SniffImageType(head)
	if domain.IsValidImageContentType(sniffed) {
		return sniffed, true
	}
	if sniffed == "application/octet-stream" && domain.IsValidImageContentType(declared) {
		return declared, true
	}
	return "", false
}
