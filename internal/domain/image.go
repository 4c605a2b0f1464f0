// Package domain contains core business types and interfaces.
//
// This file defines the upload constraints for crop photos.
package domain

import (
	"path/filepath"
	"strings"
)

// =============================================================================
// Image Constants
// =============================================================================

// SupportedImageTypes maps accepted MIME types to their human-readable names.
var SupportedImageTypes = map[string]string{
	"image/jpeg": "JPEG",
	"image/png":  "PNG",
	"image/webp": "WebP",
	"image/heic": "HEIC",
	"image/heif": "HEIF",
}

// SupportedImageExtensions lists the filename extensions accepted for upload.
var SupportedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".heic": true,
	".heif": true,
}

const (
	// DefaultMaxImageSize is the default upload limit (10MB).
	DefaultMaxImageSize = 10 * 1024 * 1024

	// NormalizedMaxEdge bounds the longest edge of a normalized image.
	NormalizedMaxEdge = 1024

	// NormalizedJPEGQuality is the JPEG quality of normalized images (0-100).
	NormalizedJPEGQuality = 80

	// UploadPrefix is the storage area crop photos are written to.
	UploadPrefix = "crops"
)

// =============================================================================
// Validation Helpers
// =============================================================================

// IsValidImageContentType checks if the content type is supported.
func IsValidImageContentType(contentType string) bool {
	baseType := strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
	if baseType == "image/jpg" {
		baseType = "image/jpeg"
	}
	_, ok := SupportedImageTypes[baseType]
	return ok
}

// IsValidImageExtension checks the extension of an uploaded filename.
func IsValidImageExtension(filename string) bool {
	return SupportedImageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ValidateImageSize checks if the file size is within limits.
func ValidateImageSize(size, maxSize int64) error {
	if size > maxSize {
		return Errorf(EINVALIDFILE, "image.validate", "Image is too large (%.1fMB). The maximum size is %.0fMB.", float64(size)/(1024*1024), float64(maxSize)/(1024*1024))
	}
	if size == 0 {
		return InvalidUpload("image.validate", "Image file is empty")
	}
	return nil
}
