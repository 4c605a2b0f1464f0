// Package storage provides file storage abstraction for Agropal crop photos.
//
// This package defines a Storage interface with implementations for:
// - LocalStorage: File system storage (serves /uploads/crops/... directly)
// - R2Storage: Cloudflare R2 (S3-compatible) storage
// - MinIOStorage: self-hosted MinIO object storage
package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the interface for file storage operations.
//
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key with the given options.
	// Returns an error if the operation fails or if the key already exists
	// (unless overwrite is enabled in opts).
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the data at the specified key.
	// The caller must close the returned reader. Returns ErrNotFound if the
	// key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at the specified key.
	// This operation is idempotent - no error is returned if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// URL returns a URL for accessing the object at the specified key.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists checks if an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the objects stored under prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType specifies the MIME type of the object.
	// If empty, it will be auto-detected from the file extension.
	ContentType string

	// MaxSize specifies the maximum allowed size in bytes.
	// If the data exceeds this size, ErrTooLarge is returned.
	// A value of 0 means no limit.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool

	// Public determines if the object should be publicly accessible.
	Public bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string    // Object key/path
	Size         int64     // Size in bytes
	ContentType  string    // MIME type
	LastModified time.Time // Last modification time
	ETag         string    // Entity tag (if available)
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where files are stored.
	// Example: "./uploads"
	BasePath string

	// BaseURL is the URL prefix files are served under.
	// Example: "/uploads" (relative) or "http://localhost:8080/uploads"
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the public URL for the bucket (if using a custom domain).
	// If empty, presigned URLs will be used for all access.
	PublicURL string

	// Region is required by the AWS SDK. R2 accepts "auto".
	Region string
}

// MinIOConfig holds configuration for MinIO storage.
type MinIOConfig struct {
	Endpoint        string // host:port, e.g. "127.0.0.1:9000"
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool

	// PublicURL is prefixed to "<bucket>/<key>" to build object URLs.
	PublicURL string
}

// =============================================================================
// Provider Constants
// =============================================================================

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderR2 identifies the Cloudflare R2 storage provider.
	ProviderR2 = "r2"

	// ProviderMinIO identifies the MinIO storage provider.
	ProviderMinIO = "minio"
)

// =============================================================================
// Key Generation Helpers
// =============================================================================

// UploadKey generates a storage key for a newly uploaded crop photo.
// Format: {prefix}/crop-{unix ms}-{8 hex chars}{ext}
//
// Example: "crops/crop-1718031234567-9f2c41ab.jpg"
func UploadKey(prefix, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/crop-%d-%s%s", prefix, now.UnixMilli(), randomHex(4), ext)
}

// NormalizedKey returns the key a normalized JPEG copy of key is written to.
//
// Example: "crops/crop-1718031234567-9f2c41ab_optimized.jpg"
func NormalizedKey(key string) string {
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + "_optimized.jpg"
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
