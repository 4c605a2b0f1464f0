package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStorage stores crop photos in a MinIO bucket. It is the provider used
// for on-premise deployments at extension offices without Cloudflare access.
type MinIOStorage struct {
	client    *minio.Client
	bucket    string
	publicURL string
	logger    *slog.Logger
}

// NewMinIOStorage connects to the endpoint and creates the bucket if it is
// missing.
func NewMinIOStorage(ctx context.Context, cfg MinIOConfig, logger *slog.Logger) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.BucketName, err)
		}
		logger.Info("created minio bucket", "bucket", cfg.BucketName)
	}

	logger.Info("initialized MinIO storage", "endpoint", cfg.Endpoint, "bucket", cfg.BucketName)

	return &MinIOStorage{
		client:    client,
		bucket:    cfg.BucketName,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		logger:    logger,
	}, nil
}

// Put streams data to key. The object size is unknown up front, so an
// oversized upload is removed after the fact.
func (s *MinIOStorage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error {
	if err := validateKey(key); err != nil {
		return &StorageError{Op: "Put", Key: key, Err: err}
	}

	if !opts.Overwrite {
		exists, err := s.Exists(ctx, key)
		if err != nil {
			return &StorageError{Op: "Put", Key: key, Err: fmt.Errorf("failed to check existence: %w", err)}
		}
		if exists {
			return &StorageError{Op: "Put", Key: key, Err: ErrKeyExists}
		}
	}

	reader := data
	if opts.MaxSize > 0 {
		reader = io.LimitReader(data, opts.MaxSize+1)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = DetectContentType("", key, nil)
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, reader, -1, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return &StorageError{Op: "Put", Key: key, Err: wrapMinIOError(err)}
	}
	if opts.MaxSize > 0 && info.Size > opts.MaxSize {
		_ = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
		return &StorageError{Op: "Put", Key: key, Err: ErrTooLarge}
	}

	s.logger.Debug("stored object in MinIO", "key", key, "size", info.Size, "content_type", contentType)
	return nil
}

// Get fetches key. The caller must close the reader.
func (s *MinIOStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: err}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: wrapMinIOError(err)}
	}

	// GetObject is lazy; Stat surfaces a missing key.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, &StorageError{Op: "Get", Key: key, Err: wrapMinIOError(err)}
	}

	return obj, objectInfo(stat), nil
}

// Delete removes key. MinIO does not report missing keys on delete.
func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: err}
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: wrapMinIOError(err)}
	}
	s.logger.Debug("deleted object from MinIO", "key", key)
	return nil
}

// URL returns publicURL/bucket/key when a public URL is configured and
// expires is zero, otherwise a presigned URL.
func (s *MinIOStorage) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", &StorageError{Op: "URL", Key: key, Err: err}
	}

	if s.publicURL != "" && expires == 0 {
		u, err := url.Parse(s.publicURL)
		if err != nil {
			return "", &StorageError{Op: "URL", Key: key, Err: err}
		}
		u.Path = path.Join(u.Path, s.bucket, key)
		return u.String(), nil
	}
	if expires == 0 {
		expires = 15 * time.Minute
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, url.Values{})
	if err != nil {
		return "", &StorageError{Op: "URL", Key: key, Err: fmt.Errorf("failed to generate presigned URL: %w", err)}
	}
	return u.String(), nil
}

// Exists stats key.
func (s *MinIOStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, &StorageError{Op: "Exists", Key: key, Err: err}
	}

	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		wrapped := wrapMinIOError(err)
		if IsNotFound(wrapped) {
			return false, nil
		}
		return false, &StorageError{Op: "Exists", Key: key, Err: wrapped}
	}
	return true, nil
}

// List returns every object under prefix, recursively.
func (s *MinIOStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    strings.TrimSuffix(prefix, "/") + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, &StorageError{Op: "List", Key: prefix, Err: wrapMinIOError(obj.Err)}
		}
		objects = append(objects, objectInfo(obj))
	}
	return objects, nil
}

func objectInfo(obj minio.ObjectInfo) ObjectInfo {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = DetectContentType("", obj.Key, nil)
	}
	return ObjectInfo{
		Key:          obj.Key,
		Size:         obj.Size,
		ContentType:  contentType,
		LastModified: obj.LastModified,
		ETag:         obj.ETag,
	}
}

func wrapMinIOError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return ErrNotFound
	case "AccessDenied":
		return ErrAccessDenied
	}
	return fmt.Errorf("MinIO operation failed: %w", err)
}
