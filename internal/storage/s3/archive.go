package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/textsql/textsql/internal/config"
	"github.com/textsql/textsql/internal/storage"
)

// objectClient is the slice of the minio API the archive needs.
type objectClient interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
}

// Archive stores raw uploads in an S3-compatible bucket under an optional
// key prefix.
type Archive struct {
	client objectClient
	bucket string
	prefix string
}

var _ storage.Archive = (*Archive)(nil)

func New(ctx context.Context, cfg config.ObjectStoreConfig) (*Archive, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	archive := &Archive{
		client: &minioClient{client: mc},
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: cleanPrefix(cfg.Prefix),
	}
	if cfg.AutoCreateBucket {
		if err := archive.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return archive, nil
}

func newWithClient(bucket, prefix string, c objectClient) *Archive {
	return &Archive{client: c, bucket: bucket, prefix: cleanPrefix(prefix)}
}

func (a *Archive) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	objectKey, err := a.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := a.client.PutObject(ctx, a.bucket, objectKey, body, size, contentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("archive %q: %w", key, err)
	}
	// Callers address objects by their unprefixed key.
	info.Key = key
	return info, nil
}

func (a *Archive) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey, err := a.objectKey(key)
	if err != nil {
		return nil, err
	}
	reader, err := a.client.GetObject(ctx, a.bucket, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("fetch archived %q: %w", key, err)
	}
	return reader, nil
}

func (a *Archive) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	objectKey, err := a.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := a.client.StatObject(ctx, a.bucket, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.ObjectInfo{}, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat archived %q: %w", key, err)
	}
	info.Key = key
	return info, nil
}

// Delete removes an archived object. A missing object is not an error.
func (a *Archive) Delete(ctx context.Context, key string) error {
	objectKey, err := a.objectKey(key)
	if err != nil {
		return err
	}
	if err := a.client.RemoveObject(ctx, a.bucket, objectKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete archived %q: %w", key, err)
	}
	return nil
}

func (a *Archive) ensureBucket(ctx context.Context, region string) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", a.bucket, err)
	}
	return nil
}

func (a *Archive) objectKey(key string) (string, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if trimmed == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	if a.prefix == "" {
		return cleaned, nil
	}
	return path.Join(a.prefix, cleaned), nil
}

func cleanPrefix(prefix string) string {
	prefix = path.Clean("/" + strings.TrimSpace(prefix))
	return strings.TrimPrefix(prefix, "/")
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse object store endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("object store endpoint host is required")
	}
	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, useSSL, nil
	default:
		return "", false, fmt.Errorf("unsupported object store scheme %q", parsed.Scheme)
	}
}
