package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"lessonscope/internal/config"
)

// MinIOStorage stores objects in a MinIO server. Used for local development.
type MinIOStorage struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

var _ Storage = (*MinIOStorage)(nil)

// NewMinIOStorage connects to MinIO and creates the bucket when it is missing.
func NewMinIOStorage(ctx context.Context, cfg config.StorageConfig) (*MinIOStorage, error) {
	s, err := newMinIOClient(cfg)
	if err != nil {
		return nil, err
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return s, nil
}

func newMinIOClient(cfg config.StorageConfig) (*MinIOStorage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("minio storage: bucket is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "localhost:9000"
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, endpoint, cfg.Bucket)
	}
	return &MinIOStorage{client: client, bucket: cfg.Bucket, baseURL: base}, nil
}

func (m *MinIOStorage) Store(ctx context.Context, r io.Reader, size int64, originalName, contentType string) (*Object, error) {
	key := NewKey(time.Now(), originalName)
	info, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, storageErr("upload "+key, err)
	}
	return &Object{URL: m.baseURL + "/" + key, Key: key, Size: info.Size}, nil
}

func (m *MinIOStorage) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return storageErr("delete "+key, err)
	}
	return nil
}

func (m *MinIOStorage) DeleteMany(ctx context.Context, keys []string) error {
	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	var failed int
	var first error
	for rerr := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		failed++
		if first == nil {
			first = rerr.Err
		}
	}
	if failed > 0 {
		return storageErr("delete batch", fmt.Errorf("%d objects not deleted: %w", failed, first))
	}
	return nil
}

func (m *MinIOStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, ttl, nil)
	if err != nil {
		return "", storageErr("presign "+key, err)
	}
	return u.String(), nil
}

func (m *MinIOStorage) KeyFromURL(rawURL string) (string, bool) {
	return keyFromPrefix(rawURL, m.baseURL)
}
