// Package storage persists uploaded audio in an object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"lessonscope/internal/config"
	apperr "lessonscope/internal/errors"
)

// KeyPrefix namespaces every object this service writes.
const KeyPrefix = "audio/"

// Object describes a stored blob.
type Object struct {
	URL  string `json:"url"`
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// Storage is the object store port.
type Storage interface {
	Store(ctx context.Context, r io.Reader, size int64, originalName, contentType string) (*Object, error)
	// Delete and DeleteMany are best effort. Callers log failures and move on.
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// KeyFromURL recovers the object key from a URL this store produced.
	KeyFromURL(rawURL string) (string, bool)
}

// New builds the Storage selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "minio":
		return NewMinIOStorage(ctx, cfg)
	case "s3", "":
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.Driver)
	}
}

// NewKey returns audio/{year}/{month}/{uuid}{ext}. The month is not zero padded.
func NewKey(now time.Time, originalName string) string {
	return fmt.Sprintf("%s%d/%d/%s%s", KeyPrefix, now.Year(), int(now.Month()), uuid.NewString(), filepath.Ext(originalName))
}

// keyFromPrefix strips base from rawURL and accepts only keys this service writes.
func keyFromPrefix(rawURL, base string) (string, bool) {
	if base == "" || !strings.HasPrefix(rawURL, base+"/") {
		return "", false
	}
	key := strings.TrimPrefix(rawURL, base+"/")
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if !strings.HasPrefix(key, KeyPrefix) || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

func storageErr(op string, err error) error {
	return fmt.Errorf("storage %s: %w: %v", op, apperr.ErrStorage, err)
}

// DefaultAllowedTypes are the audio mime types the upload endpoint accepts.
var DefaultAllowedTypes = []string{
	"audio/wav",
	"audio/mp3",
	"audio/mpeg",
	"audio/m4a",
	"audio/x-m4a",
	"audio/mp4",
}

// DefaultMaxUploadBytes is the upload ceiling.
const DefaultMaxUploadBytes int64 = 100 * 1024 * 1024

// UploadPolicy rejects uploads before they reach the store.
type UploadPolicy struct {
	MaxBytes     int64
	AllowedTypes map[string]struct{}
}

// NewUploadPolicy builds a policy. A non-positive maxBytes uses the default.
func NewUploadPolicy(maxBytes int64, allowed []string) UploadPolicy {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	types := make(map[string]struct{}, len(allowed))
	for _, t := range allowed {
		types[strings.ToLower(t)] = struct{}{}
	}
	return UploadPolicy{MaxBytes: maxBytes, AllowedTypes: types}
}

// Check validates size and content type and returns the normalised mime type.
func (p UploadPolicy) Check(size int64, contentType string) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("%w: empty file", apperr.ErrValidation)
	}
	if size > p.MaxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", apperr.ErrValidation, p.MaxBytes)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: unsupported file type", apperr.ErrValidation)
	}
	mediaType = strings.ToLower(mediaType)
	if _, ok := p.AllowedTypes[mediaType]; !ok {
		return "", fmt.Errorf("%w: unsupported file type %s", apperr.ErrValidation, mediaType)
	}
	return mediaType, nil
}
