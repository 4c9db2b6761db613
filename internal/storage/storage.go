package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spotseeker/apiserver/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend and resolves public object URLs.
type Storage struct {
	backend   ObjectStorage
	publicURL string
}

// NewStorage constructs a Storage for backend. Objects are addressed as
// publicURL/key; an empty publicURL yields bucket-relative paths.
func NewStorage(backend ObjectStorage, publicURL string) *Storage {
	return &Storage{
		backend:   backend,
		publicURL: strings.TrimRight(strings.TrimSpace(publicURL), "/"),
	}
}

// Open builds the backend named by cfg.Backend and makes sure its bucket exists.
// It returns nil, nil when storage is disabled.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", cfg.Backend, err)
	}

	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return NewStorage(backend, cfg.PublicURL), nil
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// URL returns the address clients use to fetch key.
func (s *Storage) URL(key string) string {
	escaped := (&url.URL{Path: strings.TrimLeft(key, "/")}).EscapedPath()
	if s.publicURL == "" {
		return "/" + s.backend.Bucket() + "/" + escaped
	}
	return s.publicURL + "/" + escaped
}

// KeyOf reverses URL. It reports false for addresses outside this storage.
func (s *Storage) KeyOf(u string) (string, bool) {
	prefix := s.publicURL + "/"
	if s.publicURL == "" {
		prefix = "/" + s.backend.Bucket() + "/"
	}
	escaped, ok := strings.CutPrefix(u, prefix)
	if !ok || escaped == "" {
		return "", false
	}
	key, err := url.PathUnescape(escaped)
	if err != nil {
		return "", false
	}
	return key, true
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
