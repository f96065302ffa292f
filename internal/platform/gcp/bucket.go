package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	pkgerrors "github.com/yungbote/deckrebuild-backend/internal/pkg/errors"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

const (
	opTimeout = 2 * time.Minute
	// Decks are bounded; anything larger is refused instead of buffered.
	maxObjectBytes = 512 << 20
)

// BucketConfig selects a single bucket. A non-empty EmulatorHost targets
// fake-gcs instead of the real service.
type BucketConfig struct {
	Bucket       string
	EmulatorHost string
}

// BucketStore keeps job inputs and outputs as objects in one GCS bucket.
type BucketStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func NewBucketStore(ctx context.Context, log *logger.Logger, cfg BucketConfig) (*BucketStore, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("missing env var DECK_GCS_BUCKET_NAME")
	}
	client, err := newStorageClient(ctx, cfg.EmulatorHost)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	storeLog := log.With("service", "BucketStore")
	storeLog.Info("Object storage initialized", "bucket", bucket, "emulator_host", cfg.EmulatorHost)
	return &BucketStore{log: storeLog, client: client, bucket: bucket}, nil
}

func newStorageClient(ctx context.Context, emulatorHost string) (*storage.Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(emulatorHost), "/")
	if endpoint == "" {
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	}
	// The storage client only honors the emulator through the environment.
	_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
	return storage.NewClient(ctx, option.WithoutAuthentication())
}

func (s *BucketStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %q: %w", key, pkgerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	defer r.Close()
	if r.Attrs.Size > maxObjectBytes {
		return nil, fmt.Errorf("object %q is %d bytes, limit %d", key, r.Attrs.Size, maxObjectBytes)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxObjectBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object: %w", err)
	}
	return data, nil
}

func (s *BucketStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (s *BucketStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat GCS object: %w", err)
	}
}

// List returns object keys under prefix in lexical order.
func (s *BucketStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (s *BucketStore) Close() error {
	return s.client.Close()
}
