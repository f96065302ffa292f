package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/platform/blob"
)

func TestClassifyStorageProviderBootstrapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want StorageProviderBootstrapErrorCode
	}{
		{"invalid mode", &blob.ConfigError{Code: blob.ConfigErrorInvalidMode, Mode: "bad-mode"}, StorageProviderBootstrapErrorInvalidMode},
		{"missing emulator host", &blob.ConfigError{Code: blob.ConfigErrorMissingEmulatorHost}, StorageProviderBootstrapErrorMissingEmulatorHost},
		{"invalid emulator host", &blob.ConfigError{Code: blob.ConfigErrorInvalidEmulatorHost, EmulatorHost: "fake-gcs:4443"}, StorageProviderBootstrapErrorInvalidEmulatorHost},
		{"missing bucket", &blob.ConfigError{Code: blob.ConfigErrorMissingBucket}, StorageProviderBootstrapErrorMissingTarget},
		{"missing local dir", &blob.ConfigError{Code: blob.ConfigErrorMissingLocalDir}, StorageProviderBootstrapErrorMissingTarget},
		{"connect failed", errors.New("dial tcp: connection refused"), StorageProviderBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStorageProviderBootstrapError(blob.Config{Mode: blob.ModeGCS}, tc.err)
			var got *StorageProviderBootstrapError
			if !errors.As(err, &got) {
				t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
			}
			if got.Code != tc.want {
				t.Fatalf("code: want=%q got=%q", tc.want, got.Code)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("cause not preserved: %v", err)
			}
		})
	}
}

func TestResolveBlobStoreInvalidMode(t *testing.T) {
	_, err := resolveBlobStore(context.Background(), logger.Nop(), blob.Config{Mode: "invalid"})
	if storageProviderBootstrapErrorCode(err) != StorageProviderBootstrapErrorInvalidMode {
		t.Fatalf("err = %v, want invalid_mode", err)
	}
}

func TestResolveBlobStoreMissingEmulatorHost(t *testing.T) {
	_, err := resolveBlobStore(context.Background(), logger.Nop(), blob.Config{Mode: blob.ModeGCSEmulator, Bucket: "decks"})
	if storageProviderBootstrapErrorCode(err) != StorageProviderBootstrapErrorMissingEmulatorHost {
		t.Fatalf("err = %v, want missing_emulator_host", err)
	}
}

func TestResolveBlobStorePassesConfigThrough(t *testing.T) {
	orig := openBlobStore
	t.Cleanup(func() { openBlobStore = orig })

	var captured blob.Config
	expected := blob.NewMemory()
	openBlobStore = func(_ context.Context, _ *logger.Logger, cfg blob.Config) (blob.Store, error) {
		captured = cfg
		return expected, nil
	}

	cfg := blob.Config{Mode: blob.ModeGCSEmulator, Bucket: "decks", EmulatorHost: "http://fake-gcs:4443"}
	got, err := resolveBlobStore(context.Background(), logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("resolveBlobStore: %v", err)
	}
	if got != blob.Store(expected) {
		t.Fatalf("store: expected stub instance")
	}
	if captured != cfg {
		t.Fatalf("config: want=%+v got=%+v", cfg, captured)
	}
}

func TestResolveBlobStoreConnectFailure(t *testing.T) {
	orig := openBlobStore
	t.Cleanup(func() { openBlobStore = orig })
	openBlobStore = func(context.Context, *logger.Logger, blob.Config) (blob.Store, error) {
		return nil, errors.New("storage.NewClient: credentials not found")
	}

	_, err := resolveBlobStore(context.Background(), logger.Nop(), blob.Config{Mode: blob.ModeGCS, Bucket: "decks"})
	if storageProviderBootstrapErrorCode(err) != StorageProviderBootstrapErrorConnectFailed {
		t.Fatalf("err = %v, want connect_failed", err)
	}
}
