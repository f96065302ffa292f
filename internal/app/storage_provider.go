package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/platform/blob"
)

var openBlobStore = blob.Open

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorMissingTarget       StorageProviderBootstrapErrorCode = "missing_target"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func resolveBlobStore(ctx context.Context, log *logger.Logger, cfg blob.Config) (blob.Store, error) {
	modeSource := cfg.ModeSource()
	log.Info(
		"Selecting object storage provider",
		"mode", cfg.Mode,
		"mode_source", modeSource,
		"compatibility_fallback", cfg.CompatibilityFallback,
		"emulator_host", cfg.EmulatorHost,
	)

	store, err := openBlobStore(ctx, log, cfg)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(cfg, err)
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", cfg.Mode,
			"mode_source", modeSource,
			"emulator_host", cfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return store, nil
}

func classifyStorageProviderBootstrapError(cfg blob.Config, err error) error {
	out := &StorageProviderBootstrapError{
		Code:         StorageProviderBootstrapErrorConnectFailed,
		Mode:         string(cfg.Mode),
		EmulatorHost: cfg.EmulatorHost,
		Cause:        err,
	}
	var cfgErr *blob.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case blob.ConfigErrorInvalidMode:
			out.Code = StorageProviderBootstrapErrorInvalidMode
		case blob.ConfigErrorMissingEmulatorHost:
			out.Code = StorageProviderBootstrapErrorMissingEmulatorHost
		case blob.ConfigErrorInvalidEmulatorHost:
			out.Code = StorageProviderBootstrapErrorInvalidEmulatorHost
		case blob.ConfigErrorMissingBucket, blob.ConfigErrorMissingLocalDir:
			out.Code = StorageProviderBootstrapErrorMissingTarget
		}
	}
	return out
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
