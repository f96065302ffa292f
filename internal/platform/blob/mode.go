package blob

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/platform/gcp"
)

type Mode string

const (
	ModeLocal       Mode = "local"
	ModeMemory      Mode = "memory"
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
)

type Config struct {
	Mode                  Mode
	Bucket                string
	EmulatorHost          string
	LocalDir              string
	CompatibilityFallback bool
}

func IsSupportedMode(mode Mode) bool {
	switch mode {
	case ModeLocal, ModeMemory, ModeGCS, ModeGCSEmulator:
		return true
	default:
		return false
	}
}

func (cfg Config) ModeSource() string {
	if cfg.CompatibilityFallback {
		return "compatibility_fallback"
	}
	return "explicit_or_default"
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidEmulatorHost ConfigErrorCode = "invalid_emulator_host"
	ConfigErrorMissingBucket       ConfigErrorCode = "missing_bucket"
	ConfigErrorMissingLocalDir     ConfigErrorCode = "missing_local_dir"
)

type ConfigError struct {
	Code         ConfigErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf(
			"invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q, %q, %q)",
			e.Mode, ModeLocal, ModeMemory, ModeGCS, ModeGCSEmulator,
		)
	case ConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", ModeGCSEmulator)
	case ConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf(
			"invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443",
			e.EmulatorHost,
		)
	case ConfigErrorMissingBucket:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires DECK_GCS_BUCKET_NAME to be set", e.Mode)
	case ConfigErrorMissingLocalDir:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires LOCAL_BLOB_DIR to be set", ModeLocal)
	default:
		return "invalid object storage config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveConfigFromEnv defaults to local storage. A bare STORAGE_EMULATOR_HOST
// selects the emulator for compatibility with older deployments.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		EmulatorHost: strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")),
		Bucket:       strings.TrimSpace(os.Getenv("DECK_GCS_BUCKET_NAME")),
		LocalDir:     strings.TrimSpace(os.Getenv("LOCAL_BLOB_DIR")),
	}
	if cfg.LocalDir == "" {
		cfg.LocalDir = "./data/blobs"
	}

	rawMode := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_MODE"))
	mode := Mode(strings.ToLower(rawMode))
	switch {
	case mode == "" && cfg.EmulatorHost != "":
		cfg.Mode = ModeGCSEmulator
		cfg.CompatibilityFallback = true
	case mode == "":
		cfg.Mode = ModeLocal
	case IsSupportedMode(mode):
		cfg.Mode = mode
	default:
		return cfg, &ConfigError{Code: ConfigErrorInvalidMode, Mode: rawMode}
	}

	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	switch cfg.Mode {
	case ModeMemory:
		return nil
	case ModeLocal:
		if strings.TrimSpace(cfg.LocalDir) == "" {
			return &ConfigError{Code: ConfigErrorMissingLocalDir, Mode: string(cfg.Mode)}
		}
		return nil
	case ModeGCS, ModeGCSEmulator:
	default:
		return &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}

	if cfg.Bucket == "" {
		return &ConfigError{Code: ConfigErrorMissingBucket, Mode: string(cfg.Mode)}
	}
	if cfg.Mode != ModeGCSEmulator {
		return nil
	}
	if cfg.EmulatorHost == "" {
		return &ConfigError{Code: ConfigErrorMissingEmulatorHost, Mode: string(cfg.Mode)}
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return &ConfigError{
			Code:         ConfigErrorInvalidEmulatorHost,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Cause:        err,
		}
	}
	return nil
}

// Open builds the Store selected by cfg.
func Open(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	log.Info("Opening object storage", "mode", cfg.Mode, "mode_source", cfg.ModeSource())
	switch cfg.Mode {
	case ModeMemory:
		return NewMemory(), nil
	case ModeLocal:
		return NewLocal(cfg.LocalDir)
	case ModeGCSEmulator:
		return gcp.NewBucketStore(ctx, log, gcp.BucketConfig{Bucket: cfg.Bucket, EmulatorHost: cfg.EmulatorHost})
	default:
		return gcp.NewBucketStore(ctx, log, gcp.BucketConfig{Bucket: cfg.Bucket})
	}
}
