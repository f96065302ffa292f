package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/deckrebuild-backend/internal/data/db"
	"github.com/yungbote/deckrebuild-backend/internal/jobs/worker"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/oracle"
	"github.com/yungbote/deckrebuild-backend/internal/observability"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/platform/blob"
	"github.com/yungbote/deckrebuild-backend/internal/platform/envutil"
	"github.com/yungbote/deckrebuild-backend/internal/realtime/bus"
	"github.com/yungbote/deckrebuild-backend/internal/temporalx"
)

const (
	DispatchPoll     = "poll"
	DispatchTemporal = "temporal"
)

type Config struct {
	DB         db.Config
	Blob       blob.Config
	Oracle     oracle.Config
	Worker     worker.Config
	Dispatch   string
	Temporal   temporalx.Config
	Redis      bus.RedisConfig
	Otel       observability.OtelConfig
	ScratchDir string
}

func LoadConfig(log *logger.Logger) (Config, error) {
	blobCfg, err := blob.ResolveConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		DB:         db.LoadConfig(),
		Blob:       blobCfg,
		Oracle:     oracle.LoadConfig(),
		Worker:     worker.LoadConfig(),
		Dispatch:   strings.ToLower(envutil.String("JOB_DISPATCH", DispatchPoll)),
		Temporal:   temporalx.LoadConfig(),
		Redis:      bus.LoadRedisConfig(),
		Otel:       observability.LoadOtelConfig("deckrebuild"),
		ScratchDir: envutil.String("REBUILD_SCRATCH_DIR", filepath.Join(os.TempDir(), "deckrebuild")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	log.Info("Configuration loaded",
		"db_driver", cfg.DB.Driver,
		"object_storage_mode", cfg.Blob.Mode,
		"oracle_provider", cfg.Oracle.Provider,
		"dispatch", cfg.Dispatch,
		"worker_concurrency", cfg.Worker.Concurrency,
		"max_attempts", cfg.Worker.Claim.MaxAttempts,
		"retry_delay", cfg.Worker.Claim.RetryDelay,
	)
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Dispatch {
	case DispatchPoll:
	case DispatchTemporal:
		if strings.TrimSpace(c.Temporal.Address) == "" {
			return fmt.Errorf("JOB_DISPATCH=%s requires TEMPORAL_ADDRESS", DispatchTemporal)
		}
	default:
		return fmt.Errorf("invalid JOB_DISPATCH=%q (allowed: %q, %q)", c.Dispatch, DispatchPoll, DispatchTemporal)
	}
	if err := c.Oracle.Validate(); err != nil {
		return fmt.Errorf("oracle config: %w", err)
	}
	return nil
}
