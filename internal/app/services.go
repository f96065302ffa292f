package app

import (
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/deckrebuild-backend/internal/jobs/pipeline/deck_rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/jobs/runtime"
	"github.com/yungbote/deckrebuild-backend/internal/jobs/worker"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/apply"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/extract"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/services"
	"github.com/yungbote/deckrebuild-backend/internal/temporalx/jobrun"
)

type Services struct {
	Notifier   services.JobNotifier
	Registry   *runtime.Registry
	Worker     *worker.Worker
	Dispatcher services.Dispatcher
	Jobs       services.JobService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")
	var out Services

	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		return out, fmt.Errorf("create scratch dir %s: %w", cfg.ScratchDir, err)
	}

	out.Notifier = services.NewJobNotifier(log, clients.Bus)

	out.Registry = runtime.NewRegistry()
	pipeline := deck_rebuild.New(
		log,
		repos.Inputs,
		repos.Artifacts,
		clients.Blob,
		extract.Parser{},
		clients.Oracle,
		apply.New(log),
		cfg.ScratchDir,
	)
	if err := out.Registry.Register(pipeline); err != nil {
		return out, fmt.Errorf("register %s: %w", pipeline.Type(), err)
	}

	out.Worker = worker.NewWorker(log, repos.Jobs, repos.Events, out.Registry, out.Notifier, cfg.Worker)

	switch cfg.Dispatch {
	case DispatchTemporal:
		d, err := jobrun.NewDispatcher(clients.Temporal, cfg.Temporal.TaskQueue, retryConfig(cfg.Worker))
		if err != nil {
			return out, err
		}
		out.Dispatcher = d
	default:
		out.Dispatcher = services.PollDispatcher{}
	}

	out.Jobs = services.NewJobService(db, log, repos.Jobs, repos.Events, repos.Artifacts, repos.Inputs, out.Notifier, out.Dispatcher)
	return out, nil
}

// retryConfig hands the worker's attempt budget and fixed delay to Temporal
// so both dispatch modes retry on the same schedule.
func retryConfig(w worker.Config) jobrun.RetryConfig {
	return jobrun.RetryConfig{
		MaxAttempts: w.Claim.MaxAttempts,
		Delay:       w.Claim.RetryDelay,
	}
}
