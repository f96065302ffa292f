package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/temporalx"
	"github.com/yungbote/deckrebuild-backend/internal/temporalx/jobrun"
)

type Runner struct {
	log         *logger.Logger
	tc          temporalsdkclient.Client
	cfg         temporalx.Config
	acts        *jobrun.Activities
	concurrency int
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, acts *jobrun.Activities, concurrency int) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if acts == nil || acts.Runner == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		log:         log.With("component", "TemporalWorker"),
		tc:          tc,
		cfg:         cfg,
		acts:        acts,
		concurrency: concurrency,
	}, nil
}

// Run starts the Temporal worker and blocks until ctx is cancelled. Start
// failures are retried for up to a minute before giving up.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	deadline := time.Now().Add(time.Minute)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			<-ctx.Done()
			w.Stop()
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) && r.cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if time.Now().After(deadline) {
			if errors.As(startErr, &nfe) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.concurrency,
	})
	Register(w, r.acts)
	return w
}

// Register binds the job workflow and its activity under their stable names.
func Register(reg worker.Registry, acts *jobrun.Activities) {
	reg.RegisterWorkflowWithOptions(jobrun.Workflow, workflow.RegisterOptions{Name: jobrun.WorkflowName})
	reg.RegisterActivityWithOptions(acts.RunAttempt, activity.RegisterOptions{Name: jobrun.ActivityRunAttempt})
}
