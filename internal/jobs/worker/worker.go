package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	jobrepos "github.com/yungbote/deckrebuild-backend/internal/data/repos/jobs"
	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/jobs/runtime"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/dbctx"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/platform/envutil"
)

type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	Claim             jobrepos.ClaimPolicy
	// RetryDeterministic keeps parse and validation failures retryable.
	RetryDeterministic bool
}

func LoadConfig() Config {
	return Config{
		Concurrency:       envutil.IntRange("WORKER_CONCURRENCY", 4, 1, 64),
		PollInterval:      time.Duration(envutil.IntRange("WORKER_POLL_INTERVAL_MS", 1000, 50, 60000)) * time.Millisecond,
		HeartbeatInterval: envutil.Seconds("WORKER_HEARTBEAT_SECONDS", 30*time.Second),
		Claim: jobrepos.ClaimPolicy{
			MaxAttempts:  envutil.IntRange("JOB_MAX_ATTEMPTS", 3, 1, 20),
			RetryDelay:   envutil.Seconds("JOB_RETRY_DELAY_SECONDS", 60*time.Second),
			StaleRunning: time.Duration(envutil.IntRange("JOB_STALE_RUNNING_MINUTES", 30, 1, 24*60)) * time.Minute,
		},
		RetryDeterministic: envutil.Bool("JOB_RETRY_DETERMINISTIC_FAILURES", false),
	}
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.Claim.MaxAttempts < 1 {
		c.Claim.MaxAttempts = 1
	}
	return c
}

// Worker claims runnable jobs and executes them through the registry.
// The claim is the single-writer guarantee: only the claiming worker runs an attempt.
type Worker struct {
	log      *logger.Logger
	repo     jobrepos.RebuildJobRepo
	events   jobrepos.JobEventRepo
	registry *runtime.Registry
	notify   runtime.Notifier
	cfg      Config
}

func NewWorker(baseLog *logger.Logger, repo jobrepos.RebuildJobRepo, events jobrepos.JobEventRepo, registry *runtime.Registry, notify runtime.Notifier, cfg Config) *Worker {
	return &Worker{
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		events:   events,
		registry: registry,
		notify:   notify,
		cfg:      cfg.withDefaults(),
	}
}

func (w *Worker) Config() Config { return w.cfg }

// Run polls until ctx is cancelled and returns once every loop has exited.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting job worker pool",
		"concurrency", w.cfg.Concurrency,
		"max_attempts", w.cfg.Claim.MaxAttempts,
		"retry_delay", w.cfg.Claim.RetryDelay,
		"job_types", w.registry.Types(),
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.runLoop(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain: keep claiming while work is available.
			for ctx.Err() == nil {
				job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.Claim)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
					}
					break
				}
				if job == nil {
					break
				}
				w.Execute(ctx, job)
			}
		}
	}
}

// RunJob claims id and executes it inline. It returns the job as stored
// afterwards, and false when the job was not runnable.
func (w *Worker) RunJob(ctx context.Context, id uuid.UUID) (*types.RebuildJob, bool, error) {
	return w.RunJobWithPolicy(ctx, id, w.cfg.Claim)
}

// RunJobWithPolicy is RunJob with an explicit claim policy. Dispatchers that own
// the retry delay themselves claim with a zero RetryDelay.
func (w *Worker) RunJobWithPolicy(ctx context.Context, id uuid.UUID, policy jobrepos.ClaimPolicy) (*types.RebuildJob, bool, error) {
	dbc := dbctx.Context{Ctx: ctx}
	job, err := w.repo.ClaimByID(dbc, id, policy)
	if err != nil {
		return nil, false, fmt.Errorf("claim job %s: %w", id, err)
	}
	if job == nil {
		current, err := w.repo.Load(dbc, id)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}
	w.Execute(ctx, job)
	current, err := w.repo.Load(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, id)
	if err != nil {
		return nil, true, err
	}
	return current, true, nil
}

// Execute runs one claimed attempt. Handler panics and missing handlers end
// the attempt as FAILED instead of crashing the pool.
func (w *Worker) Execute(ctx context.Context, job *types.RebuildJob) {
	jc := runtime.NewContext(ctx, w.log, job, w.repo, w.events, w.notify)
	jc.RetryDeterministic = w.cfg.RetryDeterministic
	jc.Started()

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}

	stop := w.startHeartbeat(ctx, jc)
	defer stop()

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
				jc.Fail("panic", errFromRecover(r))
			}
		}()
		if runErr := h.Run(jc); runErr != nil {
			// Pipelines normally fail through jc; this catches the rest.
			jc.Fail("run", runErr)
		}
	}()

	if jc.Job.Status == types.StatusRunning {
		w.log.Warn("Job handler returned without a terminal status", "job_id", job.ID, "stage", jc.Job.Stage)
		jc.Fail(jc.Job.Stage, errors.New("handler returned without completing the job"))
	}
}

func (w *Worker) startHeartbeat(ctx context.Context, jc *runtime.Context) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(w.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				jc.Heartbeat()
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return "panic: unexpected error" }
