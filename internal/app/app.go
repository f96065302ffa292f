package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/deckrebuild-backend/internal/data/db"
	"github.com/yungbote/deckrebuild-backend/internal/observability"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/temporalx/jobrun"
	"github.com/yungbote/deckrebuild-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services

	dbService    *db.Service
	shutdownOtel func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, log, cfg)
}

// NewWithConfig wires the app from an explicit config. The caller keeps
// ownership of log until New returns successfully.
func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	a := &App{Log: log, Cfg: cfg}
	a.shutdownOtel = observability.InitOTel(ctx, log, cfg.Otel)

	dbService, err := db.NewService(log, cfg.DB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.dbService = dbService
	a.DB = dbService.DB()
	if err := db.AutoMigrateAll(a.DB); err != nil {
		a.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	a.Repos = wireRepos(a.DB, log)

	a.Clients, err = wireClients(ctx, log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Services, err = wireServices(a.DB, log, cfg, a.Repos, a.Clients)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// RunWorker executes jobs until ctx is cancelled, either by polling the job
// table or as a Temporal activity worker.
func (a *App) RunWorker(ctx context.Context) error {
	if a == nil || a.Services.Worker == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Cfg.Dispatch != DispatchTemporal {
		return a.Services.Worker.Run(ctx)
	}
	acts := &jobrun.Activities{
		Log:    a.Log,
		Runner: a.Services.Worker,
		Policy: a.Cfg.Worker.Claim,
	}
	runner, err := temporalworker.NewRunner(a.Log, a.Clients.Temporal, a.Cfg.Temporal, acts, a.Cfg.Worker.Concurrency)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("Close database failed", "error", err)
		}
		a.dbService = nil
	}
	if a.shutdownOtel != nil {
		if err := a.shutdownOtel(context.Background()); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
		a.shutdownOtel = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
