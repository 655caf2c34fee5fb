package app

import (
	"context"
	"fmt"

	"backupbot/internal/adapter/archive"
	"backupbot/internal/adapter/compose"
	"backupbot/internal/adapter/dockerruntime"
	"backupbot/internal/adapter/task"
	"backupbot/internal/config"
	"backupbot/internal/domain"
	"backupbot/internal/infrastructure/logger"
	"backupbot/internal/infrastructure/scheduler"
	"backupbot/internal/usecase"
)

type App struct {
	config       *config.Config
	logger       *logger.Logger
	runtime      *dockerruntime.Runtime
	scheduler    *scheduler.Scheduler
	orchestrator *usecase.Orchestrator
}

func New(cfg *config.Config) (*App, error) {
	// Initialize logger
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)

	// Resolve the topology once per process; every run reads the same
	// declared services.
	topology, err := compose.Load(cfg.Topology.Root, cfg.ComposePath())
	if err != nil {
		return nil, fmt.Errorf("failed to load topology: %w", err)
	}

	runtime, err := dockerruntime.New(cfg.Backup.StopTimeoutSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize container runtime: %w", err)
	}

	writer := archive.NewWriter()

	taskDeps := task.Deps{
		Writer:      writer,
		Runtime:     runtime,
		Topology:    topology,
		HelperImage: cfg.Backup.HelperImage,
		Logger:      log,
	}

	orchestrator := usecase.NewOrchestrator(
		topology,
		func() (domain.BackupScheme, error) {
			return config.LoadScheme(cfg.Backup.SchemeFile)
		},
		func(spec domain.TaskSpec) (domain.BackupTask, error) {
			return task.Build(spec, taskDeps)
		},
		usecase.NewPauser(runtime, log),
		usecase.NewRotator(log),
		log,
		cfg.Backup.Destination,
		cfg.Backup.MaxVersions,
	)

	return &App{
		config:       cfg,
		logger:       log,
		runtime:      runtime,
		scheduler:    scheduler.New(log),
		orchestrator: orchestrator,
	}, nil
}

// RunOnce executes a single backup run and reports failure if any task or
// resume failed.
func (a *App) RunOnce(ctx context.Context) error {
	report, err := a.orchestrator.Run(ctx)
	if err != nil {
		return err
	}
	if report.Failed() {
		return fmt.Errorf("backup run failed: %d task failure(s), %d resume failure(s)",
			len(report.Failures), len(report.ResumeFailures))
	}
	return nil
}

// Run either executes one backup run (no schedule configured) or keeps
// running backups on the configured cron schedule until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.config.Backup.Schedule == "" {
		return a.RunOnce(ctx)
	}

	a.logger.Infof("Scheduling backup runs: %s", a.config.Backup.Schedule)
	if err := a.scheduler.AddJob(a.config.Backup.Schedule, func(jobCtx context.Context) error {
		a.logger.Infof("=== Triggered scheduled backup run ===")
		return a.RunOnce(jobCtx)
	}); err != nil {
		return fmt.Errorf("failed to schedule backup: %w", err)
	}

	a.scheduler.Start()
	a.logger.Infof("Scheduler started successfully")

	<-ctx.Done()
	return nil
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	a.scheduler.Stop()
	if a.runtime != nil {
		_ = a.runtime.Close()
	}
	a.logger.Close()
}
