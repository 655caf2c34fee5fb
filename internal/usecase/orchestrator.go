package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"backupbot/internal/domain"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// SchemeLoader loads and structurally validates the backup scheme.
type SchemeLoader func() (domain.BackupScheme, error)

// TaskFactory builds the task implementation for one spec, resolving any
// indirect references it carries.
type TaskFactory func(spec domain.TaskSpec) (domain.BackupTask, error)

// Orchestrator drives one end-to-end backup run: load the scheme, resolve
// every reference, execute tasks per service inside their pause windows,
// rotate histories and aggregate failures.
type Orchestrator struct {
	topology    domain.Topology
	loadScheme  SchemeLoader
	buildTask   TaskFactory
	pauser      *Pauser
	rotator     *Rotator
	logger      Logger
	destination string
	maxVersions int
}

func NewOrchestrator(
	topology domain.Topology,
	loadScheme SchemeLoader,
	buildTask TaskFactory,
	pauser *Pauser,
	rotator *Rotator,
	logger Logger,
	destination string,
	maxVersions int,
) *Orchestrator {
	return &Orchestrator{
		topology:    topology,
		loadScheme:  loadScheme,
		buildTask:   buildTask,
		pauser:      pauser,
		rotator:     rotator,
		logger:      logger,
		destination: destination,
		maxVersions: maxVersions,
	}
}

type plannedTask struct {
	task    domain.BackupTask
	kindDir string
}

type plannedService struct {
	service domain.Service
	tasks   []plannedTask
}

// Run executes one backup run. Loading and resolving errors abort before
// any container is touched; a task failure is recorded and the run
// continues with the next task. The returned report is never nil.
func (o *Orchestrator) Run(ctx context.Context) (*domain.RunReport, error) {
	report := &domain.RunReport{State: domain.StateIdle, StartedAt: time.Now()}

	plan, err := o.prepare(report)
	if err != nil {
		report.State = domain.StateFailed
		report.FinishedAt = time.Now()
		return report, err
	}

	report.State = domain.StateRunning
	for _, planned := range plan {
		if ctx.Err() != nil {
			break
		}
		o.runService(ctx, planned, report)
	}

	report.State = domain.StateFinalizing
	report.FinishedAt = time.Now()

	message := fmt.Sprintf("%d successful, %d errors", report.Succeeded, len(report.Failures))
	if report.Failed() || ctx.Err() != nil {
		report.State = domain.StateFailed
		o.logger.Warnf("Backup run finished: %s", message)
	} else {
		report.State = domain.StateDone
		o.logger.Infof("Backup run finished: %s", message)
	}

	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

// prepare covers the Loading and Resolving states: any invalid or
// unresolvable reference fails here, with no side effects on containers.
func (o *Orchestrator) prepare(report *domain.RunReport) ([]plannedService, error) {
	report.State = domain.StateLoading
	o.logger.Infof("Loading backup scheme")

	scheme, err := o.loadScheme()
	if err != nil {
		return nil, err
	}

	report.State = domain.StateResolving
	var plan []plannedService

	for _, entry := range scheme.Services {
		service, err := o.topology.Resolve(entry.Service)
		if err != nil {
			return nil, err
		}

		planned := plannedService{service: service}
		for _, spec := range entry.Tasks {
			task, err := o.buildTask(spec)
			if err != nil {
				return nil, err
			}
			if _, err := task.Targets(service); err != nil {
				return nil, err
			}
			planned.tasks = append(planned.tasks, plannedTask{
				task:    task,
				kindDir: filepath.Join(o.destination, service.Name, spec.Kind.DirName()),
			})
		}
		plan = append(plan, planned)
	}

	// Workspace subtrees exist before the first write.
	for _, planned := range plan {
		for _, pt := range planned.tasks {
			if err := os.MkdirAll(pt.kindDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create workspace %s: %w", pt.kindDir, err)
			}
		}
	}

	return plan, nil
}

func (o *Orchestrator) runService(ctx context.Context, planned plannedService, report *domain.RunReport) {
	service := planned.service
	o.logger.Infof("Running %d backup task(s) for service %q", len(planned.tasks), service.Name)

	for _, pt := range planned.tasks {
		if ctx.Err() != nil {
			return
		}

		kind := pt.task.Kind()
		o.logger.Infof("Running %s for service %q", kind, service.Name)

		var artifacts []domain.Artifact
		err := o.pauser.WithPaused(ctx, pt.task.PauseSet(service), func(ctx context.Context) error {
			var execErr error
			artifacts, execErr = pt.task.Execute(ctx, service, pt.kindDir)
			return execErr
		})

		report.Artifacts = append(report.Artifacts, artifacts...)
		o.record(report, service, kind, err)
		if err == nil {
			report.Succeeded++
		}

		// Rotate every target a new artifact landed in, even after a
		// partial failure, so histories stay bounded.
		for _, artifact := range artifacts {
			if _, err := o.rotator.Rotate(filepath.Dir(artifact.Path), o.maxVersions); err != nil {
				o.logger.Errorf("Rotation failed for %q: %v", artifact.Target, err)
				report.Failures = append(report.Failures, domain.TaskFailure{
					Service: service.Name,
					Kind:    kind,
					Target:  artifact.Target,
					Message: fmt.Sprintf("rotation: %v", err),
				})
			}
		}
	}

	o.logger.Infof("Finished backup of service %q", service.Name)
}

// record splits a task error into its resume and task parts and files
// both in the report. Resume failures mean a container may be left
// stopped; they are logged loudly and always fail the run.
func (o *Orchestrator) record(report *domain.RunReport, service domain.Service, kind domain.TaskKind, err error) {
	if err == nil {
		return
	}

	var resumeErr *domain.ResumeError
	if errors.As(err, &resumeErr) {
		for name, cause := range resumeErr.Failures {
			o.logger.Errorf("Service %q may be left stopped: %v", name, cause)
			report.ResumeFailures = append(report.ResumeFailures, domain.ResumeFailure{
				Service: name,
				Message: cause.Error(),
			})
		}
	}

	var taskErr *domain.TaskError
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Run reports the cancellation once at run level.
	case errors.As(err, &taskErr):
		o.logger.Errorf("Failed to execute %s for service %q: %v", kind, service.Name, taskErr)
		report.Failures = append(report.Failures, domain.TaskFailure{
			Service: taskErr.Service,
			Kind:    taskErr.Kind,
			Target:  taskErr.Target,
			Message: taskErr.Err.Error(),
		})
	case resumeErr == nil || !onlyResume(err, resumeErr):
		o.logger.Errorf("Failed to execute %s for service %q: %v", kind, service.Name, err)
		report.Failures = append(report.Failures, domain.TaskFailure{
			Service: service.Name,
			Kind:    kind,
			Message: err.Error(),
		})
	}
}

// onlyResume reports whether err carries nothing beyond the resume
// failure, in which case a second generic task failure would be noise.
func onlyResume(err error, resumeErr *domain.ResumeError) bool {
	return err.Error() == resumeErr.Error()
}
