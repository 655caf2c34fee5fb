package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"backupbot/internal/domain"
)

// Pauser scopes a stop/resume bracket around one task's execution. The
// paused set is a resource: every container stopped here is started again
// on every exit path, including body failure, panic and cancellation.
type Pauser struct {
	runtime domain.ContainerRuntime
	logger  Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPauser(runtime domain.ContainerRuntime, logger Logger) *Pauser {
	return &Pauser{
		runtime: runtime,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// WithPaused stops every named container, runs body, then restarts the
// stopped containers. Stops are all-or-nothing: if one fails, the
// containers already stopped are restarted before the error propagates.
// Resume failures are surfaced as a *domain.ResumeError joined with
// body's error, never instead of it.
func (p *Pauser) WithPaused(ctx context.Context, pauseSet []string, body func(context.Context) error) error {
	// Deduplicate and order so brackets taking overlapping sets cannot
	// deadlock on the per-container locks.
	names := dedupeSorted(pauseSet)

	for _, name := range names {
		p.lockFor(name).Lock()
	}
	defer func() {
		for _, name := range names {
			p.lockFor(name).Unlock()
		}
	}()

	stopped, err := p.stopAll(ctx, names)
	if err != nil {
		// Partial stop: bring the already stopped containers back
		// before failing.
		if resumeErr := p.resumeAll(ctx, stopped); resumeErr != nil {
			return errors.Join(err, resumeErr)
		}
		return err
	}

	bodyErr := p.runBody(ctx, body)

	if resumeErr := p.resumeAll(ctx, stopped); resumeErr != nil {
		p.logger.Errorf("resume failure, container(s) may be left stopped: %v", resumeErr)
		return errors.Join(bodyErr, resumeErr)
	}
	return bodyErr
}

func (p *Pauser) runBody(ctx context.Context, body func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return body(ctx)
}

// stopAll stops the named containers that are currently running and
// returns the ones it stopped. On error the returned slice still lists
// everything stopped so far.
func (p *Pauser) stopAll(ctx context.Context, names []string) ([]string, error) {
	var stopped []string
	for _, name := range names {
		info, err := p.runtime.FindContainer(ctx, name)
		if err != nil {
			return stopped, fmt.Errorf("failed to resolve container %s: %w", name, err)
		}
		if !info.Running {
			p.logger.Infof("Container %s is not running, nothing to pause", name)
			continue
		}

		p.logger.Infof("Stopping container %s", name)
		if err := p.runtime.StopContainer(ctx, name); err != nil {
			return stopped, fmt.Errorf("failed to stop container %s: %w", name, err)
		}
		stopped = append(stopped, name)
	}
	return stopped, nil
}

// resumeAll restarts the given containers. The parent context may already
// be cancelled; resumption still has to happen, so the calls run on a
// context detached from cancellation.
func (p *Pauser) resumeAll(ctx context.Context, stopped []string) error {
	resumeCtx := context.WithoutCancel(ctx)

	failures := make(map[string]error)
	for _, name := range stopped {
		p.logger.Infof("Starting container %s", name)
		if err := p.runtime.StartContainer(resumeCtx, name); err != nil {
			failures[name] = err
		}
	}

	if len(failures) > 0 {
		return &domain.ResumeError{Failures: failures}
	}
	return nil
}

func (p *Pauser) lockFor(name string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[name] = lock
	}
	return lock
}

func dedupeSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
