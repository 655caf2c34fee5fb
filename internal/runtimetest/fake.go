// Package runtimetest provides an in-memory container runtime for tests.
package runtimetest

import (
	"context"
	"fmt"
	"sync"

	"backupbot/internal/domain"
)

// FakeRuntime implements domain.ContainerRuntime against an in-memory
// container table and records every lifecycle call in order.
type FakeRuntime struct {
	mu sync.Mutex

	// Running holds the current run state per container name.
	Running map[string]bool

	// Call log, in order.
	Stops   []string
	Starts  []string
	Ran     []domain.HelperSpec
	Removed []string

	// Failure injection.
	StopErr   map[string]error
	StartErr  map[string]error
	RunErr    error
	WaitExit  int64
	WaitErr   error
	RemoveErr error

	// ExecFn handles Exec calls; nil means exit 0 with empty output.
	ExecFn func(id string, cmd []string) (string, int, error)
	// CopyFn handles CopyFileFromContainer; nil means error.
	CopyFn func(id, srcPath, destDir string) (string, error)
	// RunFn, when set, observes helper containers as they start, e.g. to
	// simulate the archive command writing into the bound directory.
	RunFn func(spec domain.HelperSpec) error

	Execs   [][]string
	helpers int
}

func New(running ...string) *FakeRuntime {
	f := &FakeRuntime{
		Running:  map[string]bool{},
		StopErr:  map[string]error{},
		StartErr: map[string]error{},
	}
	for _, name := range running {
		f.Running[name] = true
	}
	return f
}

func (f *FakeRuntime) FindContainer(_ context.Context, name string) (domain.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	running, ok := f.Running[name]
	if !ok {
		return domain.ContainerInfo{}, fmt.Errorf("%w: no container %q", domain.ErrServiceNotFound, name)
	}
	return domain.ContainerInfo{ID: name, Running: running}, nil
}

func (f *FakeRuntime) StopContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.StopErr[id]; err != nil {
		return err
	}
	f.Stops = append(f.Stops, id)
	f.Running[id] = false
	return nil
}

func (f *FakeRuntime) StartContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.StartErr[id]; err != nil {
		return err
	}
	f.Starts = append(f.Starts, id)
	f.Running[id] = true
	return nil
}

func (f *FakeRuntime) RunContainer(_ context.Context, spec domain.HelperSpec) (string, error) {
	f.mu.Lock()
	if f.RunErr != nil {
		f.mu.Unlock()
		return "", f.RunErr
	}
	f.Ran = append(f.Ran, spec)
	f.helpers++
	id := fmt.Sprintf("helper-%d", f.helpers)
	f.mu.Unlock()

	if f.RunFn != nil {
		if err := f.RunFn(spec); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (f *FakeRuntime) WaitContainer(_ context.Context, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.WaitExit, f.WaitErr
}

func (f *FakeRuntime) Exec(_ context.Context, id string, cmd []string) (string, int, error) {
	f.mu.Lock()
	f.Execs = append(f.Execs, append([]string{id}, cmd...))
	fn := f.ExecFn
	f.mu.Unlock()

	if fn == nil {
		return "", 0, nil
	}
	return fn(id, cmd)
}

func (f *FakeRuntime) CopyFileFromContainer(_ context.Context, id, srcPath, destDir string) (string, error) {
	if f.CopyFn == nil {
		return "", fmt.Errorf("%w: no copy handler", domain.ErrCopy)
	}
	return f.CopyFn(id, srcPath, destDir)
}

func (f *FakeRuntime) RemoveContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	f.Removed = append(f.Removed, id)
	return nil
}

// RemainingHelpers reports how many helper containers were started but
// never removed.
func (f *FakeRuntime) RemainingHelpers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Ran) - len(f.Removed)
}
