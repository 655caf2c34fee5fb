package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Pre-flight errors abort the whole run before any container is touched.
var (
	ErrSchemeInvalid   = errors.New("backup scheme invalid")
	ErrServiceNotFound = errors.New("service not found")
	ErrKeyResolution   = errors.New("key path not resolvable")
)

// Per-task errors are recorded and the run continues.
var (
	ErrPathNotFound    = errors.New("path not found")
	ErrVolumeNotFound  = errors.New("volume not found")
	ErrHelperContainer = errors.New("helper container failed")
	ErrDump            = errors.New("database dump failed")
	ErrCopy            = errors.New("copy from container failed")
)

// ErrCleanup marks failures that are logged but never fail a backup whose
// artifact already exists on the host.
var ErrCleanup = errors.New("cleanup failed")

// TaskError ties a task failure to the service and target it occurred on,
// so the final report carries enough context to retry that one target.
type TaskError struct {
	Service string
	Kind    TaskKind
	Target  string
	Err     error
}

func (e *TaskError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s %s: %v", e.Service, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s %q: %v", e.Service, e.Kind, e.Target, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// ResumeError reports services that could not be restarted after a pause
// window. It means a container may be left stopped and is never swallowed.
type ResumeError struct {
	Failures map[string]error
}

func (e *ResumeError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	return fmt.Sprintf("failed to resume container(s) %s", strings.Join(names, ", "))
}
