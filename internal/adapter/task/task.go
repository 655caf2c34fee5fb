// Package task implements the backup task variants behind the
// domain.BackupTask contract.
package task

import (
	"fmt"
	"strings"

	"backupbot/internal/adapter/archive"
	"backupbot/internal/domain"
)

// Logger is the subset of the application logger the tasks need.
type Logger interface {
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Deps carries the collaborators shared by all task kinds.
type Deps struct {
	Writer      *archive.Writer
	Runtime     domain.ContainerRuntime
	Topology    domain.Topology
	HelperImage string
	Logger      Logger
}

// Build constructs the task implementation for one spec. Credential key
// paths are resolved here, so an unresolvable reference fails before any
// container is touched.
func Build(spec domain.TaskSpec, deps Deps) (domain.BackupTask, error) {
	switch spec.Kind {
	case domain.TaskBindMount:
		return &BindMountBackup{spec: spec, writer: deps.Writer}, nil

	case domain.TaskVolume:
		return &VolumeBackup{
			spec:        spec,
			writer:      deps.Writer,
			runtime:     deps.Runtime,
			helperImage: deps.HelperImage,
			logger:      deps.Logger,
		}, nil

	case domain.TaskMySQL:
		user, err := resolveCredential(spec.User, deps.Topology)
		if err != nil {
			return nil, err
		}
		password, err := resolveCredential(spec.Password, deps.Topology)
		if err != nil {
			return nil, err
		}
		return &MySQLBackup{
			spec:     spec,
			user:     user,
			password: password,
			writer:   deps.Writer,
			runtime:  deps.Runtime,
			logger:   deps.Logger,
		}, nil
	}

	return nil, fmt.Errorf("%w: unknown task kind %q", domain.ErrSchemeInvalid, spec.Kind)
}

// resolveCredential treats values of the form service.environment.KEY as
// key paths into the topology and everything else as literals.
func resolveCredential(value string, topology domain.Topology) (string, error) {
	if !strings.Contains(value, ".environment.") {
		return value, nil
	}
	return topology.ResolveKeyPath(value)
}

// pauseOwning applies the spec's pause override to a kind whose default is
// to pause the owning service.
func pauseOwning(spec domain.TaskSpec, service domain.Service) []string {
	if spec.Pause != nil && !*spec.Pause {
		return nil
	}
	return []string{service.ContainerName}
}
