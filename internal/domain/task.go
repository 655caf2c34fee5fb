package domain

import "context"

type TaskKind string

const (
	TaskBindMount TaskKind = "bind_mount_backup"
	TaskVolume    TaskKind = "volume_backup"
	TaskMySQL     TaskKind = "mysql_backup"
)

// DirName is the workspace directory a task kind writes its targets into.
func (k TaskKind) DirName() string {
	switch k {
	case TaskBindMount:
		return "bind_mounts"
	case TaskVolume:
		return "volumes"
	case TaskMySQL:
		return "mysql_databases"
	}
	return string(k)
}

// TaskSpec is one entry of the backup scheme. Immutable once loaded.
type TaskSpec struct {
	Kind TaskKind

	// bind_mount_backup
	BindMounts []string

	// volume_backup
	Volumes []string

	// mysql_backup; User and Password may be literal values or dotted
	// key paths into the topology's environment.
	Database string
	User     string
	Password string

	// Pause overrides the kind's default pause behavior when set.
	Pause *bool
}

// ServiceTasks is the ordered task list declared for one service.
type ServiceTasks struct {
	Service string
	Tasks   []TaskSpec
}

// BackupScheme maps services to their backup tasks, in declared order.
type BackupScheme struct {
	Services []ServiceTasks
}

// Artifact is one timestamped file produced for a backup target.
type Artifact struct {
	Target string
	Path   string
}

// BackupTask produces the artifacts of one TaskSpec for one service.
type BackupTask interface {
	Kind() TaskKind

	// Targets resolves the spec's target references against the service's
	// declared mounts and environment. A reference that does not exist
	// makes the whole scheme invalid for the service.
	Targets(service Service) ([]string, error)

	// PauseSet is the set of container names that must be stopped while
	// the task executes. May be empty.
	PauseSet(service Service) []string

	// Execute writes one artifact per target under dir and returns the
	// artifacts produced. On failure the artifacts written so far are
	// still returned alongside the error.
	Execute(ctx context.Context, service Service, dir string) ([]Artifact, error)
}
