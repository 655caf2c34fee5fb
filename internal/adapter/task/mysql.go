package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"backupbot/internal/adapter/archive"
	"backupbot/internal/domain"
)

// MySQLBackup dumps one database inside the running service container and
// copies the dump into the workspace. Consistency is delegated to
// mysqldump, so the service keeps running unless the spec says otherwise.
type MySQLBackup struct {
	spec     domain.TaskSpec
	user     string
	password string
	writer   *archive.Writer
	runtime  domain.ContainerRuntime
	logger   Logger
}

func (t *MySQLBackup) Kind() domain.TaskKind { return domain.TaskMySQL }

func (t *MySQLBackup) Targets(service domain.Service) ([]string, error) {
	// The scheme is only valid if the database is declared in the
	// service's environment.
	for _, value := range service.Environment {
		if value == t.spec.Database {
			return []string{t.spec.Database}, nil
		}
	}
	return nil, fmt.Errorf("%w: database %q is not declared in the environment of service %q",
		domain.ErrSchemeInvalid, t.spec.Database, service.Name)
}

func (t *MySQLBackup) PauseSet(service domain.Service) []string {
	if t.spec.Pause != nil && *t.spec.Pause {
		return []string{service.ContainerName}
	}
	return nil
}

func (t *MySQLBackup) Execute(ctx context.Context, service domain.Service, dir string) ([]domain.Artifact, error) {
	database := t.spec.Database
	dumpPath := "/tmp/" + database + "-dump.sql"

	dumpCmd := []string{
		"mysqldump",
		fmt.Sprintf("--user=%s", t.user),
		fmt.Sprintf("--password=%s", t.password),
		"--single-transaction",
		"--quick",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
		fmt.Sprintf("--result-file=%s", dumpPath),
		database,
	}

	output, exitCode, err := t.runtime.Exec(ctx, service.ContainerName, dumpCmd)
	if err != nil {
		return nil, t.fail(service, fmt.Errorf("%w: %v", domain.ErrDump, err))
	}
	if exitCode != 0 {
		return nil, t.fail(service, fmt.Errorf("%w: mysqldump exited with %d: %s", domain.ErrDump, exitCode, output))
	}

	stagingDir, err := os.MkdirTemp("", "backupbot-dump-")
	if err != nil {
		return nil, t.fail(service, fmt.Errorf("%w: %v", domain.ErrCopy, err))
	}
	defer os.RemoveAll(stagingDir)

	hostDump, err := t.runtime.CopyFileFromContainer(ctx, service.ContainerName, dumpPath, stagingDir)
	if err != nil {
		return nil, t.fail(service, fmt.Errorf("%w: %v", domain.ErrCopy, err))
	}

	artifactPath, err := t.writer.PlaceFile(hostDump, filepath.Join(dir, database), database, archive.ExtSQL)
	if err != nil {
		return nil, t.fail(service, fmt.Errorf("%w: %v", domain.ErrCopy, err))
	}

	// The host copy exists; a failed in-container removal is only logged.
	if _, exitCode, err := t.runtime.Exec(context.WithoutCancel(ctx), service.ContainerName, []string{"rm", "-f", dumpPath}); err != nil || exitCode != 0 {
		t.logger.Warnf("%v: remove %s in container %s: exit %d, %v", domain.ErrCleanup, dumpPath, service.ContainerName, exitCode, err)
	}

	return []domain.Artifact{{Target: database, Path: artifactPath}}, nil
}

func (t *MySQLBackup) fail(service domain.Service, err error) error {
	return &domain.TaskError{Service: service.Name, Kind: t.Kind(), Target: t.spec.Database, Err: err}
}
