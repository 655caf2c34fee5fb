package task

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"backupbot/internal/adapter/archive"
	"backupbot/internal/domain"
)

// BindMountBackup archives the host directory behind each referenced bind
// mount into one tar.gz artifact per mount.
type BindMountBackup struct {
	spec   domain.TaskSpec
	writer *archive.Writer
}

func (t *BindMountBackup) Kind() domain.TaskKind { return domain.TaskBindMount }

func (t *BindMountBackup) Targets(service domain.Service) ([]string, error) {
	mounts, err := t.resolveMounts(service)
	if err != nil {
		return nil, err
	}
	targets := make([]string, len(mounts))
	for i, mount := range mounts {
		targets[i] = mountTarget(mount)
	}
	return targets, nil
}

func (t *BindMountBackup) PauseSet(service domain.Service) []string {
	return pauseOwning(t.spec, service)
}

func (t *BindMountBackup) Execute(ctx context.Context, service domain.Service, dir string) ([]domain.Artifact, error) {
	mounts, err := t.resolveMounts(service)
	if err != nil {
		return nil, &domain.TaskError{Service: service.Name, Kind: t.Kind(), Err: err}
	}

	var artifacts []domain.Artifact
	for _, mount := range mounts {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}

		target := mountTarget(mount)
		artifactPath, err := t.writer.ArchiveDir(mount.HostPath, filepath.Join(dir, target), target)
		if err != nil {
			return artifacts, &domain.TaskError{Service: service.Name, Kind: t.Kind(), Target: target, Err: err}
		}
		artifacts = append(artifacts, domain.Artifact{Target: target, Path: artifactPath})
	}
	return artifacts, nil
}

// resolveMounts maps the spec's bind mount references onto the service's
// declared mounts. The reference "all" selects every declared mount.
func (t *BindMountBackup) resolveMounts(service domain.Service) ([]domain.BindMount, error) {
	if len(t.spec.BindMounts) == 1 && t.spec.BindMounts[0] == "all" {
		if len(service.BindMounts) == 0 {
			return nil, fmt.Errorf("%w: service %q declares no bind mounts", domain.ErrPathNotFound, service.Name)
		}
		return service.BindMounts, nil
	}

	mounts := make([]domain.BindMount, 0, len(t.spec.BindMounts))
	for _, name := range t.spec.BindMounts {
		mount, ok := service.BindMountNamed(name)
		if !ok {
			return nil, fmt.Errorf("%w: service %q declares no bind mount %q", domain.ErrPathNotFound, service.Name, name)
		}
		mounts = append(mounts, mount)
	}
	return mounts, nil
}

func mountTarget(mount domain.BindMount) string {
	return path.Base(filepath.ToSlash(mount.HostPath))
}
