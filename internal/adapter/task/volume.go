package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"backupbot/internal/adapter/archive"
	"backupbot/internal/domain"
)

// VolumeBackup archives named volumes. A volume's content is only
// reachable from inside a container, so each volume is archived by a
// transient helper container that mounts the volume read-only at its
// declared mount point and writes into a host-bound output directory.
type VolumeBackup struct {
	spec        domain.TaskSpec
	writer      *archive.Writer
	runtime     domain.ContainerRuntime
	helperImage string
	logger      Logger
}

func (t *VolumeBackup) Kind() domain.TaskKind { return domain.TaskVolume }

func (t *VolumeBackup) Targets(service domain.Service) ([]string, error) {
	volumes, err := t.resolveVolumes(service)
	if err != nil {
		return nil, err
	}
	targets := make([]string, len(volumes))
	for i, volume := range volumes {
		targets[i] = volume.Name
	}
	return targets, nil
}

func (t *VolumeBackup) PauseSet(service domain.Service) []string {
	return pauseOwning(t.spec, service)
}

func (t *VolumeBackup) Execute(ctx context.Context, service domain.Service, dir string) ([]domain.Artifact, error) {
	volumes, err := t.resolveVolumes(service)
	if err != nil {
		return nil, &domain.TaskError{Service: service.Name, Kind: t.Kind(), Err: err}
	}

	var artifacts []domain.Artifact
	for _, volume := range volumes {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}

		artifactPath, err := t.backupVolume(ctx, volume, filepath.Join(dir, volume.Name))
		if err != nil {
			return artifacts, &domain.TaskError{Service: service.Name, Kind: t.Kind(), Target: volume.Name, Err: err}
		}
		artifacts = append(artifacts, domain.Artifact{Target: volume.Name, Path: artifactPath})
	}
	return artifacts, nil
}

func (t *VolumeBackup) backupVolume(ctx context.Context, volume domain.Volume, targetDir string) (string, error) {
	artifactPath, err := t.writer.ReservePath(targetDir, volume.Name, archive.ExtTarGz)
	if err != nil {
		return "", err
	}

	helper := domain.HelperSpec{
		Image: t.helperImage,
		Binds: []string{
			volume.Name + ":" + volume.MountPoint + ":ro",
			targetDir + ":/backup",
		},
		Cmd: []string{"tar", "czf", "/backup/" + filepath.Base(artifactPath), "-C", volume.MountPoint, "."},
	}

	helperID, err := t.runtime.RunContainer(ctx, helper)
	if err != nil {
		os.Remove(artifactPath)
		return "", fmt.Errorf("%w: start: %v", domain.ErrHelperContainer, err)
	}

	exitCode, err := t.runtime.WaitContainer(ctx, helperID)

	// The artifact exists on the host once the archive command succeeded,
	// so a failed removal is logged instead of failing the backup.
	if removeErr := t.runtime.RemoveContainer(context.WithoutCancel(ctx), helperID); removeErr != nil {
		t.logger.Warnf("%v: remove helper container %s: %v", domain.ErrCleanup, helperID, removeErr)
	}

	// A failed helper leaves the reserved file empty or truncated; it must
	// not survive to be counted as a version.
	if err != nil {
		os.Remove(artifactPath)
		return "", fmt.Errorf("%w: wait: %v", domain.ErrHelperContainer, err)
	}
	if exitCode != 0 {
		os.Remove(artifactPath)
		return "", fmt.Errorf("%w: archive command exited with %d", domain.ErrHelperContainer, exitCode)
	}
	return artifactPath, nil
}

func (t *VolumeBackup) resolveVolumes(service domain.Service) ([]domain.Volume, error) {
	if len(t.spec.Volumes) == 1 && t.spec.Volumes[0] == "all" {
		if len(service.Volumes) == 0 {
			return nil, fmt.Errorf("%w: service %q declares no volumes", domain.ErrVolumeNotFound, service.Name)
		}
		return service.Volumes, nil
	}

	volumes := make([]domain.Volume, 0, len(t.spec.Volumes))
	for _, name := range t.spec.Volumes {
		volume, ok := service.VolumeNamed(name)
		if !ok {
			return nil, fmt.Errorf("%w: service %q declares no volume %q", domain.ErrVolumeNotFound, service.Name, name)
		}
		volumes = append(volumes, volume)
	}
	return volumes, nil
}
