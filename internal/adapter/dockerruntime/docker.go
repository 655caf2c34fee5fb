// Package dockerruntime implements the container runtime collaborator on
// the Docker engine API.
package dockerruntime

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"backupbot/internal/domain"
)

type Runtime struct {
	cli         *client.Client
	stopTimeout int
}

// New connects to the engine using the standard environment configuration.
func New(stopTimeoutSeconds int) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Runtime{cli: cli, stopTimeout: stopTimeoutSeconds}, nil
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}

func (r *Runtime) FindContainer(ctx context.Context, name string) (domain.ContainerInfo, error) {
	info, err := r.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return domain.ContainerInfo{}, fmt.Errorf("%w: no container %q", domain.ErrServiceNotFound, name)
		}
		return domain.ContainerInfo{}, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	return domain.ContainerInfo{
		ID:      info.ID,
		Running: info.State != nil && info.State.Running,
	}, nil
}

func (r *Runtime) StopContainer(ctx context.Context, id string) error {
	timeout := r.stopTimeout
	if err := r.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", id, err)
	}
	return nil
}

func (r *Runtime) StartContainer(ctx context.Context, id string) error {
	if err := r.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", id, err)
	}
	return nil
}

func (r *Runtime) RunContainer(ctx context.Context, spec domain.HelperSpec) (string, error) {
	// Best effort pull; the image may already be present locally.
	if reader, err := r.cli.ImagePull(ctx, spec.Image, image.PullOptions{}); err == nil {
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	created, err := r.cli.ContainerCreate(ctx,
		&container.Config{Image: spec.Image, Cmd: spec.Cmd},
		&container.HostConfig{Binds: spec.Binds},
		nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container from %s: %w", spec.Image, err)
	}

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", created.ID, err)
	}
	return created.ID, nil
}

func (r *Runtime) WaitContainer(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := r.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, fmt.Errorf("failed to wait for container %s: %w", id, err)
	case status := <-statusCh:
		return status.StatusCode, nil
	}
}

func (r *Runtime) Exec(ctx context.Context, id string, cmd []string) (string, int, error) {
	created, err := r.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", -1, fmt.Errorf("failed to create exec in %s: %w", id, err)
	}

	attached, err := r.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", -1, fmt.Errorf("failed to attach exec in %s: %w", id, err)
	}
	defer attached.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, attached.Reader); err != nil {
		return buf.String(), -1, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspected, err := r.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return buf.String(), -1, fmt.Errorf("failed to inspect exec in %s: %w", id, err)
	}
	return buf.String(), inspected.ExitCode, nil
}

// CopyFileFromContainer extracts one file from the container's filesystem
// into destDir and returns the resulting host path.
func (r *Runtime) CopyFileFromContainer(ctx context.Context, id, srcPath, destDir string) (string, error) {
	reader, _, err := r.cli.CopyFromContainer(ctx, id, srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to copy %s from container %s: %w", srcPath, id, err)
	}
	defer reader.Close()

	// The engine hands back a tar stream holding the requested file.
	tarReader := tar.NewReader(reader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return "", fmt.Errorf("no file %s in copy stream from container %s", srcPath, id)
		}
		if err != nil {
			return "", fmt.Errorf("failed to read copy stream: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		hostPath := filepath.Join(destDir, filepath.Base(header.Name))
		out, err := os.OpenFile(hostPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", hostPath, err)
		}
		if _, err := io.Copy(out, tarReader); err != nil {
			out.Close()
			return "", fmt.Errorf("failed to write %s: %w", hostPath, err)
		}
		out.Close()
		return hostPath, nil
	}
}

func (r *Runtime) RemoveContainer(ctx context.Context, id string) error {
	if err := r.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}
