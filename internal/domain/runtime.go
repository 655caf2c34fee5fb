package domain

import "context"

// ContainerInfo is the runtime identity of a declared service.
type ContainerInfo struct {
	ID      string
	Running bool
}

// HelperSpec describes a transient container started solely to access a
// volume's content for archiving.
type HelperSpec struct {
	Image string
	// Binds in docker syntax, e.g. "volume:/mount:ro" or "/host:/backup".
	Binds []string
	Cmd   []string
}

// ContainerRuntime wraps the container engine's lifecycle operations. All
// calls are fallible remote calls and are never retried implicitly.
type ContainerRuntime interface {
	FindContainer(ctx context.Context, name string) (ContainerInfo, error)
	StopContainer(ctx context.Context, id string) error
	StartContainer(ctx context.Context, id string) error

	// RunContainer creates and starts a helper container.
	RunContainer(ctx context.Context, spec HelperSpec) (string, error)

	// WaitContainer blocks until the container exits and returns its
	// exit code.
	WaitContainer(ctx context.Context, id string) (int64, error)

	// Exec runs cmd inside a running container and returns the combined
	// output and exit code.
	Exec(ctx context.Context, id string, cmd []string) (string, int, error)

	// CopyFileFromContainer copies one file out of a container into
	// destDir and returns the host path.
	CopyFileFromContainer(ctx context.Context, id, srcPath, destDir string) (string, error)

	RemoveContainer(ctx context.Context, id string) error
}
