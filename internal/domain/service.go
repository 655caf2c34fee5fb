package domain

import (
	"path"
	"strings"
)

// Volume is a runtime-managed named volume attached to a service container.
type Volume struct {
	Name       string
	MountPoint string
}

// BindMount is a host directory exposed inside a service container at a
// fixed mount point.
type BindMount struct {
	HostPath   string
	MountPoint string
}

// Service is one declared runtime unit, resolved once per run from the
// topology source and read-only afterward.
type Service struct {
	Name          string
	ContainerName string
	Image         string
	Hostname      string
	Environment   map[string]string
	BindMounts    []BindMount
	Volumes       []Volume
}

// BindMountNamed returns the declared bind mount matching name. A name
// matches if it equals the mount's base name or a trailing part of its
// host path.
func (s Service) BindMountNamed(name string) (BindMount, bool) {
	for _, m := range s.BindMounts {
		if path.Base(m.HostPath) == name || m.HostPath == name ||
			strings.HasSuffix(m.HostPath, "/"+name) {
			return m, true
		}
	}
	return BindMount{}, false
}

// VolumeNamed returns the declared named volume with the given name.
func (s Service) VolumeNamed(name string) (Volume, bool) {
	for _, v := range s.Volumes {
		if v.Name == name {
			return v, true
		}
	}
	return Volume{}, false
}

// Topology resolves declared service names to their runtime identity and
// metadata. Implementations are read-only queries against the topology
// source.
type Topology interface {
	// Resolve returns the service declared under the given name.
	Resolve(serviceName string) (Service, error)

	// ResolveKeyPath resolves a dotted key path such as
	// "service.environment.KEY" to its scalar value.
	ResolveKeyPath(keyPath string) (string, error)
}
