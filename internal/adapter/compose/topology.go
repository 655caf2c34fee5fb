// Package compose resolves docker-compose topologies into read-only
// service metadata for backup tasks.
package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"backupbot/internal/domain"
)

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	ContainerName string   `yaml:"container_name"`
	Image         string   `yaml:"image"`
	Hostname      string   `yaml:"hostname"`
	Environment   envVars  `yaml:"environment"`
	Volumes       []string `yaml:"volumes"`
}

// envVars accepts both compose environment forms: a KEY=VALUE list and a
// plain mapping.
type envVars map[string]string

func (e *envVars) UnmarshalYAML(node *yaml.Node) error {
	out := map[string]string{}

	switch node.Kind {
	case yaml.MappingNode:
		if err := node.Decode(&out); err != nil {
			return err
		}
	case yaml.SequenceNode:
		var entries []string
		if err := node.Decode(&entries); err != nil {
			return err
		}
		for _, entry := range entries {
			key, value, _ := strings.Cut(entry, "=")
			out[key] = value
		}
	default:
		return fmt.Errorf("environment must be a list or a mapping")
	}

	*e = out
	return nil
}

// Topology indexes the services declared in one compose file.
type Topology struct {
	services map[string]domain.Service
}

// Load parses the compose file and builds the service index. Relative bind
// mount sources are resolved against root.
func Load(root, composePath string) (*Topology, error) {
	data, err := os.ReadFile(composePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read compose file %s: %w", composePath, err)
	}

	var parsed composeFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse compose file %s: %w", composePath, err)
	}
	if len(parsed.Services) == 0 {
		return nil, fmt.Errorf("compose file %s has no services", composePath)
	}

	topo := &Topology{services: make(map[string]domain.Service, len(parsed.Services))}

	for name, attrs := range parsed.Services {
		service := domain.Service{
			Name:          name,
			ContainerName: attrs.ContainerName,
			Image:         attrs.Image,
			Hostname:      attrs.Hostname,
			Environment:   attrs.Environment,
		}
		if service.ContainerName == "" {
			service.ContainerName = name
		}

		for _, volume := range attrs.Volumes {
			source, mountPoint, err := splitVolume(volume)
			if err != nil {
				return nil, fmt.Errorf("service %q: %w", name, err)
			}

			if isBindSource(source) {
				hostPath := source
				if !filepath.IsAbs(hostPath) {
					hostPath = filepath.Join(root, hostPath)
				}
				service.BindMounts = append(service.BindMounts, domain.BindMount{
					HostPath:   hostPath,
					MountPoint: mountPoint,
				})
			} else {
				service.Volumes = append(service.Volumes, domain.Volume{
					Name:       source,
					MountPoint: mountPoint,
				})
			}
		}

		topo.services[name] = service
	}

	return topo, nil
}

func (t *Topology) Resolve(serviceName string) (domain.Service, error) {
	service, ok := t.services[serviceName]
	if !ok {
		return domain.Service{}, fmt.Errorf("%w: %q is not declared in the compose file", domain.ErrServiceNotFound, serviceName)
	}
	return service, nil
}

// ResolveKeyPath resolves dotted paths of the form
// "service.environment.KEY" to the declared scalar value.
func (t *Topology) ResolveKeyPath(keyPath string) (string, error) {
	parts := strings.SplitN(keyPath, ".", 3)
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: %q is not of the form service.environment.KEY", domain.ErrKeyResolution, keyPath)
	}

	serviceName, section, key := parts[0], parts[1], parts[2]

	service, ok := t.services[serviceName]
	if !ok {
		return "", fmt.Errorf("%w: %q: service %q not found", domain.ErrKeyResolution, keyPath, serviceName)
	}
	if section != "environment" {
		return "", fmt.Errorf("%w: %q: unknown section %q", domain.ErrKeyResolution, keyPath, section)
	}

	value, ok := service.Environment[key]
	if !ok {
		return "", fmt.Errorf("%w: %q: service %q declares no environment variable %q", domain.ErrKeyResolution, keyPath, serviceName, key)
	}
	return value, nil
}

func splitVolume(volume string) (source, mountPoint string, err error) {
	parts := strings.Split(volume, ":")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("volume %q is missing the ':' delimiter", volume)
	}
	return parts[0], parts[1], nil
}

func isBindSource(source string) bool {
	return strings.HasPrefix(source, ".") || strings.HasPrefix(source, "/") || strings.HasPrefix(source, "~")
}
