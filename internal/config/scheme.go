package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"backupbot/internal/domain"
)

// schemeTask is the wire form of one backup task entry.
type schemeTask struct {
	Type   string       `yaml:"type"`
	Config schemeConfig `yaml:"config"`
}

type schemeConfig struct {
	BindMounts []string `yaml:"bind_mounts"`
	Volumes    []string `yaml:"volumes"`
	Database   string   `yaml:"database"`
	User       string   `yaml:"user"`
	Password   string   `yaml:"password"`
	Pause      *bool    `yaml:"pause"`
}

// LoadScheme parses a backup scheme file (JSON or YAML) into an ordered
// scheme. Services are kept in document order so backups run in the order
// the user declared them.
func LoadScheme(path string) (domain.BackupScheme, error) {
	var scheme domain.BackupScheme

	data, err := os.ReadFile(path)
	if err != nil {
		return scheme, fmt.Errorf("%w: read %s: %v", domain.ErrSchemeInvalid, path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return scheme, fmt.Errorf("%w: parse %s: %v", domain.ErrSchemeInvalid, path, err)
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return scheme, fmt.Errorf("%w: %s must be a mapping of service names to task lists", domain.ErrSchemeInvalid, path)
	}

	doc := root.Content[0]
	for i := 0; i+1 < len(doc.Content); i += 2 {
		serviceName := doc.Content[i].Value

		var wireTasks []schemeTask
		if err := doc.Content[i+1].Decode(&wireTasks); err != nil {
			return scheme, fmt.Errorf("%w: tasks of service %q: %v", domain.ErrSchemeInvalid, serviceName, err)
		}

		entry := domain.ServiceTasks{Service: serviceName}
		for _, wire := range wireTasks {
			spec, err := toTaskSpec(wire)
			if err != nil {
				return scheme, fmt.Errorf("%w: service %q: %v", domain.ErrSchemeInvalid, serviceName, err)
			}
			entry.Tasks = append(entry.Tasks, spec)
		}
		scheme.Services = append(scheme.Services, entry)
	}

	if len(scheme.Services) == 0 {
		return scheme, fmt.Errorf("%w: %s declares no services", domain.ErrSchemeInvalid, path)
	}

	return scheme, nil
}

func toTaskSpec(wire schemeTask) (domain.TaskSpec, error) {
	spec := domain.TaskSpec{
		Kind:       domain.TaskKind(wire.Type),
		BindMounts: wire.Config.BindMounts,
		Volumes:    wire.Config.Volumes,
		Database:   wire.Config.Database,
		User:       wire.Config.User,
		Password:   wire.Config.Password,
		Pause:      wire.Config.Pause,
	}

	switch spec.Kind {
	case domain.TaskBindMount:
		if len(spec.BindMounts) == 0 {
			return spec, fmt.Errorf("%s requires bind_mounts", spec.Kind)
		}
	case domain.TaskVolume:
		if len(spec.Volumes) == 0 {
			return spec, fmt.Errorf("%s requires volumes", spec.Kind)
		}
	case domain.TaskMySQL:
		if spec.Database == "" || spec.User == "" || spec.Password == "" {
			return spec, fmt.Errorf("%s requires database, user and password", spec.Kind)
		}
	default:
		return spec, fmt.Errorf("unknown task type %q", wire.Type)
	}

	return spec, nil
}
