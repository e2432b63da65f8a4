package compose

import (
	"sort"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Service is a single containerized workload and its runtime parameters.
type Service struct {
	Name          string            `yaml:"-" json:"name"`
	Image         string            `yaml:"image" json:"image"`
	ContainerName string            `yaml:"container_name,omitempty" json:"container_name,omitempty"`
	Restart       string            `yaml:"restart,omitempty" json:"restart,omitempty"`
	Ports         Ports             `yaml:"ports,omitempty" json:"ports,omitempty"`
	Environment   Environment       `yaml:"environment,omitempty" json:"environment,omitempty"`
	Volumes       []ServiceVolume   `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	HealthCheck   *HealthCheck      `yaml:"healthcheck,omitempty" json:"healthcheck,omitempty"`
	DependsOn     DependsOn         `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Command       ShellCommand      `yaml:"command,omitempty" json:"command,omitempty"`
	Entrypoint    ShellCommand      `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Deploy        *Deploy           `yaml:"deploy,omitempty" json:"deploy,omitempty"`
}

const (
	RestartAlways        = "always"
	RestartOnFailure     = "on-failure"
	RestartNoRetry       = "no"
	RestartUnlessStopped = "unless-stopped"
)

type Deploy struct {
	Resources Resources `yaml:"resources,omitempty" json:"resources,omitempty"`
}

type Resources struct {
	Limits       ResourceLimit `yaml:"limits,omitempty" json:"limits,omitempty"`
	Reservations ResourceLimit `yaml:"reservations,omitempty" json:"reservations,omitempty"`
}

type ResourceLimit struct {
	Memory UnitBytes `yaml:"memory,omitempty" json:"memory,omitempty"`
}

// UnitBytes is a size in bytes. It is read from a human size ("512m", "1g")
// and written back as the exact byte count.
type UnitBytes int64

func (b *UnitBytes) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: size must be a scalar", value.Line)
	}
	size, err := units.RAMInBytes(value.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}
	*b = UnitBytes(size)
	return nil
}

func (b UnitBytes) MarshalYAML() (interface{}, error) {
	return int64(b), nil
}

// MemoryLimit returns the configured memory limit in bytes, 0 when unset.
func (service *Service) MemoryLimit() int64 {
	if service.Deploy == nil {
		return 0
	}
	return int64(service.Deploy.Resources.Limits.Memory)
}

// NamedVolumes returns the distinct top level volumes the service mounts.
func (service *Service) NamedVolumes() []string {
	seen := map[string]bool{}
	names := []string{}
	for _, mount := range service.Volumes {
		if mount.IsNamed() && !seen[mount.Source] {
			seen[mount.Source] = true
			names = append(names, mount.Source)
		}
	}
	sort.Strings(names)
	return names
}
