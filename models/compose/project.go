package compose

import (
	"sort"
)

// Project is a loaded compose file: a set of service records and a set of
// volume records.
type Project struct {
	Name       string   `yaml:"name,omitempty" json:"name"`
	WorkingDir string   `yaml:"-" json:"working_dir"`
	Services   Services `yaml:"services" json:"services"`
	Volumes    Volumes  `yaml:"volumes,omitempty" json:"volumes"`
}

type Services map[string]Service

type Volumes map[string]Volume

func (project *Project) ServiceNames() []string {
	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (project *Project) VolumeNames() []string {
	names := make([]string, 0, len(project.Volumes))
	for name := range project.Volumes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetService returns the named service and whether it exists.
func (project *Project) GetService(name string) (Service, bool) {
	service, ok := project.Services[name]
	return service, ok
}

// Normalize copies map keys into the Name fields of every record.
func (project *Project) Normalize() {
	for name, service := range project.Services {
		service.Name = name
		project.Services[name] = service
	}
	for name, volume := range project.Volumes {
		volume.Name = name
		project.Volumes[name] = volume
	}
}
