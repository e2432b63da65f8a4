package compose

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Volume is a top level volume record. A record declared with no attributes
// is a default-backed named volume.
type Volume struct {
	Name       string            `yaml:"-" json:"name"`
	EngineName string            `yaml:"name,omitempty" json:"engine_name,omitempty"`
	Driver     string            `yaml:"driver,omitempty" json:"driver,omitempty"`
	DriverOpts map[string]string `yaml:"driver_opts,omitempty" json:"driver_opts,omitempty"`
	External   bool              `yaml:"external,omitempty" json:"external,omitempty"`
	Labels     map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

const (
	VolumeTypeVolume = "volume"
	VolumeTypeBind   = "bind"
	VolumeTypeTmpfs  = "tmpfs"
)

// ServiceVolume is a mount binding of a service.
type ServiceVolume struct {
	Type     string `yaml:"type" json:"type"`
	Source   string `yaml:"source,omitempty" json:"source,omitempty"`
	Target   string `yaml:"target" json:"target"`
	ReadOnly bool   `yaml:"read_only,omitempty" json:"read_only,omitempty"`
}

// IsNamed reports whether the mount refers to a top level volume record.
func (sv ServiceVolume) IsNamed() bool {
	return sv.Type == VolumeTypeVolume && sv.Source != ""
}

func (sv *ServiceVolume) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseVolumeSpec(value.Value)
		if err != nil {
			return errors.Wrapf(err, "line %d", value.Line)
		}
		*sv = parsed
		return nil
	case yaml.MappingNode:
		type plain ServiceVolume
		var long plain
		if err := value.Decode(&long); err != nil {
			return err
		}
		*sv = ServiceVolume(long)
		if sv.Type == "" {
			sv.Type = volumeType(sv.Source)
		}
		return nil
	}
	return errors.Errorf("line %d: volume must be a string or a mapping", value.Line)
}

// ParseVolumeSpec parses the short mount syntax source:target[:mode].
func ParseVolumeSpec(spec string) (ServiceVolume, error) {
	parts := strings.Split(spec, ":")
	sv := ServiceVolume{}
	switch len(parts) {
	case 1:
		sv.Type = VolumeTypeVolume
		sv.Target = parts[0]
	case 2, 3:
		sv.Source = parts[0]
		sv.Target = parts[1]
		sv.Type = volumeType(sv.Source)
		if len(parts) == 3 {
			for _, opt := range strings.Split(parts[2], ",") {
				switch opt {
				case "ro":
					sv.ReadOnly = true
				case "rw", "z", "Z", "nocopy", "cached", "delegated", "consistent":
				default:
					return ServiceVolume{}, errors.Errorf("invalid volume mode %q in %q", opt, spec)
				}
			}
		}
	default:
		return ServiceVolume{}, errors.Errorf("invalid volume spec %q", spec)
	}
	if sv.Target == "" {
		return ServiceVolume{}, errors.Errorf("invalid volume spec %q: empty target", spec)
	}
	return sv, nil
}

func volumeType(source string) string {
	if source == "" {
		return VolumeTypeVolume
	}
	if strings.HasPrefix(source, "/") || strings.HasPrefix(source, ".") || strings.HasPrefix(source, "~") {
		return VolumeTypeBind
	}
	return VolumeTypeVolume
}
