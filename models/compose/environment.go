package compose

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Environment maps variable names to values. A nil value is a variable listed
// without a value; the engine then leaves it unset.
type Environment map[string]*string

func (env *Environment) UnmarshalYAML(value *yaml.Node) error {
	out := Environment{}
	switch value.Kind {
	case yaml.SequenceNode:
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return errors.Errorf("line %d: environment entry must be a string", item.Line)
			}
			key, val, found := strings.Cut(item.Value, "=")
			if _, dup := out[key]; dup {
				return errors.Errorf("line %d: environment variable %q already defined", item.Line, key)
			}
			if found {
				v := val
				out[key] = &v
			} else {
				out[key] = nil
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			keyNode, valNode := value.Content[i], value.Content[i+1]
			if _, dup := out[keyNode.Value]; dup {
				return errors.Errorf("line %d: environment variable %q already defined", keyNode.Line, keyNode.Value)
			}
			if valNode.Kind != yaml.ScalarNode {
				return errors.Errorf("line %d: environment value for %q must be a scalar", valNode.Line, keyNode.Value)
			}
			if valNode.ShortTag() == "!!null" {
				out[keyNode.Value] = nil
				continue
			}
			v := valNode.Value
			out[keyNode.Value] = &v
		}
	default:
		return errors.Errorf("line %d: environment must be a list or a mapping", value.Line)
	}
	*env = out
	return nil
}

// Slice returns KEY=VALUE pairs sorted by key, the form the engine expects.
func (env Environment) Slice() []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if val := env[key]; val != nil {
			out = append(out, key+"="+*val)
		} else {
			out = append(out, key)
		}
	}
	return out
}

// Get returns the value of key, or "" when it is unset.
func (env Environment) Get(key string) string {
	if val := env[key]; val != nil {
		return *val
	}
	return ""
}

// ShellCommand is a command line given either as a list or as one string.
type ShellCommand []string

func (cmd *ShellCommand) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*cmd = strings.Fields(value.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*cmd = list
		return nil
	}
	return errors.Errorf("line %d: command must be a string or a list", value.Line)
}

const (
	ConditionStarted   = "service_started"
	ConditionHealthy   = "service_healthy"
	ConditionCompleted = "service_completed_successfully"
)

// DependsOn maps a dependency to the condition it must reach before the
// dependent service starts.
type DependsOn map[string]string

func (deps *DependsOn) UnmarshalYAML(value *yaml.Node) error {
	out := DependsOn{}
	switch value.Kind {
	case yaml.SequenceNode:
		for _, item := range value.Content {
			out[item.Value] = ConditionStarted
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			entry := struct {
				Condition string `yaml:"condition"`
			}{}
			if err := value.Content[i+1].Decode(&entry); err != nil {
				return err
			}
			if entry.Condition == "" {
				entry.Condition = ConditionStarted
			}
			out[value.Content[i].Value] = entry.Condition
		}
	default:
		return errors.Errorf("line %d: depends_on must be a list or a mapping", value.Line)
	}
	*deps = out
	return nil
}

func (deps DependsOn) Names() []string {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalYAML always writes the long form so conditions survive a round trip.
func (deps DependsOn) MarshalYAML() (interface{}, error) {
	out := make(map[string]map[string]string, len(deps))
	for name, condition := range deps {
		out[name] = map[string]string{"condition": condition}
	}
	return out, nil
}
