package compose

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	HealthCheckCmd      = "CMD"
	HealthCheckCmdShell = "CMD-SHELL"
	HealthCheckNone     = "NONE"
)

// HealthCheck is the check an engine runs inside the container to decide
// readiness.
type HealthCheck struct {
	Test        HealthCheckTest `yaml:"test,omitempty" json:"test,omitempty"`
	Interval    time.Duration   `yaml:"interval,omitempty" json:"interval,omitempty"`
	Timeout     time.Duration   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries     int             `yaml:"retries,omitempty" json:"retries,omitempty"`
	StartPeriod time.Duration   `yaml:"start_period,omitempty" json:"start_period,omitempty"`
	Disable     bool            `yaml:"disable,omitempty" json:"disable,omitempty"`
}

// HealthCheckTest is the check command. A plain string is run through the
// container shell.
type HealthCheckTest []string

func (test *HealthCheckTest) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value == "" {
			*test = nil
			return nil
		}
		*test = HealthCheckTest{HealthCheckCmdShell, value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*test = list
		return nil
	}
	return errors.Errorf("line %d: healthcheck test must be a string or a list", value.Line)
}

// Disabled reports whether the check is switched off, either explicitly or
// with a NONE test.
func (hc *HealthCheck) Disabled() bool {
	if hc == nil {
		return true
	}
	return hc.Disable || (len(hc.Test) > 0 && hc.Test[0] == HealthCheckNone)
}
