package compose

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/dkhoanguyen/playground/models/compose"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var (
	resourceName  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	restartPolicy = regexp.MustCompile(`^(no|always|unless-stopped|on-failure(:[0-9]+)?)$`)
)

// ValidationError is one schema violation, located by a dotted path such as
// services.postgres.ports[0].
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Path + ": " + e.Message
}

// Issues unpacks the error returned by Validate.
func Issues(err error) []*ValidationError {
	var out []*ValidationError
	for _, e := range multierr.Errors(err) {
		if ve, ok := e.(*ValidationError); ok {
			out = append(out, ve)
		}
	}
	return out
}

type validator struct {
	project *compose.Project
	err     error
}

func (v *validator) fail(path, format string, args ...interface{}) {
	v.err = multierr.Append(v.err, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the structural rules a compose file must satisfy before it
// is handed to the engine. Every violation is reported, not just the first.
func Validate(project *compose.Project) error {
	v := &validator{project: project}

	if len(project.Services) == 0 {
		v.fail("services", "at least one service is required")
	}

	for _, name := range project.VolumeNames() {
		v.volume(name, project.Volumes[name])
	}

	containerNames := map[string]string{}
	for _, name := range project.ServiceNames() {
		service := project.Services[name]
		v.service(name, &service)
		if service.ContainerName != "" {
			if owner, dup := containerNames[service.ContainerName]; dup {
				v.fail("services."+name+".container_name", "container name %q already used by service %q", service.ContainerName, owner)
			} else {
				containerNames[service.ContainerName] = name
			}
		}
	}

	v.portCollisions()

	if _, err := Order(project); errors.Is(err, ErrDependencyCycle) {
		v.fail("services", "%s", err)
	}

	return v.err
}

func (v *validator) volume(name string, volume compose.Volume) {
	p := "volumes." + name
	if !resourceName.MatchString(name) {
		v.fail(p, "invalid volume name %q", name)
	}
	if volume.External && (volume.Driver != "" || len(volume.DriverOpts) > 0) {
		v.fail(p, "external volume cannot declare a driver")
	}
}

func (v *validator) service(name string, service *compose.Service) {
	p := "services." + name
	if !resourceName.MatchString(name) {
		v.fail(p, "invalid service name %q", name)
	}
	if strings.TrimSpace(service.Image) == "" {
		v.fail(p+".image", "image is required")
	}
	if service.ContainerName != "" && !resourceName.MatchString(service.ContainerName) {
		v.fail(p+".container_name", "invalid container name %q", service.ContainerName)
	}
	if service.Restart != "" && !restartPolicy.MatchString(service.Restart) {
		v.fail(p+".restart", "invalid restart policy %q", service.Restart)
	}
	for key := range service.Environment {
		if key == "" {
			v.fail(p+".environment", "empty variable name")
		}
	}
	for i, port := range service.Ports {
		v.port(fmt.Sprintf("%s.ports[%d]", p, i), port)
	}

	targets := map[string]bool{}
	for i, mount := range service.Volumes {
		mp := fmt.Sprintf("%s.volumes[%d]", p, i)
		if !path.IsAbs(mount.Target) {
			v.fail(mp, "mount target %q is not an absolute path", mount.Target)
		}
		if targets[mount.Target] {
			v.fail(mp, "duplicate mount target %q", mount.Target)
		}
		targets[mount.Target] = true
		switch mount.Type {
		case compose.VolumeTypeVolume, compose.VolumeTypeBind, compose.VolumeTypeTmpfs:
		default:
			v.fail(mp, "unknown mount type %q", mount.Type)
		}
		if mount.IsNamed() {
			if _, ok := v.project.Volumes[mount.Source]; !ok {
				v.fail(mp, "volume %q is not declared in the top level volumes", mount.Source)
			}
		}
	}

	if service.HealthCheck != nil {
		v.healthCheck(p+".healthcheck", service.HealthCheck)
	}

	for _, dep := range service.DependsOn.Names() {
		dp := p + ".depends_on." + dep
		if dep == name {
			v.fail(dp, "service depends on itself")
			continue
		}
		if _, ok := v.project.Services[dep]; !ok {
			v.fail(dp, "unknown service %q", dep)
		}
		switch service.DependsOn[dep] {
		case compose.ConditionStarted, compose.ConditionHealthy, compose.ConditionCompleted:
		default:
			v.fail(dp, "invalid condition %q", service.DependsOn[dep])
		}
	}
}

func (v *validator) port(p string, port compose.ServicePort) {
	if _, err := compose.PortNumber(port.Target); err != nil {
		v.fail(p, "container %s", err)
	}
	switch port.Protocol {
	case "tcp", "udp", "sctp":
	default:
		v.fail(p, "invalid protocol %q", port.Protocol)
	}
	if port.HostPort == "" {
		return
	}
	start, end, err := compose.PortRange(port.HostPort)
	if err != nil {
		v.fail(p, "invalid host port %q", port.HostPort)
		return
	}
	if start < 1 || end > 65535 || start > end {
		v.fail(p, "host port %s out of range 1-65535", port.HostPort)
	}
}

func (v *validator) healthCheck(p string, hc *compose.HealthCheck) {
	if hc.Disable {
		return
	}
	if len(hc.Test) == 0 {
		v.fail(p+".test", "test is required unless the check is disabled")
	} else {
		switch hc.Test[0] {
		case compose.HealthCheckCmd, compose.HealthCheckCmdShell:
			if len(hc.Test) < 2 {
				v.fail(p+".test", "%s requires a command", hc.Test[0])
			}
		case compose.HealthCheckNone:
		default:
			v.fail(p+".test", "test must start with CMD, CMD-SHELL or NONE, got %q", hc.Test[0])
		}
	}
	if hc.Interval < 0 {
		v.fail(p+".interval", "must not be negative")
	}
	if hc.Timeout < 0 {
		v.fail(p+".timeout", "must not be negative")
	}
	if hc.StartPeriod < 0 {
		v.fail(p+".start_period", "must not be negative")
	}
	if hc.Retries < 0 {
		v.fail(p+".retries", "must not be negative")
	}
}

type publishedPort struct {
	path       string
	hostIP     string
	start, end int
}

func wildcard(ip string) bool {
	return ip == "" || ip == "0.0.0.0" || ip == "::"
}

// portCollisions reports host bindings that the engine could not satisfy
// together: same protocol, overlapping host ports, and either the same host
// address or one side bound to every address.
func (v *validator) portCollisions() {
	byProto := map[string][]publishedPort{}
	for _, name := range v.project.ServiceNames() {
		for i, port := range v.project.Services[name].Ports {
			if port.HostPort == "" {
				continue
			}
			start, end, err := nat.ParsePortRangeToInt(port.HostPort)
			if err != nil {
				continue
			}
			current := publishedPort{
				path:   fmt.Sprintf("services.%s.ports[%d]", name, i),
				hostIP: port.HostIP,
				start:  start,
				end:    end,
			}
			for _, seen := range byProto[port.Protocol] {
				if current.start > seen.end || seen.start > current.end {
					continue
				}
				if wildcard(current.hostIP) || wildcard(seen.hostIP) || current.hostIP == seen.hostIP {
					v.fail(current.path, "host port %s/%s already published by %s", port.HostPort, port.Protocol, seen.path)
				}
			}
			byProto[port.Protocol] = append(byProto[port.Protocol], current)
		}
	}
}
