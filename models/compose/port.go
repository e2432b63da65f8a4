package compose

import (
	"net"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ServicePort maps a container port to a host port. An empty HostPort means
// the engine picks one.
type ServicePort struct {
	Target   string `yaml:"target" json:"target"`
	Protocol string `yaml:"protocol" json:"protocol"`
	HostIP   string `yaml:"host_ip,omitempty" json:"host_ip,omitempty"`
	HostPort string `yaml:"published,omitempty" json:"published,omitempty"`
}

type Ports []ServicePort

// NatPort returns the engine representation of the container side.
func (port ServicePort) NatPort() (nat.Port, error) {
	return nat.NewPort(port.Protocol, port.Target)
}

func (port ServicePort) String() string {
	var b strings.Builder
	if port.HostIP != "" {
		b.WriteString(port.HostIP)
		b.WriteString(":")
	}
	if port.HostPort != "" {
		b.WriteString(port.HostPort)
		b.WriteString(":")
	}
	b.WriteString(port.Target)
	b.WriteString("/")
	b.WriteString(port.Protocol)
	return b.String()
}

func (ports *Ports) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return errors.Errorf("line %d: ports must be a list", value.Line)
	}
	out := Ports{}
	for _, item := range value.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			parsed, err := ParsePortSpec(item.Value)
			if err != nil {
				return errors.Wrapf(err, "line %d", item.Line)
			}
			out = append(out, parsed...)
		case yaml.MappingNode:
			long := struct {
				Target    string `yaml:"target"`
				Published string `yaml:"published"`
				HostIP    string `yaml:"host_ip"`
				Protocol  string `yaml:"protocol"`
			}{}
			if err := item.Decode(&long); err != nil {
				return err
			}
			if long.Protocol == "" {
				long.Protocol = "tcp"
			}
			out = append(out, ServicePort{
				Target:   long.Target,
				Protocol: strings.ToLower(long.Protocol),
				HostIP:   long.HostIP,
				HostPort: long.Published,
			})
		default:
			return errors.Errorf("line %d: port must be a string or a mapping", item.Line)
		}
	}
	*ports = out
	return nil
}

// ParsePortSpec splits the short port syntax [ip:][host:]container[/proto].
// Matching host and container ranges expand into one ServicePort per port.
// Port numbers and the protocol are not range checked here; Validate reports
// them with the rest of the file's problems.
func ParsePortSpec(spec string) ([]ServicePort, error) {
	rawIP, hostPort, containerPort := splitPortSpec(spec)
	proto, containerPort := nat.SplitProtoPort(containerPort)
	if containerPort == "" {
		return nil, errors.Errorf("no container port in %q", spec)
	}
	ip := strings.TrimSuffix(strings.TrimPrefix(rawIP, "["), "]")
	if ip != "" && net.ParseIP(ip) == nil {
		return nil, errors.Errorf("invalid ip address %q in %q", ip, spec)
	}
	base := ServicePort{Target: containerPort, Protocol: strings.ToLower(proto), HostIP: ip, HostPort: hostPort}

	start, end, err := PortRange(containerPort)
	if err != nil || start == end || end > maxPort {
		return []ServicePort{base}, nil
	}
	hostStart := 0
	if hostPort != "" {
		hs, he, err := PortRange(hostPort)
		if err != nil || he-hs != end-start {
			return nil, errors.Errorf("host range %s and container range %s differ in length", hostPort, containerPort)
		}
		hostStart = hs
	}
	out := make([]ServicePort, 0, end-start+1)
	for i := 0; i <= end-start; i++ {
		port := base
		port.Target = strconv.Itoa(start + i)
		if hostPort != "" {
			port.HostPort = strconv.Itoa(hostStart + i)
		}
		out = append(out, port)
	}
	return out, nil
}

func splitPortSpec(spec string) (string, string, string) {
	parts := strings.Split(spec, ":")
	n := len(parts)
	switch n {
	case 1:
		return "", "", parts[0]
	case 2:
		return "", parts[0], parts[1]
	default:
		return strings.Join(parts[:n-2], ":"), parts[n-2], parts[n-1]
	}
}

const maxPort = 65535

// PortRange parses "n" or "start-end" into non-negative integers without an
// upper bound, so callers can report out-of-range ports precisely.
func PortRange(raw string) (int, int, error) {
	first, last, isRange := strings.Cut(raw, "-")
	start, err := strconv.Atoi(first)
	if err != nil || start < 0 {
		return 0, 0, errors.Errorf("invalid port %q", raw)
	}
	if !isRange {
		return start, start, nil
	}
	end, err := strconv.Atoi(last)
	if err != nil || end < start {
		return 0, 0, errors.Errorf("invalid port range %q", raw)
	}
	return start, end, nil
}

// PortNumber parses a single port, returning 0 and an error for anything
// outside 1-65535.
func PortNumber(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Errorf("invalid port %q", raw)
	}
	if n < 1 || n > maxPort {
		return n, errors.Errorf("port %d out of range 1-65535", n)
	}
	return n, nil
}
