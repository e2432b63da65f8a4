package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dkhoanguyen/playground/models/compose"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Container is a container created for a project service.
type Container struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Service string `json:"service"`
}

// ContainerName is the engine name of a service container.
func ContainerName(projectName string, service *compose.Service) string {
	if service.ContainerName != "" {
		return service.ContainerName
	}
	return projectName + "_" + service.Name
}

// ===== CREATE ====== //

func createContainer(
	ctx context.Context,
	engine Engine,
	project *compose.Project,
	service *compose.Service,
	logger *zap.Logger) (Container, error) {

	name := ContainerName(project.Name, service)
	if err := removeStaleContainer(ctx, engine, name, logger); err != nil {
		return Container{}, err
	}

	containerConfig, hostConfig, networkConfig, err := prepareContainerCreateOptions(project, service)
	if err != nil {
		logger.Error(fmt.Sprintf("Invalid configuration for service %s: %s", service.Name, err))
		return Container{}, err
	}
	resp, err := engine.ContainerCreate(ctx, containerConfig, hostConfig, networkConfig, nil, name)
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to create container %s with error: %s", name, err))
		return Container{}, err
	}
	for _, warning := range resp.Warnings {
		logger.Warn(fmt.Sprintf("Container %s: %s", name, warning))
	}
	return Container{ID: resp.ID, Name: name, Service: service.Name}, nil
}

// removeStaleContainer removes a leftover container holding name so the new
// one can take it.
func removeStaleContainer(ctx context.Context, engine Engine, name string, logger *zap.Logger) error {
	containers, err := engine.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to list containers with error: %s", err))
		return err
	}
	for _, cnt := range containers {
		for _, cntName := range cnt.Names {
			if cntName != "/"+name {
				continue
			}
			logger.Info(fmt.Sprintf("Removing stale container %s", name))
			if err := engine.ContainerRemove(ctx, cnt.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
				logger.Error(fmt.Sprintf("Failed to remove stale container %s with error: %s", name, err))
				return err
			}
		}
	}
	return nil
}

func prepareContainerCreateOptions(project *compose.Project, service *compose.Service) (*container.Config, *container.HostConfig, *network.NetworkingConfig, error) {
	containerConfig, err := prepareContainerConfig(project.Name, service)
	if err != nil {
		return nil, nil, nil, err
	}
	hostConfig, err := prepareHostConfig(project, service)
	if err != nil {
		return nil, nil, nil, err
	}
	return containerConfig, hostConfig, prepareNetworkConfig(project.Name, service), nil
}

func prepareContainerConfig(projectName string, service *compose.Service) (*container.Config, error) {
	exposed := nat.PortSet{}
	for _, port := range service.Ports {
		p, err := port.NatPort()
		if err != nil {
			return nil, err
		}
		exposed[p] = struct{}{}
	}

	labels := map[string]string{}
	for k, v := range service.Labels {
		labels[k] = v
	}
	labels[LabelProject] = projectName
	labels[LabelService] = service.Name
	labels[LabelOneOff] = "False"

	return &container.Config{
		Image:        service.Image,
		Env:          service.Environment.Slice(),
		Cmd:          strslice.StrSlice(service.Command),
		Entrypoint:   strslice.StrSlice(service.Entrypoint),
		ExposedPorts: exposed,
		Labels:       labels,
		Healthcheck:  prepareHealthConfig(service.HealthCheck),
		StopSignal:   "SIGTERM",
	}, nil
}

// prepareHealthConfig returns nil when the service keeps the image's own
// check.
func prepareHealthConfig(hc *compose.HealthCheck) *container.HealthConfig {
	if hc == nil {
		return nil
	}
	if hc.Disable {
		return &container.HealthConfig{Test: []string{compose.HealthCheckNone}}
	}
	return &container.HealthConfig{
		Test:        hc.Test,
		Interval:    hc.Interval,
		Timeout:     hc.Timeout,
		StartPeriod: hc.StartPeriod,
		Retries:     hc.Retries,
	}
}

func prepareNetworkConfig(projectName string, service *compose.Service) *network.NetworkingConfig {
	return &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			NetworkName(projectName): {
				Aliases: []string{service.Name},
			},
		},
	}
}

func prepareHostConfig(project *compose.Project, service *compose.Service) (*container.HostConfig, error) {
	mounts, err := prepareMounts(project, service)
	if err != nil {
		return nil, err
	}
	return &container.HostConfig{
		AutoRemove:    false,
		Mounts:        mounts,
		NetworkMode:   container.NetworkMode(NetworkName(project.Name)),
		RestartPolicy: getRestartPolicy(service),
		LogConfig: container.LogConfig{
			Type: "json-file",
		},
		PortBindings: getPortBinding(service),
		Resources: container.Resources{
			Memory: service.MemoryLimit(),
		},
	}, nil
}

func prepareMounts(project *compose.Project, service *compose.Service) ([]mount.Mount, error) {
	mounts := make([]mount.Mount, 0, len(service.Volumes))
	for _, sv := range service.Volumes {
		m := mount.Mount{
			Type:     mount.Type(sv.Type),
			Source:   sv.Source,
			Target:   sv.Target,
			ReadOnly: sv.ReadOnly,
		}
		switch {
		case sv.IsNamed():
			vol, ok := project.Volumes[sv.Source]
			if !ok {
				return nil, errors.Errorf("service %s mounts undeclared volume %s", service.Name, sv.Source)
			}
			m.Source = VolumeName(project.Name, vol)
		case sv.Type == compose.VolumeTypeBind:
			source, err := hostPath(project.WorkingDir, sv.Source)
			if err != nil {
				return nil, err
			}
			m.Source = source
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

// hostPath resolves a bind mount source against the project directory.
func hostPath(workingDir, source string) (string, error) {
	if source == "~" || strings.HasPrefix(source, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(source, "~")), nil
	}
	if filepath.IsAbs(source) {
		return source, nil
	}
	return filepath.Join(workingDir, source), nil
}

func getRestartPolicy(service *compose.Service) container.RestartPolicy {
	var restart container.RestartPolicy
	if service.Restart != "" {
		split := strings.Split(service.Restart, ":")
		var attempts int
		if len(split) > 1 {
			attempts, _ = strconv.Atoi(split[1])
		}
		restart.Name = split[0]
		restart.MaximumRetryCount = attempts
	}
	return restart
}

func getPortBinding(service *compose.Service) nat.PortMap {
	bindingMap := nat.PortMap{}
	for _, port := range service.Ports {
		p := nat.Port(port.Target + "/" + port.Protocol)
		bindingMap[p] = append(bindingMap[p], nat.PortBinding{
			HostIP:   port.HostIP,
			HostPort: port.HostPort,
		})
	}
	return bindingMap
}

// ===== START ===== //

func startContainer(ctx context.Context, engine Engine, cnt Container, logger *zap.Logger) error {
	if err := engine.ContainerStart(ctx, cnt.ID, types.ContainerStartOptions{}); err != nil {
		logger.Error(fmt.Sprintf("Unable to start container %s with error: %s", cnt.Name, err))
		return err
	}
	logger.Info(fmt.Sprintf("Started container %s", cnt.Name))
	return nil
}

// ====== LIST ====== //

func listProjectContainers(ctx context.Context, engine Engine, projectName string, logger *zap.Logger) ([]types.Container, error) {
	containers, err := engine.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelProject+"="+projectName)),
	})
	if err != nil {
		logger.Error(fmt.Sprintf("Unable to list containers of %s with error: %s", projectName, err))
		return nil, err
	}
	return containers, nil
}

// ContainerSummary is one row of a project listing.
type ContainerSummary struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Service string    `json:"service"`
	Image   string    `json:"image"`
	State   string    `json:"state"`
	Status  string    `json:"status"`
	Created time.Time `json:"created"`
	Ports   []string  `json:"ports"`
}

func summarize(cnt types.Container) ContainerSummary {
	summary := ContainerSummary{
		ID:      cnt.ID,
		Service: cnt.Labels[LabelService],
		Image:   cnt.Image,
		State:   cnt.State,
		Status:  cnt.Status,
		Ports:   formatPorts(cnt.Ports),
	}
	if cnt.Created > 0 {
		summary.Created = time.Unix(cnt.Created, 0)
	}
	if len(cnt.Names) > 0 {
		summary.Name = strings.TrimPrefix(cnt.Names[0], "/")
	}
	return summary
}

func formatPorts(ports []types.Port) []string {
	out := make([]string, 0, len(ports))
	for _, port := range ports {
		if port.PublicPort == 0 {
			out = append(out, fmt.Sprintf("%d/%s", port.PrivatePort, port.Type))
			continue
		}
		ip := port.IP
		if ip == "" {
			ip = "0.0.0.0"
		}
		out = append(out, fmt.Sprintf("%s:%d->%d/%s", ip, port.PublicPort, port.PrivatePort, port.Type))
	}
	sort.Strings(out)
	return out
}
