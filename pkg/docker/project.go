package docker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dkhoanguyen/playground/models/compose"
	pkgcompose "github.com/dkhoanguyen/playground/pkg/compose"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const DefaultPollInterval = time.Second

var (
	ErrUnhealthy = errors.New("container is unhealthy")
	ErrExited    = errors.New("container exited")
)

type UpOptions struct {
	// Wait blocks until every service is healthy, or running when it has no
	// health check.
	Wait bool
	// Timeout bounds the whole wait. Zero means no bound beyond ctx.
	Timeout      time.Duration
	PollInterval time.Duration
	// Progress receives image pull output. Nil discards it.
	Progress io.Writer
}

// Up creates and starts the project: network first, then volumes, then the
// services in dependency order.
func Up(ctx context.Context, engine Engine, project *compose.Project, opts UpOptions, logger *zap.Logger) ([]Container, error) {
	ordered, err := pkgcompose.Order(project)
	if err != nil {
		logger.Error(fmt.Sprintf("Unable to order services of %s: %s", project.Name, err))
		return nil, err
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	if _, err := ensureNetwork(ctx, engine, project.Name, logger); err != nil {
		return nil, err
	}
	if err := ensureVolumes(ctx, engine, project, logger); err != nil {
		return nil, err
	}

	started := map[string]Container{}
	containers := make([]Container, 0, len(ordered))
	for i := range ordered {
		service := &ordered[i]
		if err := awaitDependencies(ctx, engine, service, started, poll, logger); err != nil {
			return containers, err
		}
		if err := ensureImage(ctx, engine, service.Image, opts.Progress, logger); err != nil {
			return containers, err
		}
		cnt, err := createContainer(ctx, engine, project, service, logger)
		if err != nil {
			return containers, err
		}
		containers = append(containers, cnt)
		if err := startContainer(ctx, engine, cnt, logger); err != nil {
			return containers, err
		}
		started[service.Name] = cnt
	}

	if opts.Wait {
		waitCtx := ctx
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		for _, cnt := range containers {
			logger.Info(fmt.Sprintf("Waiting for %s", cnt.Name))
			if err := WaitHealthy(waitCtx, engine, cnt.ID, poll); err != nil {
				logger.Error(fmt.Sprintf("Container %s is not ready: %s", cnt.Name, err))
				return containers, errors.Wrapf(err, "service %s", cnt.Service)
			}
		}
	}
	return containers, nil
}

func awaitDependencies(ctx context.Context, engine Engine, service *compose.Service, started map[string]Container, poll time.Duration, logger *zap.Logger) error {
	for _, dep := range service.DependsOn.Names() {
		cnt, ok := started[dep]
		if !ok {
			continue
		}
		var err error
		switch service.DependsOn[dep] {
		case compose.ConditionHealthy:
			logger.Info(fmt.Sprintf("Service %s waits for %s to be healthy", service.Name, dep))
			err = WaitHealthy(ctx, engine, cnt.ID, poll)
		case compose.ConditionCompleted:
			logger.Info(fmt.Sprintf("Service %s waits for %s to complete", service.Name, dep))
			err = WaitCompleted(ctx, engine, cnt.ID, poll)
		}
		if err != nil {
			return errors.Wrapf(err, "dependency %s of %s", dep, service.Name)
		}
	}
	return nil
}

// WaitHealthy polls the container until its health check passes. A container
// without a health check is ready once it runs.
func WaitHealthy(ctx context.Context, engine Engine, containerID string, poll time.Duration) error {
	return waitState(ctx, engine, containerID, poll, func(state *types.ContainerState) (bool, error) {
		if state.Health == nil || state.Health.Status == types.NoHealthcheck {
			if state.Running {
				return true, nil
			}
			if state.Status == "exited" || state.Status == "dead" {
				return false, errors.Wrapf(ErrExited, "exit code %d", state.ExitCode)
			}
			return false, nil
		}
		switch state.Health.Status {
		case types.Healthy:
			return true, nil
		case types.Unhealthy:
			return false, ErrUnhealthy
		}
		if !state.Running && (state.Status == "exited" || state.Status == "dead") {
			return false, errors.Wrapf(ErrExited, "exit code %d", state.ExitCode)
		}
		return false, nil
	})
}

// WaitCompleted polls the container until it exits with code 0.
func WaitCompleted(ctx context.Context, engine Engine, containerID string, poll time.Duration) error {
	return waitState(ctx, engine, containerID, poll, func(state *types.ContainerState) (bool, error) {
		if state.Status != "exited" && state.Status != "dead" {
			return false, nil
		}
		if state.ExitCode != 0 {
			return false, errors.Wrapf(ErrExited, "exit code %d", state.ExitCode)
		}
		return true, nil
	})
}

func waitState(ctx context.Context, engine Engine, containerID string, interval time.Duration, done func(*types.ContainerState) (bool, error)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		info, err := engine.ContainerInspect(ctx, containerID)
		if err != nil {
			return err
		}
		if info.ContainerJSONBase == nil || info.State == nil {
			return errors.Errorf("container %s has no state", containerID)
		}
		ok, err := done(info.State)
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for %s", containerID)
		case <-ticker.C:
		}
	}
}

type DownOptions struct {
	RemoveVolumes bool
	// Timeout is the grace period in seconds before the engine kills a
	// container. Nil uses the engine default.
	Timeout *int
}

// Down stops and removes the project containers, newest first, then the
// project network and, when asked, the project volumes.
func Down(ctx context.Context, engine Engine, projectName string, opts DownOptions, logger *zap.Logger) error {
	containers, err := listProjectContainers(ctx, engine, projectName, logger)
	if err != nil {
		return err
	}
	sort.SliceStable(containers, func(i, j int) bool {
		return containers[i].Created > containers[j].Created
	})

	var errs error
	for _, cnt := range containers {
		summary := summarize(cnt)
		if cnt.State == "running" || cnt.State == "restarting" || cnt.State == "paused" {
			logger.Info(fmt.Sprintf("Stopping container %s", summary.Name))
			if err := engine.ContainerStop(ctx, cnt.ID, container.StopOptions{Timeout: opts.Timeout}); err != nil && !errdefs.IsNotFound(err) {
				logger.Error(fmt.Sprintf("Unable to stop container %s: %v", summary.Name, err))
				errs = multierr.Append(errs, err)
				continue
			}
		}
		logger.Info(fmt.Sprintf("Removing container %s", summary.Name))
		if err := engine.ContainerRemove(ctx, cnt.ID, types.ContainerRemoveOptions{}); err != nil && !errdefs.IsNotFound(err) {
			logger.Error(fmt.Sprintf("Unable to remove container %s with error: %s", summary.Name, err))
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return errs
	}

	if err := removeNetworks(ctx, engine, projectName, logger); err != nil {
		return err
	}
	if opts.RemoveVolumes {
		return removeVolumes(ctx, engine, projectName, logger)
	}
	return nil
}

// Ps lists the project containers sorted by service then name.
func Ps(ctx context.Context, engine Engine, projectName string, logger *zap.Logger) ([]ContainerSummary, error) {
	containers, err := listProjectContainers(ctx, engine, projectName, logger)
	if err != nil {
		return nil, err
	}
	out := make([]ContainerSummary, 0, len(containers))
	for _, cnt := range containers {
		out = append(out, summarize(cnt))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
