package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/errdefs"
	"go.uber.org/zap"
)

// ensureNetwork creates the project network unless the engine already has
// it, and returns its ID.
func ensureNetwork(ctx context.Context, engine Engine, projectName string, logger *zap.Logger) (string, error) {
	networkName := NetworkName(projectName)

	info, err := engine.NetworkInspect(ctx, networkName, types.NetworkInspectOptions{})
	if err == nil {
		logger.Debug(fmt.Sprintf("Network %s already exists", networkName))
		return info.ID, nil
	}
	if !errdefs.IsNotFound(err) {
		logger.Error(fmt.Sprintf("Unable to inspect network %s with error: %v", networkName, err))
		return "", err
	}

	labels := projectLabels(projectName)
	labels[LabelNetwork] = DefaultNetwork
	resp, err := engine.NetworkCreate(ctx, networkName, types.NetworkCreate{
		CheckDuplicate: true,
		Driver:         "bridge",
		Labels:         labels,
	})
	if err != nil {
		logger.Error(fmt.Sprintf("Unable to create network %s with error: %v", networkName, err))
		return "", err
	}
	logger.Info(fmt.Sprintf("Created network %s", networkName))
	return resp.ID, nil
}

func removeNetworks(ctx context.Context, engine Engine, projectName string, logger *zap.Logger) error {
	networks, err := engine.NetworkList(ctx, types.NetworkListOptions{
		Filters: filters.NewArgs(filters.Arg("label", LabelProject+"="+projectName)),
	})
	if err != nil {
		logger.Error(fmt.Sprintf("Unable to list networks of %s with error: %v", projectName, err))
		return err
	}
	for _, nw := range networks {
		if err := engine.NetworkRemove(ctx, nw.ID); err != nil && !errdefs.IsNotFound(err) {
			logger.Error(fmt.Sprintf("Unable to remove network %s with error: %v", nw.Name, err))
			return err
		}
		logger.Info(fmt.Sprintf("Removed network %s", nw.Name))
	}
	return nil
}
