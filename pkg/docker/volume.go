package docker

import (
	"context"
	"fmt"

	"github.com/dkhoanguyen/playground/models/compose"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/errdefs"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// VolumeName is the engine name of a top level volume. External volumes and
// volumes with an explicit name keep it; the rest are scoped to the project.
func VolumeName(projectName string, vol compose.Volume) string {
	if vol.EngineName != "" {
		return vol.EngineName
	}
	if vol.External {
		return vol.Name
	}
	return projectName + "_" + vol.Name
}

func ensureVolumes(ctx context.Context, engine Engine, project *compose.Project, logger *zap.Logger) error {
	for _, name := range project.VolumeNames() {
		vol := project.Volumes[name]
		engineName := VolumeName(project.Name, vol)

		_, err := engine.VolumeInspect(ctx, engineName)
		if err == nil {
			continue
		}
		if vol.External {
			return errors.Wrapf(err, "external volume %s", engineName)
		}
		if !errdefs.IsNotFound(err) {
			logger.Error(fmt.Sprintf("Unable to inspect volume %s with error: %v", engineName, err))
			return err
		}

		labels := projectLabels(project.Name)
		labels[LabelVolume] = name
		for k, v := range vol.Labels {
			labels[k] = v
		}
		if _, err := engine.VolumeCreate(ctx, volume.CreateOptions{
			Name:       engineName,
			Driver:     vol.Driver,
			DriverOpts: vol.DriverOpts,
			Labels:     labels,
		}); err != nil {
			logger.Error(fmt.Sprintf("Unable to create volume %s with error: %v", engineName, err))
			return err
		}
		logger.Info(fmt.Sprintf("Created volume %s", engineName))
	}
	return nil
}

// removeVolumes deletes the volumes the project created. External volumes
// never carry the project label, so they are left alone.
func removeVolumes(ctx context.Context, engine Engine, projectName string, logger *zap.Logger) error {
	resp, err := engine.VolumeList(ctx, volume.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", LabelProject+"="+projectName)),
	})
	if err != nil {
		logger.Error(fmt.Sprintf("Unable to list volumes of %s with error: %v", projectName, err))
		return err
	}
	var errs error
	for _, vol := range resp.Volumes {
		if err := engine.VolumeRemove(ctx, vol.Name, false); err != nil && !errdefs.IsNotFound(err) {
			logger.Error(fmt.Sprintf("Unable to remove volume %s with error: %v", vol.Name, err))
			errs = multierr.Append(errs, err)
			continue
		}
		logger.Info(fmt.Sprintf("Removed volume %s", vol.Name))
	}
	return errs
}
