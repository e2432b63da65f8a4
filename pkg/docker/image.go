package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ensureImage pulls ref unless the engine already has it. Pull progress is
// written to progress, which may be nil.
func ensureImage(ctx context.Context, engine Engine, ref string, progress io.Writer, logger *zap.Logger) error {
	_, _, err := engine.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		logger.Error(fmt.Sprintf("Unable to inspect image %s with error: %s", ref, err))
		return err
	}

	logger.Info(fmt.Sprintf("Pulling image %s", ref))
	stream, err := engine.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		logger.Error(fmt.Sprintf("Unable to pull image %s with error: %s", ref, err))
		return err
	}
	defer stream.Close()

	if progress == nil {
		progress = io.Discard
	}
	// Pull failures after the request was accepted only show up in the stream.
	if err := jsonmessage.DisplayJSONMessagesStream(stream, progress, 0, false, nil); err != nil {
		logger.Error(fmt.Sprintf("Pulling image %s failed with error: %s", ref, err))
		return errors.Wrapf(err, "pull %s", ref)
	}
	return nil
}
