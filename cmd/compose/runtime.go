package compose

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/dkhoanguyen/playground/internal/env"
	models "github.com/dkhoanguyen/playground/models/compose"
	pkgcompose "github.com/dkhoanguyen/playground/pkg/compose"
	"github.com/dkhoanguyen/playground/pkg/docker"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Runtime carries what every command needs. The root command fills Config
// and Logger before any subcommand runs.
type Runtime struct {
	Config    *env.Config
	Logger    *zap.Logger
	NewEngine func() (docker.Engine, error)
	// CloseLog releases the log files behind Logger.
	CloseLog func() error
}

// Shutdown flushes the logger and closes its files. It is safe to call when
// no logger was built and more than once.
func (rt *Runtime) Shutdown() error {
	if rt.CloseLog != nil {
		closeLog := rt.CloseLog
		rt.CloseLog = nil
		return closeLog()
	}
	if rt.Logger != nil {
		_ = rt.Logger.Sync()
	}
	return nil
}

// withEngine opens an engine client for the duration of fn.
func (rt *Runtime) withEngine(fn func(docker.Engine) error) error {
	engine, err := rt.NewEngine()
	if err != nil {
		return err
	}
	if closer, ok := engine.(io.Closer); ok {
		defer closer.Close()
	}
	return fn(engine)
}

type projectOptions struct {
	File        string
	ProjectName string
}

func (o *projectOptions) file(rt *Runtime) string {
	if o.File != "" {
		return o.File
	}
	return rt.Config.ComposeFile
}

// load decodes the compose file. Only -p overrides the file's name: key;
// COMPOSE_PROJECT_NAME is read from the environment by the loader and only
// applies when the file declares no name.
func (o *projectOptions) load(rt *Runtime) (*models.Project, error) {
	return pkgcompose.Load(o.file(rt), pkgcompose.LoadOptions{ProjectName: o.ProjectName}, rt.Logger)
}

// loadValid loads the project and rejects it when validation fails.
func (o *projectOptions) loadValid(rt *Runtime) (*models.Project, error) {
	project, err := o.load(rt)
	if err != nil {
		return nil, err
	}
	if err := pkgcompose.Validate(project); err != nil {
		return nil, err
	}
	return project, nil
}

// name resolves the project name. The compose file is read unless -p is
// given; when the file does not exist COMPOSE_PROJECT_NAME is used instead.
func (o *projectOptions) name(rt *Runtime) (string, error) {
	if name := pkgcompose.NormalizeProjectName(o.ProjectName); name != "" {
		return name, nil
	}
	project, err := o.load(rt)
	if err == nil {
		return project.Name, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		if name := pkgcompose.NormalizeProjectName(rt.Config.ComposeProjectName); name != "" {
			rt.Logger.Debug(fmt.Sprintf("Compose file %s not found, using project %s", o.file(rt), name))
			return name, nil
		}
	}
	return "", err
}
