package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/compose-spec/compose-go/template"
	"github.com/dkhoanguyen/playground/models/compose"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	DefaultComposeFile = "docker-compose.yml"
	ProjectNameEnv     = "COMPOSE_PROJECT_NAME"
	dotEnvFile         = ".env"
)

var (
	ErrEmptyProjectName = errors.New("project name is empty")
	ErrEmptyFile        = errors.New("compose file is empty")
)

var projectNameChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// LookupFunc resolves a variable for interpolation.
type LookupFunc func(key string) (string, bool)

type LoadOptions struct {
	// ProjectName overrides every other source of the project name.
	ProjectName string
	// Lookup replaces the process environment merged with the .env file.
	Lookup LookupFunc
}

// Load reads a compose file from disk and returns the decoded project.
func Load(composePath string, opts LoadOptions, logger *zap.Logger) (*compose.Project, error) {
	absPath, err := filepath.Abs(composePath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", composePath)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		logger.Error(fmt.Sprintf("Unable to read compose file %s", absPath))
		return nil, errors.Wrap(err, "reading compose file")
	}
	return Parse(data, filepath.Dir(absPath), opts, logger)
}

// Parse decodes compose data. workingDir is the directory the file lives in;
// it supplies the .env file and the default project name.
func Parse(data []byte, workingDir string, opts LoadOptions, logger *zap.Logger) (*compose.Project, error) {
	lookup := opts.Lookup
	if lookup == nil {
		var err error
		lookup, err = environmentLookup(workingDir, logger)
		if err != nil {
			return nil, err
		}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(err, "parsing compose file")
	}
	if len(root.Content) == 0 {
		return nil, ErrEmptyFile
	}

	if err := interpolate(root.Content[0], template.Mapping(lookup)); err != nil {
		return nil, err
	}

	project := compose.Project{}
	if err := root.Decode(&project); err != nil {
		return nil, errors.Wrap(err, "decoding compose file")
	}
	if project.Services == nil {
		project.Services = compose.Services{}
	}
	project.Normalize()
	project.WorkingDir = workingDir

	name, err := projectName(opts.ProjectName, project.Name, workingDir, lookup)
	if err != nil {
		return nil, err
	}
	project.Name = name

	logger.Debug(fmt.Sprintf("Loaded project %s with %d services and %d volumes",
		project.Name, len(project.Services), len(project.Volumes)))
	return &project, nil
}

// Marshal renders the project back to compose YAML, with every short form
// expanded and literal dollar signs escaped so the output loads again
// unchanged.
func Marshal(project *compose.Project) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(project); err != nil {
		return nil, errors.Wrap(err, "marshalling project")
	}
	escapeDollars(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling project")
	}
	return out, nil
}

func escapeDollars(node *yaml.Node) {
	switch node.Kind {
	case yaml.ScalarNode:
		node.Value = strings.ReplaceAll(node.Value, "$", "$$")
	case yaml.MappingNode:
		for i := 1; i < len(node.Content); i += 2 {
			escapeDollars(node.Content[i])
		}
	default:
		for _, child := range node.Content {
			escapeDollars(child)
		}
	}
}

func environmentLookup(workingDir string, logger *zap.Logger) (LookupFunc, error) {
	dotEnv, err := godotenv.Read(filepath.Join(workingDir, dotEnvFile))
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrap(err, "reading .env file")
		}
		dotEnv = map[string]string{}
	} else {
		logger.Debug(fmt.Sprintf("Loaded %d variables from %s", len(dotEnv), dotEnvFile))
	}
	return func(key string) (string, bool) {
		if val, ok := os.LookupEnv(key); ok {
			return val, true
		}
		val, ok := dotEnv[key]
		return val, ok
	}, nil
}

// interpolate substitutes variables in every scalar value. Mapping keys are
// left untouched.
func interpolate(node *yaml.Node, mapping template.Mapping) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if !strings.Contains(node.Value, "$") {
			return nil
		}
		substituted, err := template.Substitute(node.Value, mapping)
		if err != nil {
			return errors.Wrapf(err, "line %d", node.Line)
		}
		node.Value = substituted
		switch {
		case substituted == "":
			node.Tag = "!!str"
		case node.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) == 0:
			// Plain scalars are re-resolved so "${RETRIES:-5}" decodes as an int.
			node.Tag = ""
		}
	case yaml.MappingNode:
		for i := 1; i < len(node.Content); i += 2 {
			if err := interpolate(node.Content[i], mapping); err != nil {
				return err
			}
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, child := range node.Content {
			if err := interpolate(child, mapping); err != nil {
				return err
			}
		}
	}
	return nil
}

func projectName(override, declared, workingDir string, lookup LookupFunc) (string, error) {
	candidates := []string{override, declared}
	if val, ok := lookup(ProjectNameEnv); ok {
		candidates = append(candidates, val)
	}
	candidates = append(candidates, filepath.Base(workingDir))
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		name := NormalizeProjectName(candidate)
		if name == "" {
			return "", errors.Wrapf(ErrEmptyProjectName, "from %q", candidate)
		}
		return name, nil
	}
	return "", ErrEmptyProjectName
}

// NormalizeProjectName lower cases name and drops characters the engine does
// not accept in resource names.
func NormalizeProjectName(name string) string {
	return projectNameChars.ReplaceAllString(strings.ToLower(name), "")
}
