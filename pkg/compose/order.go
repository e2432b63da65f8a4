package compose

import (
	"sort"
	"strings"

	"github.com/dkhoanguyen/playground/models/compose"
	"github.com/pkg/errors"
)

var ErrDependencyCycle = errors.New("dependency cycle")

// Order returns the services so that every service comes after the services
// it depends on. Services that become ready at the same time are sorted by
// name. Dependencies on unknown services are ignored here; Validate reports
// them.
func Order(project *compose.Project) ([]compose.Service, error) {
	pending := map[string]int{}
	dependents := map[string][]string{}
	for name, service := range project.Services {
		pending[name] = 0
		for dep := range service.DependsOn {
			if _, ok := project.Services[dep]; !ok {
				continue
			}
			pending[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := []string{}
	for name, count := range pending {
		if count == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]compose.Service, 0, len(project.Services))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, project.Services[name])

		released := []string{}
		for _, dependent := range dependents[name] {
			pending[dependent]--
			if pending[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			sort.Strings(ready)
		}
	}

	if len(ordered) != len(project.Services) {
		stuck := []string{}
		for name, count := range pending {
			if count > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, errors.Wrapf(ErrDependencyCycle, "services %s", strings.Join(stuck, ", "))
	}
	return ordered, nil
}
