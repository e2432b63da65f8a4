package compose

import (
	"testing"

	"github.com/dkhoanguyen/playground/models/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serviceNames(services []compose.Service) []string {
	names := make([]string, 0, len(services))
	for _, service := range services {
		names = append(names, service.Name)
	}
	return names
}

func TestOrder(t *testing.T) {
	src := `
services:
  web:
    image: app
    depends_on:
      api:
        condition: service_started
  api:
    image: app
    depends_on:
      postgres:
        condition: service_healthy
      cache:
        condition: service_started
  postgres:
    image: postgres
  cache:
    image: redis
  pgadmin:
    image: dpage/pgadmin4
    depends_on: [postgres]
`
	ordered, err := Order(parseProject(t, src))
	require.NoError(t, err)
	assert.Equal(t, []string{"cache", "postgres", "api", "pgadmin", "web"}, serviceNames(ordered))
}

func TestOrderIndependentServicesByName(t *testing.T) {
	ordered, err := Order(parseProject(t, stackFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"pgadmin", "postgres"}, serviceNames(ordered))
}

func TestOrderIgnoresUnknownDependencies(t *testing.T) {
	src := "services:\n  a:\n    image: x\n    depends_on: [ghost]\n"
	ordered, err := Order(parseProject(t, src))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, serviceNames(ordered))
}

func TestOrderCycle(t *testing.T) {
	src := `
services:
  a:
    image: x
    depends_on: [c]
  b:
    image: x
    depends_on: [a]
  c:
    image: x
    depends_on: [b]
  d:
    image: x
`
	_, err := Order(parseProject(t, src))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.Contains(t, err.Error(), "a, b, c")
	assert.NotContains(t, err.Error(), "c, d")
}
