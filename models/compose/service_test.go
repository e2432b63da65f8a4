package compose

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestServiceShortSyntax(t *testing.T) {
	src := `
image: postgres:16
container_name: db
restart: always
ports:
  - "5432:5432"
  - "127.0.0.1:9000-9001:9000-9001/udp"
  - "80"
environment:
  - POSTGRES_USER=postgres
  - EMPTY=
  - INHERITED
volumes:
  - pgdata:/var/lib/postgresql/data
  - ./init:/docker-entrypoint-initdb.d:ro
  - /scratch
healthcheck:
  test: pg_isready -U postgres
  interval: 10s
  timeout: 5s
  retries: 5
  start_period: 1m30s
depends_on:
  - cache
command: postgres -c max_connections=50
deploy:
  resources:
    limits:
      memory: 512m
`
	var service Service
	require.NoError(t, yaml.Unmarshal([]byte(src), &service))

	assert.Equal(t, "postgres:16", service.Image)
	assert.Equal(t, "db", service.ContainerName)
	assert.Equal(t, RestartAlways, service.Restart)

	require.Len(t, service.Ports, 4)
	assert.Equal(t, ServicePort{Target: "5432", Protocol: "tcp", HostPort: "5432"}, service.Ports[0])
	assert.Equal(t, ServicePort{Target: "9000", Protocol: "udp", HostIP: "127.0.0.1", HostPort: "9000"}, service.Ports[1])
	assert.Equal(t, ServicePort{Target: "9001", Protocol: "udp", HostIP: "127.0.0.1", HostPort: "9001"}, service.Ports[2])
	assert.Equal(t, ServicePort{Target: "80", Protocol: "tcp"}, service.Ports[3])

	assert.Equal(t, []string{"EMPTY=", "INHERITED", "POSTGRES_USER=postgres"}, service.Environment.Slice())
	assert.Equal(t, "postgres", service.Environment.Get("POSTGRES_USER"))
	assert.Equal(t, "", service.Environment.Get("INHERITED"))

	require.Len(t, service.Volumes, 3)
	assert.Equal(t, ServiceVolume{Type: VolumeTypeVolume, Source: "pgdata", Target: "/var/lib/postgresql/data"}, service.Volumes[0])
	assert.Equal(t, ServiceVolume{Type: VolumeTypeBind, Source: "./init", Target: "/docker-entrypoint-initdb.d", ReadOnly: true}, service.Volumes[1])
	assert.Equal(t, ServiceVolume{Type: VolumeTypeVolume, Target: "/scratch"}, service.Volumes[2])
	assert.Equal(t, []string{"pgdata"}, service.NamedVolumes())

	require.NotNil(t, service.HealthCheck)
	assert.Equal(t, HealthCheckTest{HealthCheckCmdShell, "pg_isready -U postgres"}, service.HealthCheck.Test)
	assert.Equal(t, 10*time.Second, service.HealthCheck.Interval)
	assert.Equal(t, 5*time.Second, service.HealthCheck.Timeout)
	assert.Equal(t, 5, service.HealthCheck.Retries)
	assert.Equal(t, 90*time.Second, service.HealthCheck.StartPeriod)
	assert.False(t, service.HealthCheck.Disabled())

	assert.Equal(t, DependsOn{"cache": ConditionStarted}, service.DependsOn)
	assert.Equal(t, ShellCommand{"postgres", "-c", "max_connections=50"}, service.Command)
	assert.Equal(t, int64(512*1024*1024), service.MemoryLimit())
}

func TestServiceLongSyntax(t *testing.T) {
	src := `
image: dpage/pgadmin4
ports:
  - target: 80
    published: 8888
    host_ip: 0.0.0.0
environment:
  PGADMIN_DEFAULT_EMAIL: admin@example.com
  PGADMIN_LISTEN_PORT: 80
  UNSET:
volumes:
  - type: volume
    source: pgadmin-data
    target: /var/lib/pgadmin
    read_only: true
healthcheck:
  test: ["CMD", "wget", "-qO-", "http://localhost/misc/ping"]
depends_on:
  postgres:
    condition: service_healthy
`
	var service Service
	require.NoError(t, yaml.Unmarshal([]byte(src), &service))

	require.Len(t, service.Ports, 1)
	assert.Equal(t, ServicePort{Target: "80", Protocol: "tcp", HostIP: "0.0.0.0", HostPort: "8888"}, service.Ports[0])
	assert.Equal(t, "0.0.0.0:8888:80/tcp", service.Ports[0].String())

	assert.Equal(t, "80", service.Environment.Get("PGADMIN_LISTEN_PORT"))
	assert.Nil(t, service.Environment["UNSET"])
	assert.Contains(t, service.Environment, "UNSET")

	assert.Equal(t, ServiceVolume{Type: VolumeTypeVolume, Source: "pgadmin-data", Target: "/var/lib/pgadmin", ReadOnly: true}, service.Volumes[0])
	assert.Equal(t, HealthCheckTest{"CMD", "wget", "-qO-", "http://localhost/misc/ping"}, service.HealthCheck.Test)
	assert.Equal(t, DependsOn{"postgres": ConditionHealthy}, service.DependsOn)
}

func TestShortPortsLeaveNumbersToValidation(t *testing.T) {
	src := `
ports:
  - "70000:5432"
  - "5432:0/http"
  - "[::1]:8080:80"
  - "8000-8010:80"
`
	var service Service
	require.NoError(t, yaml.Unmarshal([]byte(src), &service))
	assert.Equal(t, Ports{
		{Target: "5432", Protocol: "tcp", HostPort: "70000"},
		{Target: "0", Protocol: "http", HostPort: "5432"},
		{Target: "80", Protocol: "tcp", HostIP: "::1", HostPort: "8080"},
		{Target: "80", Protocol: "tcp", HostPort: "8000-8010"},
	}, service.Ports)
}

func TestPortRange(t *testing.T) {
	start, end, err := PortRange("70000")
	require.NoError(t, err)
	assert.Equal(t, [2]int{70000, 70000}, [2]int{start, end})

	start, end, err = PortRange("9000-9002")
	require.NoError(t, err)
	assert.Equal(t, [2]int{9000, 9002}, [2]int{start, end})

	for _, raw := range []string{"", "x", "-1", "10-5", "5-x"} {
		_, _, err := PortRange(raw)
		assert.Error(t, err, raw)
	}
}

func TestServiceDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"mismatched ranges":   "ports: [\"9000-9001:80-82\"]",
		"bad ip":              "ports: [\"300.1.1.1:80:80\"]",
		"ports not a list":    "ports: \"80:80\"",
		"bad mount mode":      "volumes: [\"data:/data:rx\"]",
		"bad size":            "deploy: {resources: {limits: {memory: lots}}}",
		"duplicate env":       "environment: [A=1, A=2]",
		"duplicate key":       "image: a\nimage: b",
		"nested env value":    "environment: {A: [1]}",
		"bad healthcheck":     "healthcheck: {test: {cmd: x}}",
		"bad depends_on":      "depends_on: postgres",
		"too many mount bits": "volumes: [\"a:/b:ro:extra\"]",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			var service Service
			assert.Error(t, yaml.Unmarshal([]byte(src), &service))
		})
	}
}

func TestHealthCheckDisabled(t *testing.T) {
	var nilCheck *HealthCheck
	assert.True(t, nilCheck.Disabled())
	assert.True(t, (&HealthCheck{Disable: true}).Disabled())
	assert.True(t, (&HealthCheck{Test: HealthCheckTest{HealthCheckNone}}).Disabled())
	assert.False(t, (&HealthCheck{Test: HealthCheckTest{HealthCheckCmd, "true"}}).Disabled())
}

func TestProjectNames(t *testing.T) {
	project := Project{
		Services: Services{"pgadmin": {}, "postgres": {}},
		Volumes:  Volumes{"pgdata": {}, "pgadmin-data": {}},
	}
	project.Normalize()

	assert.Equal(t, []string{"pgadmin", "postgres"}, project.ServiceNames())
	assert.Equal(t, []string{"pgadmin-data", "pgdata"}, project.VolumeNames())

	service, ok := project.GetService("postgres")
	require.True(t, ok)
	assert.Equal(t, "postgres", service.Name)
	assert.Equal(t, "pgdata", project.Volumes["pgdata"].Name)

	_, ok = project.GetService("missing")
	assert.False(t, ok)
}

func TestMemoryLimitKeepsExactBytes(t *testing.T) {
	for _, src := range []string{"1000000000", "1500k", "512m"} {
		var limit ResourceLimit
		require.NoError(t, yaml.Unmarshal([]byte("memory: "+src), &limit))

		out, err := yaml.Marshal(limit)
		require.NoError(t, err)

		var again ResourceLimit
		require.NoError(t, yaml.Unmarshal(out, &again))
		assert.Equal(t, limit.Memory, again.Memory, src)
	}

	out, err := yaml.Marshal(ResourceLimit{Memory: 1000000000})
	require.NoError(t, err)
	assert.Equal(t, "memory: 1000000000\n", string(out))
}

func TestDecodeErrorsCarryLine(t *testing.T) {
	var service Service
	err := yaml.Unmarshal([]byte("image: x\ndeploy:\n  resources:\n    limits:\n      memory: lots\n"), &service)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 5")

	err = yaml.Unmarshal([]byte("image: x\nports: [\"9000-9001:80-82\"]\n"), &service)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
