package docker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type fakeContainer struct {
	summary  types.Container
	config   *container.Config
	host     *container.HostConfig
	network  *network.NetworkingConfig
	running  bool
	inspects int
}

// fakeEngine keeps engine objects in memory and records every mutating call.
type fakeEngine struct {
	mu sync.Mutex

	images     map[string]bool
	pullErrors map[string]string
	pulled     []string

	networks map[string]types.NetworkResource
	volumes  map[string]volume.Volume

	containers map[string]*fakeContainer
	nextID     int
	// states scripts what inspect reports for a container name, one entry per
	// call. The last entry repeats.
	states map[string][]types.ContainerState

	calls []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		images:     map[string]bool{},
		pullErrors: map[string]string{},
		networks:   map[string]types.NetworkResource{},
		volumes:    map[string]volume.Volume{},
		containers: map[string]*fakeContainer{},
		states:     map[string][]types.ContainerState{},
	}
}

func (f *fakeEngine) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) byName(name string) *fakeContainer {
	for _, cnt := range f.containers {
		if cnt.summary.Names[0] == "/"+name {
			return cnt
		}
	}
	return nil
}

func (f *fakeEngine) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, _ *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byName(containerName) != nil {
		return container.CreateResponse{}, errdefs.Conflict(fmt.Errorf("container name %s already in use", containerName))
	}
	f.nextID++
	id := fmt.Sprintf("id-%d", f.nextID)
	f.containers[id] = &fakeContainer{
		summary: types.Container{
			ID:      id,
			Names:   []string{"/" + containerName},
			Image:   config.Image,
			Labels:  config.Labels,
			State:   "created",
			Status:  "Created",
			Created: int64(f.nextID),
		},
		config:  config,
		host:    hostConfig,
		network: networkingConfig,
	}
	f.record("create %s", containerName)
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeEngine) ContainerStart(_ context.Context, containerID string, _ types.ContainerStartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cnt, ok := f.containers[containerID]
	if !ok {
		return errdefs.NotFound(fmt.Errorf("no such container %s", containerID))
	}
	cnt.running = true
	cnt.summary.State = "running"
	cnt.summary.Status = "Up"
	f.record("start %s", cnt.summary.Names[0][1:])
	return nil
}

func (f *fakeEngine) ContainerStop(_ context.Context, containerID string, _ container.StopOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cnt, ok := f.containers[containerID]
	if !ok {
		return errdefs.NotFound(fmt.Errorf("no such container %s", containerID))
	}
	cnt.running = false
	cnt.summary.State = "exited"
	f.record("stop %s", cnt.summary.Names[0][1:])
	return nil
}

func (f *fakeEngine) ContainerRemove(_ context.Context, containerID string, _ types.ContainerRemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cnt, ok := f.containers[containerID]
	if !ok {
		return errdefs.NotFound(fmt.Errorf("no such container %s", containerID))
	}
	delete(f.containers, containerID)
	f.record("remove %s", cnt.summary.Names[0][1:])
	return nil
}

func (f *fakeEngine) ContainerList(_ context.Context, options types.ContainerListOptions) ([]types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []types.Container{}
	for _, cnt := range f.containers {
		if !options.All && !cnt.running {
			continue
		}
		if !options.Filters.MatchKVList("label", cnt.summary.Labels) {
			continue
		}
		if names := options.Filters.Get("name"); len(names) > 0 && !strings.Contains(cnt.summary.Names[0], names[0]) {
			continue
		}
		out = append(out, cnt.summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out, nil
}

func (f *fakeEngine) ContainerInspect(_ context.Context, containerID string) (types.ContainerJSON, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cnt, ok := f.containers[containerID]
	if !ok {
		return types.ContainerJSON{}, errdefs.NotFound(fmt.Errorf("no such container %s", containerID))
	}
	state := types.ContainerState{Status: cnt.summary.State, Running: cnt.running}
	if script := f.states[cnt.summary.Names[0][1:]]; len(script) > 0 {
		idx := cnt.inspects
		if idx >= len(script) {
			idx = len(script) - 1
		}
		state = script[idx]
	}
	cnt.inspects++
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:    containerID,
			Name:  cnt.summary.Names[0],
			State: &state,
		},
		Config: cnt.config,
	}, nil
}

func (f *fakeEngine) ImagePull(_ context.Context, refStr string, _ types.ImagePullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, refStr)
	if msg, ok := f.pullErrors[refStr]; ok {
		return io.NopCloser(strings.NewReader(fmt.Sprintf(`{"errorDetail":{"message":%q},"error":%q}`+"\n", msg, msg))), nil
	}
	f.images[refStr] = true
	return io.NopCloser(strings.NewReader(`{"status":"Pull complete"}` + "\n")), nil
}

func (f *fakeEngine) ImageInspectWithRaw(_ context.Context, imageID string) (types.ImageInspect, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.images[imageID] {
		return types.ImageInspect{}, nil, errdefs.NotFound(fmt.Errorf("no such image: %s", imageID))
	}
	return types.ImageInspect{ID: "sha256:" + imageID}, nil, nil
}

func (f *fakeEngine) NetworkCreate(_ context.Context, name string, options types.NetworkCreate) (types.NetworkCreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.networks[name]; ok {
		return types.NetworkCreateResponse{}, errdefs.Conflict(fmt.Errorf("network %s already exists", name))
	}
	id := "net-" + name
	f.networks[name] = types.NetworkResource{ID: id, Name: name, Driver: options.Driver, Labels: options.Labels}
	f.record("create network %s", name)
	return types.NetworkCreateResponse{ID: id}, nil
}

func (f *fakeEngine) NetworkInspect(_ context.Context, networkID string, _ types.NetworkInspectOptions) (types.NetworkResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, nw := range f.networks {
		if nw.ID == networkID || nw.Name == networkID {
			return nw, nil
		}
	}
	return types.NetworkResource{}, errdefs.NotFound(fmt.Errorf("network %s not found", networkID))
}

func (f *fakeEngine) NetworkList(_ context.Context, options types.NetworkListOptions) ([]types.NetworkResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []types.NetworkResource{}
	for _, nw := range f.networks {
		if options.Filters.MatchKVList("label", nw.Labels) {
			out = append(out, nw)
		}
	}
	return out, nil
}

func (f *fakeEngine) NetworkRemove(_ context.Context, networkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, nw := range f.networks {
		if nw.ID == networkID || nw.Name == networkID {
			delete(f.networks, name)
			f.record("remove network %s", name)
			return nil
		}
	}
	return errdefs.NotFound(fmt.Errorf("network %s not found", networkID))
}

func (f *fakeEngine) VolumeCreate(_ context.Context, options volume.CreateOptions) (volume.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	driver := options.Driver
	if driver == "" {
		driver = "local"
	}
	vol := volume.Volume{Name: options.Name, Driver: driver, Labels: options.Labels, Options: options.DriverOpts}
	f.volumes[options.Name] = vol
	f.record("create volume %s", options.Name)
	return vol, nil
}

func (f *fakeEngine) VolumeInspect(_ context.Context, volumeID string) (volume.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vol, ok := f.volumes[volumeID]
	if !ok {
		return volume.Volume{}, errdefs.NotFound(fmt.Errorf("no such volume: %s", volumeID))
	}
	return vol, nil
}

func (f *fakeEngine) VolumeList(_ context.Context, options volume.ListOptions) (volume.ListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := volume.ListResponse{}
	for name := range f.volumes {
		vol := f.volumes[name]
		if options.Filters.MatchKVList("label", vol.Labels) {
			resp.Volumes = append(resp.Volumes, &vol)
		}
	}
	return resp, nil
}

func (f *fakeEngine) VolumeRemove(_ context.Context, volumeID string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[volumeID]; !ok {
		return errdefs.NotFound(fmt.Errorf("no such volume: %s", volumeID))
	}
	delete(f.volumes, volumeID)
	f.record("remove volume %s", volumeID)
	return nil
}

var _ Engine = (*fakeEngine)(nil)
