package docker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakeClient is an in-memory Client that records every call.
type fakeClient struct {
	mu sync.Mutex

	calls      []string
	specs      map[string]ContainerSpec
	nextID     int
	images     map[string]bool
	networkErr error
	pullErr    error

	// createErr fails CreateContainer for names with the given suffix.
	createErr map[string]error
	startErr  map[string]error
	stopErr   map[string]error
	removeErr map[string]error

	// dbStates is consumed one entry per database inspect. When exhausted
	// the last entry repeats.
	dbStates []inspectResult
	dbChecks int

	appPorts []PortBinding
	closed   bool
}

type inspectResult struct {
	status ContainerStatus
	err    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		specs:     map[string]ContainerSpec{},
		images:    map[string]bool{},
		createErr: map[string]error{},
		startErr:  map[string]error{},
		stopErr:   map[string]error{},
		removeErr: map[string]error{},
		dbStates:  []inspectResult{{status: ContainerStatusRunning}},
		appPorts:  []PortBinding{{ContainerPort: 3000, HostPort: 49153, Protocol: "tcp"}},
	}
}

func (f *fakeClient) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsWithPrefix filters recorded calls by operation.
func (f *fakeClient) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeClient) SpecFor(role string) (ContainerSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, spec := range f.specs {
		if spec.Labels[LabelRole] == role {
			return spec, true
		}
	}
	return ContainerSpec{}, false
}

func roleOf(id string) string {
	return strings.TrimPrefix(id, "id-")
}

func (f *fakeClient) CreateContainer(_ context.Context, spec ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role := spec.Labels[LabelRole]
	f.record("create %s", role)
	if err := f.createErr[role]; err != nil {
		return "", err
	}
	id := "id-" + role
	f.specs[id] = spec
	return id, nil
}

func (f *fakeClient) StartContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start %s", roleOf(id))
	return f.startErr[roleOf(id)]
}

func (f *fakeClient) StopContainer(_ context.Context, id string, _ *time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop %s", roleOf(id))
	return f.stopErr[roleOf(id)]
}

func (f *fakeClient) RemoveContainer(_ context.Context, id string, _ RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove %s", roleOf(id))
	return f.removeErr[roleOf(id)]
}

func (f *fakeClient) InspectContainer(_ context.Context, id string) (*ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role := roleOf(id)
	f.record("inspect %s", role)

	if role != "mysql" {
		return &ContainerInfo{ID: id, Status: ContainerStatusRunning, Ports: f.appPorts}, nil
	}

	idx := f.dbChecks
	if idx >= len(f.dbStates) {
		idx = len(f.dbStates) - 1
	}
	f.dbChecks++
	res := f.dbStates[idx]
	if res.err != nil {
		return nil, res.err
	}
	return &ContainerInfo{ID: id, Status: res.status}, nil
}

func (f *fakeClient) CreateNetwork(_ context.Context, spec NetworkSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create-network %s", spec.Name)
	if f.networkErr != nil {
		return "", f.networkErr
	}
	return "net-id", nil
}

func (f *fakeClient) RemoveNetwork(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove-network %s", id)
	return f.removeErr["network"]
}

func (f *fakeClient) PullImage(_ context.Context, image string, _ PullOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull %s", image)
	if f.pullErr != nil {
		return f.pullErr
	}
	f.images[image] = true
	return nil
}

func (f *fakeClient) ImageExists(_ context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[image], nil
}

func (f *fakeClient) Ping(context.Context) error {
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
