package runtime

import (
	"context"
	"strings"
	"sync"

	"github.com/wardenhq/warden/execution"
)

// Fake is an in-memory Client for tests: seed services/containers/tasks,
// inject per-method errors, and inspect recorded calls.
type Fake struct {
	mu sync.Mutex

	Services   map[string]Service      // service ID -> service
	Containers map[string]Container    // container ID -> container
	Tasks      map[string][]TaskStatus // service ID -> task states

	// Per-method injected errors. A set error is returned by every call
	// to that method until cleared.
	ListServicesErr    error
	ServiceTasksErr    error
	RemoveServiceErr   error
	ListContainersErr  error
	StopContainerErr   error
	RemoveContainerErr error

	// Calls records method invocations as "Method(arg)"
	Calls []string
}

// NewFake creates an empty fake runtime client
func NewFake() *Fake {
	return &Fake{
		Services:   make(map[string]Service),
		Containers: make(map[string]Container),
		Tasks:      make(map[string][]TaskStatus),
	}
}

// AddService seeds a service (and its task list) for an execution
func (f *Fake) AddService(executionID string, tasks ...TaskStatus) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := ResourceName(executionID)
	id := "svc-" + executionID
	f.Services[id] = Service{ID: id, Name: name}
	f.Tasks[id] = tasks
	return id
}

// AddContainer seeds a container for an execution
func (f *Fake) AddContainer(executionID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := ResourceName(executionID)
	id := "ctr-" + executionID
	f.Containers[id] = Container{ID: id, Name: name}
	return id
}

func (f *Fake) record(call string) {
	f.Calls = append(f.Calls, call)
}

// CallsTo returns the number of recorded calls with the given prefix
func (f *Fake) CallsTo(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, method+"(") {
			n++
		}
	}
	return n
}

func (f *Fake) ListServices(ctx context.Context, namePrefix string) ([]Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("ListServices(" + namePrefix + ")")
	if f.ListServicesErr != nil {
		return nil, f.ListServicesErr
	}

	var services []Service
	for _, svc := range f.Services {
		if strings.HasPrefix(svc.Name, namePrefix) {
			services = append(services, svc)
		}
	}
	return services, nil
}

func (f *Fake) ServiceTasks(ctx context.Context, serviceID string) ([]TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("ServiceTasks(" + serviceID + ")")
	if f.ServiceTasksErr != nil {
		return nil, f.ServiceTasksErr
	}

	tasks, ok := f.Tasks[serviceID]
	if !ok {
		return nil, execution.NotFoundf("service not found: %s", serviceID)
	}
	return tasks, nil
}

func (f *Fake) RemoveService(ctx context.Context, serviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("RemoveService(" + serviceID + ")")
	if f.RemoveServiceErr != nil {
		return f.RemoveServiceErr
	}

	if _, ok := f.Services[serviceID]; !ok {
		return execution.NotFoundf("service not found: %s", serviceID)
	}
	delete(f.Services, serviceID)
	delete(f.Tasks, serviceID)
	return nil
}

func (f *Fake) ListContainers(ctx context.Context, namePrefix string) ([]Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("ListContainers(" + namePrefix + ")")
	if f.ListContainersErr != nil {
		return nil, f.ListContainersErr
	}

	var containers []Container
	for _, c := range f.Containers {
		if strings.HasPrefix(c.Name, namePrefix) {
			containers = append(containers, c)
		}
	}
	return containers, nil
}

func (f *Fake) StopContainer(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("StopContainer(" + containerID + ")")
	if f.StopContainerErr != nil {
		return f.StopContainerErr
	}

	if _, ok := f.Containers[containerID]; !ok {
		return execution.NotFoundf("container not found: %s", containerID)
	}
	return nil
}

func (f *Fake) RemoveContainer(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("RemoveContainer(" + containerID + ")")
	if f.RemoveContainerErr != nil {
		return f.RemoveContainerErr
	}

	if _, ok := f.Containers[containerID]; !ok {
		return execution.NotFoundf("container not found: %s", containerID)
	}
	delete(f.Containers, containerID)
	return nil
}

var _ Client = (*Fake)(nil)
