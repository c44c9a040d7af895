// Package runtime adapts the container runtime (Docker swarm services plus
// plain containers) behind a narrow, fake-able client interface. Vendor task
// states are normalized here so core logic never sees raw runtime strings.
package runtime

import "context"

// ServicePrefix is the naming convention tying executions to runtime
// resources: each execution maps 1:1 to a service/container named
// execution-<execution_id>.
const ServicePrefix = "execution-"

// ResourceName returns the runtime service/container name for an execution
func ResourceName(executionID string) string {
	return ServicePrefix + executionID
}

// TaskState is the normalized state of a runtime task
type TaskState string

const (
	TaskStateRunning  TaskState = "running"
	TaskStateStarting TaskState = "starting"
	TaskStatePending  TaskState = "pending"
	TaskStateFailed   TaskState = "failed"
	TaskStateRejected TaskState = "rejected"
	TaskStateShutdown TaskState = "shutdown"
	TaskStateOther    TaskState = "other"
)

// TaskStatus is one runtime task's normalized state pair
type TaskStatus struct {
	State        TaskState `json:"state"`
	DesiredState TaskState `json:"desired_state"`
}

// Active reports whether the task is a healthy or converging replica.
// Tasks whose desired state is not running don't count either way.
func (t TaskStatus) Active() bool {
	if t.DesiredState != TaskStateRunning {
		return false
	}
	switch t.State {
	case TaskStateRunning, TaskStateStarting, TaskStatePending:
		return true
	default:
		return false
	}
}

// Failed reports whether the task is a dead replica that was meant to run
func (t TaskStatus) Failed() bool {
	if t.DesiredState != TaskStateRunning {
		return false
	}
	switch t.State {
	case TaskStateFailed, TaskStateRejected, TaskStateShutdown:
		return true
	default:
		return false
	}
}

// Service is a runtime service backing an execution
type Service struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Container is a runtime container backing an execution
type Container struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client is the narrow runtime interface this core depends on.
// Implementations: DockerClient for production, Fake for tests.
type Client interface {
	// ListServices returns services whose name starts with namePrefix
	ListServices(ctx context.Context, namePrefix string) ([]Service, error)

	// ServiceTasks returns the normalized task states of a service
	ServiceTasks(ctx context.Context, serviceID string) ([]TaskStatus, error)

	// RemoveService removes a service by ID
	RemoveService(ctx context.Context, serviceID string) error

	// ListContainers returns containers (including stopped ones) whose name
	// starts with namePrefix
	ListContainers(ctx context.Context, namePrefix string) ([]Container, error)

	// StopContainer stops a running container
	StopContainer(ctx context.Context, containerID string) error

	// RemoveContainer force-removes a container
	RemoveContainer(ctx context.Context, containerID string) error
}

// StopResult is the outcome of stopping one execution's runtime resources
type StopResult struct {
	ServiceStopped   bool     `json:"service_stopped"`
	ContainerStopped bool     `json:"container_stopped"`
	Errors           []string `json:"errors"`
}
