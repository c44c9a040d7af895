package runtime

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"golang.org/x/time/rate"

	"github.com/wardenhq/warden/errors"
	"github.com/wardenhq/warden/execution"
)

// DockerClient implements Client against the Docker API.
// Removals pass through a rate limiter so bulk cleanup sweeps stay polite.
type DockerClient struct {
	api        *client.Client
	removeRate *rate.Limiter
}

// NewDockerClient creates a docker-backed runtime client.
// Empty host uses the environment defaults (DOCKER_HOST etc).
func NewDockerClient(host string, removeOpsPerSec float64) (*DockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create docker client")
	}

	return &DockerClient{
		api:        api,
		removeRate: rate.NewLimiter(rate.Limit(removeOpsPerSec), 1),
	}, nil
}

// ListServices returns swarm services whose name starts with namePrefix
func (d *DockerClient) ListServices(ctx context.Context, namePrefix string) ([]Service, error) {
	args := filters.NewArgs(filters.Arg("name", namePrefix))
	raw, err := d.api.ServiceList(ctx, types.ServiceListOptions{Filters: args})
	if err != nil {
		return nil, classifyDockerErr(err, "failed to list services")
	}

	services := make([]Service, 0, len(raw))
	for _, svc := range raw {
		// The name filter is a substring match on the docker side;
		// enforce the prefix here.
		if !strings.HasPrefix(svc.Spec.Name, namePrefix) {
			continue
		}
		services = append(services, Service{ID: svc.ID, Name: svc.Spec.Name})
	}

	return services, nil
}

// ServiceTasks returns the normalized task states of a swarm service
func (d *DockerClient) ServiceTasks(ctx context.Context, serviceID string) ([]TaskStatus, error) {
	args := filters.NewArgs(filters.Arg("service", serviceID))
	raw, err := d.api.TaskList(ctx, types.TaskListOptions{Filters: args})
	if err != nil {
		return nil, classifyDockerErr(err, "failed to list service tasks")
	}

	tasks := make([]TaskStatus, 0, len(raw))
	for _, task := range raw {
		tasks = append(tasks, TaskStatus{
			State:        normalizeTaskState(task.Status.State),
			DesiredState: normalizeTaskState(task.DesiredState),
		})
	}

	return tasks, nil
}

// RemoveService removes a swarm service by ID
func (d *DockerClient) RemoveService(ctx context.Context, serviceID string) error {
	if err := d.removeRate.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter interrupted")
	}

	if err := d.api.ServiceRemove(ctx, serviceID); err != nil {
		return classifyDockerErr(err, "failed to remove service")
	}
	return nil
}

// ListContainers returns containers (running or stopped) whose name starts
// with namePrefix
func (d *DockerClient) ListContainers(ctx context.Context, namePrefix string) ([]Container, error) {
	args := filters.NewArgs(filters.Arg("name", namePrefix))
	raw, err := d.api.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, classifyDockerErr(err, "failed to list containers")
	}

	containers := make([]Container, 0, len(raw))
	for _, c := range raw {
		name := containerName(c.Names)
		if !strings.HasPrefix(name, namePrefix) {
			continue
		}
		containers = append(containers, Container{ID: c.ID, Name: name})
	}

	return containers, nil
}

// StopContainer stops a running container with the default grace period
func (d *DockerClient) StopContainer(ctx context.Context, containerID string) error {
	if err := d.api.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		return classifyDockerErr(err, "failed to stop container")
	}
	return nil
}

// RemoveContainer force-removes a container
func (d *DockerClient) RemoveContainer(ctx context.Context, containerID string) error {
	if err := d.removeRate.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter interrupted")
	}

	if err := d.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return classifyDockerErr(err, "failed to remove container")
	}
	return nil
}

// normalizeTaskState maps swarm task states onto the fixed TaskState enum.
// Everything outside the states the monitor cares about collapses to other.
func normalizeTaskState(state swarm.TaskState) TaskState {
	switch state {
	case swarm.TaskStateRunning:
		return TaskStateRunning
	case swarm.TaskStateStarting, swarm.TaskStatePreparing, swarm.TaskStateReady:
		return TaskStateStarting
	case swarm.TaskStatePending, swarm.TaskStateNew, swarm.TaskStateAllocated, swarm.TaskStateAssigned, swarm.TaskStateAccepted:
		return TaskStatePending
	case swarm.TaskStateFailed:
		return TaskStateFailed
	case swarm.TaskStateRejected:
		return TaskStateRejected
	case swarm.TaskStateShutdown, swarm.TaskStateComplete:
		return TaskStateShutdown
	default:
		return TaskStateOther
	}
}

// classifyDockerErr maps docker errors onto the core taxonomy:
// not-found stays NotFound, transport failures mark RuntimeUnavailable.
func classifyDockerErr(err error, msg string) error {
	wrapped := errors.Wrap(err, msg)
	if errdefs.IsNotFound(err) {
		return errors.Mark(wrapped, execution.ErrNotFound)
	}
	if client.IsErrConnectionFailed(err) {
		return execution.RuntimeUnavailable(wrapped)
	}
	return wrapped
}

// containerName extracts the primary name from docker's leading-slash list
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}
