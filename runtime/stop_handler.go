package runtime

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/errors"
	"github.com/wardenhq/warden/logger"
)

// StopArgs is the payload for runtime.stop tasks
type StopArgs struct {
	ExecutionID string `json:"execution_id"`
}

// StopHandler tears down one execution's runtime resources as a dispatch
// task: remove the service, stop and remove the container. Resources that
// don't exist count as "nothing to stop", not failures.
type StopHandler struct {
	client Client
	logger *zap.SugaredLogger
}

// NewStopHandler creates the runtime stop handler
func NewStopHandler(client Client, log *zap.SugaredLogger) *StopHandler {
	return &StopHandler{
		client: client,
		logger: log.Named("runtime"),
	}
}

func (h *StopHandler) Name() string {
	return dispatch.KindRuntimeStop
}

func (h *StopHandler) Execute(ctx context.Context, task *dispatch.Task) (json.RawMessage, error) {
	var args StopArgs
	if err := json.Unmarshal(task.Args, &args); err != nil {
		return nil, errors.Wrap(err, "invalid runtime.stop args")
	}
	if args.ExecutionID == "" {
		return nil, errors.New("runtime.stop requires execution_id")
	}

	result := h.Stop(ctx, args.ExecutionID)

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal stop result")
	}
	return payload, nil
}

// Stop removes the service and stops+removes the container named for the
// execution. Partial failures are collected into the result rather than
// aborting: a cancellation should tear down as much as it can reach.
func (h *StopHandler) Stop(ctx context.Context, executionID string) StopResult {
	name := ResourceName(executionID)
	result := StopResult{Errors: []string{}}

	h.stopService(ctx, name, &result)
	h.stopContainer(ctx, name, &result)

	h.logger.Infow("Runtime resources stopped",
		logger.FieldExecutionID, executionID,
		"service_stopped", result.ServiceStopped,
		"container_stopped", result.ContainerStopped,
		"errors", len(result.Errors))

	return result
}

func (h *StopHandler) stopService(ctx context.Context, name string, result *StopResult) {
	services, err := h.client.ListServices(ctx, name)
	if err != nil {
		result.Errors = append(result.Errors, errors.Wrap(err, "list services").Error())
		return
	}
	if len(services) == 0 {
		return // nothing to stop
	}

	for _, svc := range services {
		if err := h.client.RemoveService(ctx, svc.ID); err != nil {
			if errors.IsNotFoundError(err) {
				continue // raced with another removal
			}
			result.Errors = append(result.Errors, errors.Wrapf(err, "remove service %s", svc.ID).Error())
			continue
		}
		result.ServiceStopped = true
	}
}

func (h *StopHandler) stopContainer(ctx context.Context, name string, result *StopResult) {
	containers, err := h.client.ListContainers(ctx, name)
	if err != nil {
		result.Errors = append(result.Errors, errors.Wrap(err, "list containers").Error())
		return
	}
	if len(containers) == 0 {
		return // nothing to stop
	}

	for _, ctr := range containers {
		if err := h.client.StopContainer(ctx, ctr.ID); err != nil && !errors.IsNotFoundError(err) {
			// A container may already be exited; removal below still applies
			result.Errors = append(result.Errors, errors.Wrapf(err, "stop container %s", ctr.ID).Error())
		}
		if err := h.client.RemoveContainer(ctx, ctr.ID); err != nil {
			if errors.IsNotFoundError(err) {
				continue
			}
			result.Errors = append(result.Errors, errors.Wrapf(err, "remove container %s", ctr.ID).Error())
			continue
		}
		result.ContainerStopped = true
	}
}
