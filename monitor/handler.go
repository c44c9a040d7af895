package monitor

import (
	"context"
	"encoding/json"

	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/errors"
)

// Handler runs monitor passes as dispatch tasks of kind monitor.pass
type Handler struct {
	monitor *Monitor
}

// NewHandler wraps a monitor as a dispatch handler
func NewHandler(monitor *Monitor) *Handler {
	return &Handler{monitor: monitor}
}

func (h *Handler) Name() string {
	return dispatch.KindMonitorPass
}

func (h *Handler) Execute(ctx context.Context, task *dispatch.Task) (json.RawMessage, error) {
	result, err := h.monitor.RunPass(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "monitor pass failed")
	}
	return json.Marshal(result)
}
