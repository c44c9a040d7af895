package cleanup

import (
	"context"
	"encoding/json"

	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/errors"
)

// Handler runs one of the sweeps as a dispatch task
type Handler struct {
	kind  string
	sweep func(ctx context.Context) (SweepResult, error)
}

// Handlers returns the three sweep handlers for registration
func Handlers(sweeper *Sweeper) []*Handler {
	return []*Handler{
		{kind: dispatch.KindCleanupStale, sweep: sweeper.SweepStale},
		{kind: dispatch.KindCleanupFinished, sweep: sweeper.SweepFinished},
		{kind: dispatch.KindCleanupFailed, sweep: sweeper.SweepFailed},
	}
}

func (h *Handler) Name() string {
	return h.kind
}

func (h *Handler) Execute(ctx context.Context, task *dispatch.Task) (json.RawMessage, error) {
	result, err := h.sweep(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "%s failed", h.kind)
	}
	return json.Marshal(result)
}
