package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/wardenhq/warden/errors"
)

// DefaultPruneRetention is how long terminal tasks are kept for inspection
// before the daily prune removes them
const DefaultPruneRetention = 7 * 24 * time.Hour

// PruneHandler removes terminal tasks older than the retention window,
// keeping the dispatch queue table from growing without bound
type PruneHandler struct {
	store     *Store
	retention time.Duration
	logger    *zap.SugaredLogger
}

// NewPruneHandler creates the queue prune handler. A non-positive retention
// falls back to DefaultPruneRetention.
func NewPruneHandler(store *Store, retention time.Duration, log *zap.SugaredLogger) *PruneHandler {
	if retention <= 0 {
		retention = DefaultPruneRetention
	}
	return &PruneHandler{
		store:     store,
		retention: retention,
		logger:    log.Named("dispatch"),
	}
}

func (h *PruneHandler) Name() string {
	return KindQueuePrune
}

func (h *PruneHandler) Execute(ctx context.Context, task *Task) (json.RawMessage, error) {
	deleted, err := h.store.DeleteOlderThan(ctx, h.retention)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prune dispatch queue")
	}

	if deleted > 0 {
		h.logger.Infow("Pruned old dispatch tasks", "deleted", deleted, "retention", h.retention)
	}

	return json.Marshal(map[string]int{"deleted": deleted})
}
