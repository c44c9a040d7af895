package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sourceScheduler marks tasks submitted by the periodic scheduler so that a
// pending scheduled pass suppresses the next one
const sourceScheduler = "scheduler"

// Schedule pairs a task kind with how often it should be enqueued
type Schedule struct {
	Kind   string
	Period time.Duration
}

// Scheduler enqueues recurring tasks on their periods. It deduplicates
// against the queue: if the previous scheduled task of a kind is still
// queued or running, the tick is skipped instead of stacking another one.
type Scheduler struct {
	dispatcher *Dispatcher
	schedules  []Schedule
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *zap.SugaredLogger
}

// NewScheduler creates a scheduler submitting through the given dispatcher
func NewScheduler(ctx context.Context, dispatcher *Dispatcher, schedules []Schedule, log *zap.SugaredLogger) *Scheduler {
	schedCtx, cancel := context.WithCancel(ctx)

	return &Scheduler{
		dispatcher: dispatcher,
		schedules:  schedules,
		ctx:        schedCtx,
		cancel:     cancel,
		logger:     log.Named("scheduler"),
	}
}

// Start launches one ticker goroutine per schedule. Each kind fires once
// immediately so a freshly started daemon does not wait a full period for
// its first monitor pass.
func (s *Scheduler) Start() {
	for _, sched := range s.schedules {
		if sched.Period <= 0 {
			s.logger.Warnw("Skipping schedule with non-positive period", "kind", sched.Kind)
			continue
		}
		s.wg.Add(1)
		go s.run(sched)
	}
	s.logger.Infow("Scheduler started", "schedules", len(s.schedules))
}

// Stop cancels all schedule goroutines and waits for them to exit
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Infow("Scheduler stopped")
}

func (s *Scheduler) run(sched Schedule) {
	defer s.wg.Done()

	s.tick(sched)

	ticker := time.NewTicker(sched.Period)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick(sched)
		}
	}
}

// tick submits one task of the schedule's kind unless a scheduled task of
// that kind is still active
func (s *Scheduler) tick(sched Schedule) {
	active, err := s.dispatcher.Store().FindActiveByKindAndSource(s.ctx, sched.Kind, sourceScheduler)
	if err != nil {
		s.logger.Errorw("Failed to check for active scheduled task",
			"kind", sched.Kind, "error", err)
		return
	}
	if active != nil {
		s.logger.Debugw("Previous scheduled task still active, skipping tick",
			"kind", sched.Kind, "task_id", active.ID, "status", active.Status)
		return
	}

	handle, err := s.dispatcher.Submit(s.ctx, sched.Kind, nil, sourceScheduler)
	if err != nil {
		s.logger.Errorw("Failed to submit scheduled task", "kind", sched.Kind, "error", err)
		return
	}
	s.logger.Debugw("Scheduled task submitted", "kind", sched.Kind, "task_id", handle.TaskID)
}
