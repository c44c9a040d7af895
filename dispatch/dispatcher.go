package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wardenhq/warden/errors"
)

// ErrWaitTimeout is returned by Handle.Wait when the task does not reach a
// terminal status within the timeout.
var ErrWaitTimeout = errors.Mark(errors.New("timed out waiting for dispatch task"), errors.ErrTimeout)

// waitPollInterval is the polling fallback for Handle.Wait, which keeps Wait
// correct even when the task is completed by a worker in another process.
const waitPollInterval = 500 * time.Millisecond

// Dispatcher submits tasks to the persisted queue and lets callers block on
// their completion. The worker pool signals completions through Notify.
type Dispatcher struct {
	store *Store

	mu      sync.Mutex
	waiters map[string][]chan *Task // task ID -> completion channels
}

// NewDispatcher creates a dispatcher over the given task store
func NewDispatcher(store *Store) *Dispatcher {
	return &Dispatcher{
		store:   store,
		waiters: make(map[string][]chan *Task),
	}
}

// Store returns the underlying task store
func (d *Dispatcher) Store() *Store {
	return d.store
}

// Handle refers to a submitted task and can wait for its completion
type Handle struct {
	TaskID     string
	dispatcher *Dispatcher
}

// Submit persists a queued task and returns a handle to it
func (d *Dispatcher) Submit(ctx context.Context, kind string, args json.RawMessage, source string) (*Handle, error) {
	task := NewTask(kind, args, source)
	if err := d.store.CreateTask(ctx, task); err != nil {
		return nil, errors.Wrapf(err, "failed to submit %s task", kind)
	}

	return &Handle{TaskID: task.ID, dispatcher: d}, nil
}

// Notify signals that a task reached a terminal status.
// Called by the worker pool after persisting the final state; channels are
// non-blocking so a stuck waiter can't stall a worker.
func (d *Dispatcher) Notify(task *Task) {
	if !task.Status.Terminal() {
		return
	}

	d.mu.Lock()
	chans := d.waiters[task.ID]
	delete(d.waiters, task.ID)
	d.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- task:
		default:
		}
	}
}

// subscribe registers a completion channel for a task
func (d *Dispatcher) subscribe(taskID string) chan *Task {
	ch := make(chan *Task, 1)
	d.mu.Lock()
	d.waiters[taskID] = append(d.waiters[taskID], ch)
	d.mu.Unlock()
	return ch
}

// unsubscribe drops a completion channel for a task
func (d *Dispatcher) unsubscribe(taskID string, ch chan *Task) {
	d.mu.Lock()
	defer d.mu.Unlock()

	chans := d.waiters[taskID]
	for i, c := range chans {
		if c == ch {
			d.waiters[taskID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(d.waiters[taskID]) == 0 {
		delete(d.waiters, taskID)
	}
}

// Wait blocks until the task reaches a terminal status, the timeout elapses
// (ErrWaitTimeout), or ctx is cancelled. The returned task carries the result
// payload or error message.
func (h *Handle) Wait(ctx context.Context, timeout time.Duration) (*Task, error) {
	d := h.dispatcher

	// Fast path: already terminal
	task, err := d.store.GetTask(ctx, h.TaskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return task, nil
	}

	ch := d.subscribe(h.TaskID)
	defer d.unsubscribe(h.TaskID, ch)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	poll := time.NewTicker(waitPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case task := <-ch:
			return task, nil
		case <-deadline.C:
			return nil, errors.Wrapf(ErrWaitTimeout, "task %s still %s after %s", h.TaskID, task.Status, timeout)
		case <-poll.C:
			task, err = d.store.GetTask(ctx, h.TaskID)
			if err != nil {
				return nil, err
			}
			if task.Status.Terminal() {
				return task, nil
			}
		}
	}
}
