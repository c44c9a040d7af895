package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wardenhq/warden/errors"
)

// Handler executes one kind of dispatch task.
//
// Handlers decode their own args from task.Args and return a result payload.
// A plain error fails the task immediately; wrap with Retryable to let the
// worker pool re-queue with backoff. Handlers must respect ctx cancellation.
type Handler interface {
	// Name returns the task kind this handler serves (e.g. "monitor.pass")
	Name() string

	// Execute runs the task and returns its result payload
	Execute(ctx context.Context, task *Task) (json.RawMessage, error)
}

// Registry manages handlers by task kind.
// Thread-safe for concurrent registration and lookup.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler already registered for kind: %s", name))
	}
	r.handlers[name] = handler
}

// Get retrieves the handler for a task kind.
// Returns nil if no handler is registered.
func (r *Registry) Get(kind string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[kind]
}

// Has checks if a handler is registered for a kind
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[kind]
	return exists
}

// Names returns all registered task kinds
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Execute routes a task to its registered handler.
// An unknown kind is a non-retryable error.
func (r *Registry) Execute(ctx context.Context, task *Task) (json.RawMessage, error) {
	handler := r.Get(task.Kind)
	if handler == nil {
		return nil, errors.Newf("no handler registered for kind: %s", task.Kind)
	}
	return handler.Execute(ctx, task)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc struct {
	Kind string
	Fn   func(ctx context.Context, task *Task) (json.RawMessage, error)
}

// Name implements Handler
func (h HandlerFunc) Name() string { return h.Kind }

// Execute implements Handler
func (h HandlerFunc) Execute(ctx context.Context, task *Task) (json.RawMessage, error) {
	return h.Fn(ctx, task)
}
