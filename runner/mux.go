package runner

import (
	"context"
	"fmt"
	"sync"
)

// Mux routes tasks to the handler registered for their type name.
type Mux struct {
	mu      sync.RWMutex
	entries map[string]Handler
}

func NewMux() *Mux {
	return &Mux{entries: make(map[string]Handler)}
}

// Handle registers a handler for a task type, replacing any previous one.
func (m *Mux) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = h
}

// HandleFunc registers an ordinary function as the handler for a task type.
func (m *Mux) HandleFunc(name string, fn func(context.Context, *Task) error) {
	m.Handle(name, HandlerFunc(fn))
}

// ProcessTask dispatches the task to the handler registered for its type.
func (m *Mux) ProcessTask(ctx context.Context, task *Task) error {
	return m.Handler(task).ProcessTask(ctx, task)
}

// Handler returns the handler for the given task. It always returns a
// non-nil handler: a task type with nothing registered gets a handler that
// fails with a 'not found' error, which the worker logs without dying.
func (m *Mux) Handler(t *Task) Handler {
	m.mu.RLock()
	h, ok := m.entries[t.Type()]
	m.mu.RUnlock()

	if !ok {
		return HandlerFunc(func(ctx context.Context, task *Task) error {
			return fmt.Errorf("no handler registered for task %q", task.Type())
		})
	}

	return h
}
