package engine

import (
	"encoding/json"
	"fmt"
	"sync"
)

// RunnerFunc is a type-erased workflow runner that accepts raw JSON
// input and returns the run's terminal output. The typed Definition[T]
// is converted to a RunnerFunc at registration time by closing over
// JSON unmarshal + the typed handler.
type RunnerFunc func(c *Context, input []byte) (json.RawMessage, error)

// Definition is a typed workflow definition with a handler function.
// T is the input type (must be JSON-serializable for Run.Input storage).
type Definition[T any] struct {
	// Name is the unique identifier for this workflow type.
	Name string

	// Handler executes the workflow logic. It receives a *Context which
	// provides ScheduleActivity and ScheduleParallel, and returns the
	// run's terminal output (JSON-serializable).
	Handler func(c *Context, input T) (any, error)
}

// NewWorkflow creates a typed workflow definition.
func NewWorkflow[T any](name string, handler func(c *Context, input T) (any, error)) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
	}
}

// Registry maps workflow names to type-erased runner functions. It is
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]RunnerFunc
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]RunnerFunc)}
}

// RegisterDefinition registers a typed workflow definition. The generic
// handler is wrapped in a closure that JSON-unmarshals the input into T
// before calling the typed handler, and JSON-marshals its output.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	runner := func(c *Context, input []byte) (json.RawMessage, error) {
		var t T
		if len(input) > 0 {
			if err := json.Unmarshal(input, &t); err != nil {
				return nil, fmt.Errorf("unmarshal input for workflow %q: %w", def.Name, err)
			}
		}
		out, err := def.Handler(c, t)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("marshal output for workflow %q: %w", def.Name, err)
		}
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[def.Name] = runner
}

// Get returns the runner for the given workflow name.
func (r *Registry) Get(name string) (RunnerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[name]
	return runner, ok
}

// Names returns all registered workflow names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	return names
}
