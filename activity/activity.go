// Package activity defines the invoker boundary: named, stateless units
// of work invoked with positional JSON-serializable arguments. The engine
// owns when an activity runs; this package only describes what runs.
//
// Activities are not assumed idempotent. They may bill external services
// on every call, which is exactly why the engine replays completed
// invocations from history instead of re-invoking them.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/craftedsys/durable/id"
)

// Handler executes one activity given its positional arguments. The
// returned value must be JSON-serializable. Failures should be classified
// with retry.Transient or retry.Permanent; unclassified errors are
// treated as transient.
type Handler func(ctx context.Context, args []json.RawMessage) (any, error)

// Invocation describes one attempt of an activity, handed to middleware
// and the handler. It mirrors the history entry that will record the
// attempt's outcome.
type Invocation struct {
	ID      id.InvocationID
	RunID   id.RunID
	Name    string
	Key     string
	Args    []json.RawMessage
	Attempt int
	Timeout time.Duration
}

// Registry maps activity names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty activity registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register registers a handler under the given name, replacing any
// existing registration.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Get returns the handler registered under name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered activity names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Decode unmarshals positional arguments into the given targets, one per
// position. Fewer arguments than targets is an error; extra arguments are
// ignored so activities can add trailing optional parameters.
func Decode(args []json.RawMessage, targets ...any) error {
	if len(args) < len(targets) {
		return fmt.Errorf("activity: got %d args, want at least %d", len(args), len(targets))
	}
	for i, target := range targets {
		if err := json.Unmarshal(args[i], target); err != nil {
			return fmt.Errorf("activity: decode arg %d: %w", i, err)
		}
	}
	return nil
}

// EncodeArgs marshals positional arguments for scheduling.
func EncodeArgs(args ...any) ([]json.RawMessage, error) {
	encoded := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("activity: encode arg %d: %w", i, err)
		}
		encoded[i] = data
	}
	return encoded, nil
}
