package task

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Route is the result of resolving a task name. Definition is nil when the
// name matched nothing and fell through to the default queue; the executor
// dead-letters such invocations when they surface on the consumer side.
type Route struct {
	Definition *Definition
	Queue      string
	Priority   Priority
	// Defaulted is true when the name matched no definition and the route
	// points at the registry's default queue.
	Defaulted bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDefaultQueue sets the fallback queue for unmatched task names. Without
// it, unmatched names fail with ErrUnknownTask.
func WithDefaultQueue(queue string) RegistryOption {
	return func(r *Registry) {
		if queue != "" {
			r.defaultQueue = queue
		}
	}
}

// WithRegistryLogger sets the logger used for fallback-route warnings.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry holds the static task table. All definitions are registered at
// startup; Resolve is read-only and safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	defs         map[string]*Definition
	prefixes     []string // definition names, longest first, for prefix fallback
	defaultQueue string
	logger       *slog.Logger
}

// NewRegistry creates an empty task registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		defs:   make(map[string]*Definition),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a definition to the registry. Duplicate names fail fast so
// misconfiguration surfaces at startup, not at dispatch time.
func (r *Registry) Register(def Definition) error {
	if err := def.validate(); err != nil {
		return err
	}
	def = def.normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return ErrDuplicateTask
	}

	r.defs[def.Name] = &def
	r.prefixes = append(r.prefixes, def.Name)
	sort.Slice(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i]) > len(r.prefixes[j])
	})

	return nil
}

// Resolve maps a task name to its route. Resolution order: exact match,
// longest registered prefix match, then the default queue with a logged
// warning. Names that match nothing and have no default queue fail with
// ErrUnknownTask.
func (r *Registry) Resolve(name string) (Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.defs[name]; ok {
		return Route{Definition: def, Queue: def.Queue, Priority: def.Priority}, nil
	}

	// Longest-prefix fallback routes hierarchical names ("report.weekly.csv")
	// to their nearest registered ancestor ("report.weekly").
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(name, prefix) {
			def := r.defs[prefix]
			return Route{Definition: def, Queue: def.Queue, Priority: def.Priority}, nil
		}
	}

	if r.defaultQueue != "" {
		r.logger.Warn("task name matched no definition, routing to default queue",
			slog.String("task_name", name),
			slog.String("queue", r.defaultQueue))
		return Route{Queue: r.defaultQueue, Priority: PriorityDefault, Defaulted: true}, nil
	}

	return Route{}, ErrUnknownTask
}

// Lookup returns the exact or prefix-matched definition for a task name, or
// ErrUnknownTask. Used on the consumer side where a fallback queue is no help:
// without a handler the invocation cannot run.
func (r *Registry) Lookup(name string) (*Definition, error) {
	route, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if route.Definition == nil {
		return nil, ErrUnknownTask
	}
	return route.Definition, nil
}

// Names returns all registered task names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
