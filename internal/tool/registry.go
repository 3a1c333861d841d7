package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"toolbox/internal/domain"
)

var (
	ErrDuplicateTool = errors.New("tool already registered")
	ErrUnknownTool   = errors.New("unknown tool")
)

// Descriptor is the public description of a tool. It is immutable once
// registered.
type Descriptor struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Schema      Schema `json:"-"`
}

// Handler executes one validated invocation. Returned errors are converted
// to error results by the Dispatcher.
type Handler func(ctx context.Context, call *Call) (*domain.Result, error)

// Tool is implemented by the built-in tools so they can be registered in one
// call.
type Tool interface {
	Descriptor() Descriptor
	Handle(ctx context.Context, call *Call) (*domain.Result, error)
}

type entry struct {
	desc    Descriptor
	handler Handler
}

// Registry maps tool names to descriptors and handlers. It is filled at
// startup and only read afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]entry),
		logger:  logger,
	}
}

// Register adds a tool. A name that is already present is rejected and the
// registry is left unchanged.
func (r *Registry) Register(desc Descriptor, h Handler) error {
	if desc.Name == "" {
		return errors.New("tool name is required")
	}
	if h == nil {
		return fmt.Errorf("tool %s: nil handler", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, desc.Name)
	}
	r.entries[desc.Name] = entry{desc: desc, handler: h}
	r.logger.Debug("registered tool", "name", desc.Name)
	return nil
}

// MustRegister is Register for startup wiring, where a duplicate is a bug.
func (r *Registry) MustRegister(desc Descriptor, h Handler) {
	if err := r.Register(desc, h); err != nil {
		panic(err)
	}
}

// Add registers a Tool.
func (r *Registry) Add(t Tool) error {
	return r.Register(t.Descriptor(), t.Handle)
}

func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// ValidateAndLookup resolves name and validates raw against its schema.
func (r *Registry) ValidateAndLookup(name string, raw map[string]any) (Handler, Args, error) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	args, err := e.desc.Schema.Validate(raw)
	if err != nil {
		return nil, nil, err
	}
	return e.handler, args, nil
}

// Descriptors returns all tools sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	descs := r.Descriptors()
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
