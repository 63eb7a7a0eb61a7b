package tool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"toolcall/internal/domain"
)

var (
	ErrDuplicateTool  = errors.New("duplicate tool id")
	ErrRegistryFrozen = errors.New("registry is frozen")
)

// Registry holds the closed set of tools, in registration order. It is
// populated at startup and frozen before the first request is served.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]domain.Tool
	frozen bool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds tools in order. It fails on an empty or repeated id, or once
// the registry has been frozen.
func (r *Registry) Register(tools ...domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		if r.frozen {
			return ErrRegistryFrozen
		}
		id := t.Descriptor().ID
		if id == "" {
			return fmt.Errorf("register tool: empty id")
		}
		if _, exists := r.tools[id]; exists {
			return fmt.Errorf("register %s: %w", id, ErrDuplicateTool)
		}
		r.tools[id] = t
		r.order = append(r.order, id)
		r.logger.Debug("registered tool", "id", id)
	}
	return nil
}

// Freeze stops further registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the tool bound to id.
func (r *Registry) Lookup(id string) (domain.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns every descriptor in registration order. Parameter maps are
// copied so callers cannot alter the registered descriptors.
func (r *Registry) List() []domain.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDescriptor, 0, len(r.order))
	for _, id := range r.order {
		d := r.tools[id].Descriptor()
		params := make(map[string]string, len(d.Parameters))
		for k, v := range d.Parameters {
			params[k] = v
		}
		d.Parameters = params
		defs = append(defs, d)
	}
	return defs
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
