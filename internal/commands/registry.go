// In file: internal/commands/registry.go
package commands

import "fmt"

// Registry is a process-wide, string-keyed map of command name → Handler,
// populated by explicit Register calls at startup rather than Python-style
// import-time decorators (spec §9's "reimplement as a string-keyed registry
// of factory functions").
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under its own Name(). Panics on a duplicate name
// since that always indicates a startup wiring bug, mirroring the
// original's "raises on duplicate name" registry.
func (r *Registry) Register(h Handler) {
	if _, exists := r.handlers[h.Name()]; exists {
		panic(fmt.Sprintf("command %q already registered", h.Name()))
	}
	r.handlers[h.Name()] = h
}

// Get looks up a handler by name.
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// ListCommands implements Introspection.
func (r *Registry) ListCommands() []HandlerInfo {
	out := make([]HandlerInfo, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, HandlerInfo{
			Name:        h.Name(),
			Description: h.Description(),
			Format:      h.Format(),
			Examples:    h.Examples(),
		})
	}
	return out
}

// Describe implements Introspection.
func (r *Registry) Describe(name string) (HandlerInfo, bool) {
	h, ok := r.handlers[name]
	if !ok {
		return HandlerInfo{}, false
	}
	return HandlerInfo{Name: h.Name(), Description: h.Description(), Format: h.Format(), Examples: h.Examples()}, true
}

// Clear removes every registered handler. Used by tests that want a clean
// registry per test case.
func (r *Registry) Clear() {
	r.handlers = make(map[string]Handler)
}
