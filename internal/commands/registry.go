package commands

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds registered commands.
type Registry struct {
	mu    sync.RWMutex
	names map[string]Command // primary names and aliases
	cmds  []Command
}

// NewRegistry creates a new command registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]Command),
	}
}

// Register adds a command to the registry.
// Returns an error if the name or any alias is already taken.
func (r *Registry) Register(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := append([]string{c.Name()}, c.Aliases()...)
	for _, key := range keys {
		if _, exists := r.names[key]; exists {
			return fmt.Errorf("command name already registered: %s", key)
		}
	}
	for _, key := range keys {
		r.names[key] = c
	}
	r.cmds = append(r.cmds, c)
	return nil
}

// Find looks up a command by name or alias.
func (r *Registry) Find(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.names[name]
	return cmd, ok
}

// All returns every registered command sorted by primary name.
func (r *Registry) All() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Command, len(r.cmds))
	copy(result, r.cmds)
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// DefaultRegistry is the global command registry.
var DefaultRegistry = NewRegistry()

// Register adds a command to the default registry.
func Register(c Command) {
	if err := DefaultRegistry.Register(c); err != nil {
		panic(err)
	}
}
