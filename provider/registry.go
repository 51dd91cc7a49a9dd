package provider

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry = make(map[string]Factory)
	mu       sync.RWMutex
)

// Register adds a provider factory to the registry.
// This is typically called from a provider package's init() function.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = factory
}

// Get builds the named provider with cfg.
// Returns an error if the provider is not registered.
func Get(name string, cfg Config) (StreamingProvider, error) {
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %q (available: %v)", name, Available())
	}

	return factory(cfg)
}

// Available returns the sorted names of all registered providers.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a provider is registered.
func IsRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[name]
	return ok
}
