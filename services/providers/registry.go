package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrProviderNotFound is returned when an origin is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned on duplicate registration
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry is an explicit origin-keyed map of providers. It is built and
// validated once at startup; origins without usable credentials are simply
// never registered, which keeps their models out of candidate sets.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under its origin name
func (r *Registry) Register(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, name)
	}

	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by origin name
func (r *Registry) Get(origin string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[origin]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, origin)
	}

	return provider, nil
}

// Has reports whether an origin is registered
func (r *Registry) Has(origin string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.providers[origin]
	return exists
}

// Origins returns all registered origin names, sorted
func (r *Registry) Origins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}
