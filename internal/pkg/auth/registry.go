package auth

import (
	"fmt"
	"sync"
)

// Registry resolves provider ids to loaded implementations. Construction is
// lazy and memoized; the factory map is fixed at startup, so there is no
// reflection or dynamic loading anywhere in the dispatch path.
type Registry struct {
	deps      Deps
	factories map[string]Factory

	mu        sync.Mutex
	providers map[string]Provider
	configs   map[string]Config
}

// NewRegistry builds a registry from a startup-time factory table. Every
// factory id must exist in the definition table.
func NewRegistry(deps Deps, factories map[string]Factory) (*Registry, error) {
	for id := range factories {
		if DefinitionFor(id) == nil {
			return nil, &UnknownProviderError{ID: id}
		}
	}
	return &Registry{
		deps:      deps,
		factories: factories,
		providers: make(map[string]Provider),
		configs:   make(map[string]Config),
	}, nil
}

// Definition returns the static metadata for id, or nil when unknown.
func (r *Registry) Definition(id string) *Definition {
	return DefinitionFor(id)
}

// Load returns the provider implementation for id, constructing it on first
// use and serving the cached instance afterwards.
func (r *Registry) Load(id string) (Provider, error) {
	if DefinitionFor(id) == nil {
		return nil, &UnknownProviderError{ID: id}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[id]; ok {
		return p, nil
	}

	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("provider %q is defined but not registered", id)
	}

	cfg, err := r.configLocked(id)
	if err != nil {
		return nil, err
	}

	p, err := factory(cfg, r.deps)
	if err != nil {
		return nil, fmt.Errorf("load provider %q: %w", id, err)
	}
	r.providers[id] = p
	return p, nil
}

// Config resolves and memoizes the provider's configuration.
func (r *Registry) Config(id string) (Config, error) {
	if DefinitionFor(id) == nil {
		return nil, &UnknownProviderError{ID: id}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configLocked(id)
}

func (r *Registry) configLocked(id string) (Config, error) {
	if cfg, ok := r.configs[id]; ok {
		return cfg, nil
	}
	cfg, err := ResolveConfig(id)
	if err != nil {
		return nil, err
	}
	r.configs[id] = cfg
	return cfg, nil
}

// Validate resolves the provider's config, overlays any explicit overrides,
// and runs shape plus environment validation.
func (r *Registry) Validate(id string, overrides map[string]string) (ValidationResult, error) {
	cfg, err := r.Config(id)
	if err != nil {
		return ValidationResult{}, err
	}
	if len(overrides) > 0 {
		cfg = cfg.Merge(overrides)
	}
	return ValidateConfig(id, cfg), nil
}

// SetConfig pins an explicit configuration for a provider, replacing the
// env-resolved one. Used when Initialize gets explicit overrides.
func (r *Registry) SetConfig(id string, cfg Config) error {
	if DefinitionFor(id) == nil {
		return &UnknownProviderError{ID: id}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[id] = cfg
	// A pinned config invalidates any provider built from the old one.
	delete(r.providers, id)
	return nil
}

// ClearCaches drops all memoized providers and configs. The next Load or
// Config re-resolves from the environment.
func (r *Registry) ClearCaches() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = make(map[string]Provider)
	r.configs = make(map[string]Config)
}
