// Package collectors defines the provider billing collector contract and the
// registry the CLI uses to instantiate collectors by provider name.
package collectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/costlens/costlens/pkg/models/domain"
)

// Collector pulls billing data from one provider and normalizes it: currency
// converted upstream, day granularity, UTC dates. Collectors also return
// whatever utilization signals the provider exposes; an empty signal slice
// is valid.
type Collector interface {
	Provider() domain.Provider
	Collect(ctx context.Context, start, end time.Time) ([]domain.CostRecord, []domain.UtilizationSignal, error)
}

// Factory creates a Collector bound to a named credentials profile.
type Factory func(ctx context.Context, profile string) (Collector, error)

// Registry manages provider collector factories.
type Registry interface {
	Register(provider domain.Provider, factory Factory) error
	Create(ctx context.Context, provider domain.Provider, profile string) (Collector, error)
	ListProviders() []domain.Provider
}

type registry struct {
	mu        sync.RWMutex
	factories map[domain.Provider]Factory
}

func NewRegistry() Registry {
	return &registry{
		factories: make(map[domain.Provider]Factory),
	}
}

func (r *registry) Register(provider domain.Provider, factory Factory) error {
	if provider == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[provider]; exists {
		return fmt.Errorf("provider %q is already registered", provider)
	}
	r.factories[provider] = factory
	return nil
}

func (r *registry) Create(ctx context.Context, provider domain.Provider, profile string) (Collector, error) {
	r.mu.RLock()
	factory, exists := r.factories[provider]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider %q is not registered", provider)
	}
	return factory(ctx, profile)
}

func (r *registry) ListProviders() []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]domain.Provider, 0, len(r.factories))
	for p := range r.factories {
		providers = append(providers, p)
	}
	return providers
}
