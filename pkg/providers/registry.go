package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bher20/tariffd/internal/tariff"
)

// ConfigurationError reports a subscription that can never succeed
// against the current catalog. It is raised once at wiring time, not
// during acquisition cycles.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "providers: invalid configuration: " + e.Reason
}

// Registry is the provider catalog. It is constructed once at startup
// and handed to the pipeline and schedulers; nothing registers into a
// package global.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns a catalog pre-populated with the given providers.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds a provider, replacing any existing provider with the
// same ID.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get returns the provider with the given ID.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// List returns all providers sorted by ID.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ForRegion returns the providers serving a region for a service type,
// sorted by ID.
func (r *Registry) ForRegion(region string, st tariff.ServiceType) []Provider {
	var out []Provider
	for _, p := range r.List() {
		for _, reg := range p.Regions()[st] {
			if strings.EqualFold(reg, region) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Validate checks a subscription key against the catalog. Checks run
// in order (provider, service type, region, schedule) and stop at the
// first failure so the reason names the actual misconfiguration.
func (r *Registry) Validate(key tariff.AcquisitionKey) error {
	p, ok := r.Get(key.Provider)
	if !ok {
		return &ConfigurationError{Reason: fmt.Sprintf("unknown provider %q", key.Provider)}
	}
	regions, ok := p.Regions()[key.ServiceType]
	if !ok {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"provider %q does not support service type %q", key.Provider, key.ServiceType)}
	}
	if !containsFold(regions, key.Region) {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"provider %q does not serve region %q for %s service", key.Provider, key.Region, key.ServiceType)}
	}
	if !containsFold(p.Schedules()[key.ServiceType], key.Schedule) {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"provider %q has no %s schedule %q", key.Provider, key.ServiceType, key.Schedule)}
	}
	return nil
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
