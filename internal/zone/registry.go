package zone

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/safewalk-core/internal/geo"
)

// Registry caches the zone list for the app session. Zones are immutable
// once fetched; callers always receive a copy.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	mu     sync.RWMutex
	zones  []geo.Zone
	loaded bool
	logger Logger
}

// NewRegistry creates a Registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads zones from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	zones, err := r.repo.ListRedZones(ctx)
	if err != nil {
		return fmt.Errorf("loading red zones: %w", err)
	}

	r.mu.Lock()
	r.zones = append([]geo.Zone(nil), zones...)
	r.loaded = true
	r.mu.Unlock()

	r.logger.Info("red zone cache refreshed", "count", len(zones))
	return nil
}

// FetchZones returns the cached zones, loading them on first use.
func (r *Registry) FetchZones(ctx context.Context) ([]geo.Zone, error) {
	if zones, err := r.Zones(); err == nil {
		return zones, nil
	}
	if err := r.RefreshCache(ctx); err != nil {
		return nil, err
	}
	return r.Zones()
}

// Zones returns a copy of the cached zones, or ErrNotLoaded.
func (r *Registry) Zones() ([]geo.Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, ErrNotLoaded
	}
	return append([]geo.Zone(nil), r.zones...), nil
}

// Get returns the zone with id, if cached.
func (r *Registry) Get(id string) (geo.Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, z := range r.zones {
		if z.ID == id {
			return z, true
		}
	}
	return geo.Zone{}, false
}
