package dex

import (
	"fmt"
	"sort"
	"sync"

	"github.com/michaelpento.lv/flasharb/types"
	"go.uber.org/zap"
)

type entry struct {
	venue   types.Venue
	adapter Adapter
}

// Registry maps venue identifiers to their adapter and active flag
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *zap.Logger
}

// NewRegistry creates an empty venue registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register adds a venue. Venues are never removed, only toggled.
func (r *Registry) Register(venue types.Venue, adapter Adapter) error {
	if venue.ID == "" {
		return fmt.Errorf("venue id must be specified")
	}
	if adapter == nil {
		return fmt.Errorf("venue %s: adapter cannot be nil", venue.ID)
	}
	if adapter.Model() != venue.Model {
		return fmt.Errorf("venue %s: adapter implements %s, venue declares %s",
			venue.ID, adapter.Model(), venue.Model)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[venue.ID]; exists {
		return fmt.Errorf("%w: %s", types.ErrVenueExists, venue.ID)
	}
	r.entries[venue.ID] = &entry{venue: venue, adapter: adapter}

	r.logger.Info("Registered venue",
		zap.String("venue", venue.ID),
		zap.Stringer("model", venue.Model),
		zap.String("pool", venue.Pool.Hex()),
		zap.Bool("active", venue.Active))
	return nil
}

// Toggle flips a venue's active flag
func (r *Registry) Toggle(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrVenueNotFound, id)
	}
	e.venue.Active = active

	r.logger.Info("Toggled venue", zap.String("venue", id), zap.Bool("active", active))
	return nil
}

// Resolve returns the venue record and its adapter
func (r *Registry) Resolve(id string) (types.Venue, Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return types.Venue{}, nil, fmt.Errorf("%w: %s", types.ErrVenueNotFound, id)
	}
	return e.venue, e.adapter, nil
}

// ResolveActive is Resolve that additionally requires the venue be active
func (r *Registry) ResolveActive(id string) (types.Venue, Adapter, error) {
	venue, adapter, err := r.Resolve(id)
	if err != nil {
		return types.Venue{}, nil, err
	}
	if !venue.Active {
		return types.Venue{}, nil, fmt.Errorf("%w: %s", types.ErrVenueInactive, id)
	}
	return venue, adapter, nil
}

// List returns every registered venue sorted by id
func (r *Registry) List() []types.Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	venues := make([]types.Venue, 0, len(r.entries))
	for _, e := range r.entries {
		venues = append(venues, e.venue)
	}
	sort.Slice(venues, func(i, j int) bool { return venues[i].ID < venues[j].ID })
	return venues
}

// Active returns the active venues sorted by id
func (r *Registry) Active() []types.Venue {
	all := r.List()
	active := all[:0]
	for _, v := range all {
		if v.Active {
			active = append(active, v)
		}
	}
	return active
}
