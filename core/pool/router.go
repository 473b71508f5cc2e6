// Package pool resolves which carriers may bid on a tender.
package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/tendering/core/model"
)

// ErrNoEligibleCarriers is returned when no pool serves the tender.
var ErrNoEligibleCarriers = errors.New("no eligible carriers")

// Source provides the current pool configuration. Pools are owned by carrier
// management; the router never mutates them.
type Source interface {
	Pools() []model.CarrierPool
}

// StaticSource serves a fixed set of pools.
type StaticSource []model.CarrierPool

// Pools implements Source.
func (s StaticSource) Pools() []model.CarrierPool { return s }

// Router selects eligible carriers for a tender.
type Router struct {
	src Source

	mu       sync.RWMutex
	inactive map[string]bool
}

// NewRouter returns a Router reading pools from src.
func NewRouter(src Source) *Router {
	return &Router{src: src, inactive: map[string]bool{}}
}

// SetInactive excludes carriers flagged inactive in the master data.
func (r *Router) SetInactive(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inactive = make(map[string]bool, len(ids))
	for _, id := range ids {
		r.inactive[id] = true
	}
}

// Resolve returns the carrier ids eligible for the tender. Pools serving the
// load type and at least one requested service level are ordered by priority
// (lower first, then name) and flattened without duplicates.
func (r *Router) Resolve(t model.TenderLoad) ([]string, error) {
	var matched []model.CarrierPool
	for _, p := range r.src.Pools() {
		if p.ServesLane(t.LoadType) && p.ServesAny(t.ServiceLevels) {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].Name < matched[j].Name
	})

	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var ids []string
	for _, p := range matched {
		for _, id := range p.Carriers {
			if seen[id] || r.inactive[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w for %s load", ErrNoEligibleCarriers, t.LoadType)
	}
	return ids, nil
}
