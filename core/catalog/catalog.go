// Package catalog holds the carrier master data and pool membership the
// engine reads. Both are owned by carrier management and loaded from a
// YAML or JSON snapshot; tenders copy what they need at creation.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/tendering/core/model"
)

// Snapshot is the on-disk representation of the catalog.
type Snapshot struct {
	Carriers []model.CarrierProfile `json:"carriers" yaml:"carriers"`
	Pools    []model.CarrierPool    `json:"pools" yaml:"pools"`
}

// Config points at the snapshot file.
type Config struct {
	Path string `json:"path"`
}

// Load reads a Snapshot from a JSON or YAML file.
func Load(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Decode(f, ext)
}

// Decode reads a Snapshot from r in the given format.
func Decode(r io.Reader, format string) (Snapshot, error) {
	var s Snapshot
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return s, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&s); err != nil {
			return s, err
		}
	default:
		return s, fmt.Errorf("unsupported catalog format: %s", format)
	}
	return s, s.Validate()
}

// Validate checks ids are unique, metrics are in range and every pool member
// is a known carrier.
func (s Snapshot) Validate() error {
	var errs []error
	known := make(map[string]bool, len(s.Carriers))
	for _, c := range s.Carriers {
		switch {
		case c.ID == "":
			errs = append(errs, errors.New("carrier with empty id"))
		case known[c.ID]:
			errs = append(errs, fmt.Errorf("duplicate carrier %s", c.ID))
		}
		known[c.ID] = true
		if c.Rating < 0 || c.Rating > 5 {
			errs = append(errs, fmt.Errorf("carrier %s: rating %.2f outside [0,5]", c.ID, c.Rating))
		}
		if c.OnTimeRate < 0 || c.OnTimeRate > 100 {
			errs = append(errs, fmt.Errorf("carrier %s: on-time rate %.2f outside [0,100]", c.ID, c.OnTimeRate))
		}
	}
	names := map[string]bool{}
	for _, p := range s.Pools {
		if names[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate pool %s", p.Name))
		}
		names[p.Name] = true
		for _, lt := range p.LaneTypes {
			if !lt.Valid() {
				errs = append(errs, fmt.Errorf("pool %s: unknown lane type %q", p.Name, lt))
			}
		}
		for _, id := range p.Carriers {
			if !known[id] {
				errs = append(errs, fmt.Errorf("pool %s: unknown carrier %s", p.Name, id))
			}
		}
	}
	return errors.Join(errs...)
}

// Catalog serves the current snapshot. Replace swaps it atomically; tenders
// created earlier keep the profiles they copied.
type Catalog struct {
	mu   sync.RWMutex
	snap Snapshot
	byID map[string]model.CarrierProfile
}

// New validates s and returns a Catalog serving it.
func New(s Snapshot) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(s); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace installs a new snapshot.
func (c *Catalog) Replace(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	byID := make(map[string]model.CarrierProfile, len(s.Carriers))
	for _, p := range s.Carriers {
		byID[p.ID] = p
	}
	c.mu.Lock()
	c.snap = s
	c.byID = byID
	c.mu.Unlock()
	return nil
}

// Pools returns a copy of the pools.
func (c *Catalog) Pools() []model.CarrierPool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.CarrierPool, len(c.snap.Pools))
	copy(out, c.snap.Pools)
	return out
}

// Carriers returns every carrier sorted by id.
func (c *Catalog) Carriers() []model.CarrierProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.CarrierProfile, 0, len(c.byID))
	for _, p := range c.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Carrier looks up one carrier.
func (c *Catalog) Carrier(id string) (model.CarrierProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	return p, ok
}

// Inactive returns the ids of carriers flagged inactive.
func (c *Catalog) Inactive() []string {
	var out []string
	for _, p := range c.Carriers() {
		if !p.Active {
			out = append(out, p.ID)
		}
	}
	return out
}
