package audit

import "github.com/kilianp07/tendering/core/factory"

var storeRegistry = factory.NewRegistry[Store]()

func init() {
	_ = RegisterStore("memory", func(map[string]any) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// Config selects the audit store backend.
type Config struct {
	Store factory.ModuleConfig `json:"store"`
}

// RegisterStore adds a store factory identified by name.
func RegisterStore(name string, f factory.Factory[Store]) error {
	return storeRegistry.Register(name, f)
}

// NewStore builds the configured store, defaulting to memory.
func NewStore(cfg Config) (Store, error) {
	if cfg.Store.Type == "" {
		return NewMemoryStore(), nil
	}
	return storeRegistry.Create(cfg.Store)
}

// StoreTypes lists the registered store names.
func StoreTypes() []string { return storeRegistry.Types() }
