package store

import (
	"errors"

	"github.com/kilianp07/loadguard/core/factory"
	"github.com/kilianp07/loadguard/core/plan"
)

// Store is a closable plan.StateStore.
type Store interface {
	plan.StateStore
	Close() error
}

var registry = factory.NewRegistry[Store]()

func init() {
	_ = registry.Register("memory", func(map[string]any) (Store, error) {
		return NewMemoryStore(), nil
	})
	_ = registry.Register("sqlite", func(conf map[string]any) (Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, errors.New("sqlite store: path is required")
		}
		return NewSQLiteStore(c.Path)
	})
}

// Register adds a store backend.
func Register(name string, f factory.Factory[Store]) error {
	return registry.Register(name, f)
}

// Open creates the store described by cfg. An empty type selects memory.
func Open(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	return registry.Create(cfg)
}
