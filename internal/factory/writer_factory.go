package factory

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/model"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// WriterFactory builds a writer from its config entry.
type WriterFactory func(def config.WriterDef, logger *zap.Logger) (model.Writer, error)

var (
	mu sync.RWMutex
	// registry holds the mapping of writer types to their factory functions.
	registry = make(map[string]WriterFactory)
)

// RegisterWriter registers a new writer type with its factory function. It is
// meant to be called from init and panics on duplicate names.
func RegisterWriter(name string, factory WriterFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered returns the registered writer types, sorted.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds every enabled writer of the config, in config order.
func Create(cfg *config.Config, logger *zap.Logger) ([]model.Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var writers []model.Writer

	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}
		logger.Info("creating writer", zap.String("type", def.Type))

		mu.RLock()
		factory, ok := registry[def.Type]
		mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		w, err := factory(def, logger)
		if err != nil {
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}
		writers = append(writers, w)
	}

	return writers, nil
}
