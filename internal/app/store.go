package app

import (
	"fmt"

	"gavault/internal/config"
	"gavault/internal/kv"
	"gavault/pkg/logging"
)

// newStore creates the key-value store selected by the configuration.
func newStore(cfg config.StorageConfig) (kv.Store, error) {
	switch cfg.Type {
	case config.StorageREST:
		store, err := kv.NewREST(kv.RESTConfig{
			URL:     cfg.REST.URL,
			Token:   cfg.REST.Token,
			Timeout: cfg.REST.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create REST store: %w", err)
		}
		logging.Info("Bootstrap", "Using REST key-value store at %s", cfg.REST.URL)
		return store, nil

	case config.StorageValkey:
		store, err := kv.NewValkey(kv.ValkeyConfig{
			Address:    cfg.Valkey.Address,
			Password:   cfg.Valkey.Password,
			DB:         cfg.Valkey.DB,
			TLSEnabled: cfg.Valkey.TLSEnabled,
			Timeout:    cfg.Valkey.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Valkey store: %w", err)
		}
		logging.Info("Bootstrap", "Using Valkey store at %s", cfg.Valkey.Address)
		return store, nil

	case config.StorageMemory:
		logging.Warn("Bootstrap", "Using in-memory store; credentials are lost on restart and not shared between instances")
		return kv.NewMemory(nil), nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s (supported: %s, %s, %s)",
			cfg.Type, config.StorageREST, config.StorageValkey, config.StorageMemory)
	}
}
