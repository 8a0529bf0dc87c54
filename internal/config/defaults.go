package config

import "time"

const (
	// DefaultListenAddr is the default HTTP listen address.
	DefaultListenAddr = ":8080"
	// DefaultPublicURL works for local development only.
	DefaultPublicURL = "http://localhost:8080"
	// DefaultKeyPrefix prefixes every storage key.
	DefaultKeyPrefix = "gavault:"

	StorageREST   = "rest"
	StorageValkey = "valkey"
	StorageMemory = "memory"

	// CallbackPath is where Google redirects after consent.
	CallbackPath = "/auth/google/callback"
)

// GetDefaultConfig returns the configuration used before the file and the
// environment are applied.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
			PublicURL:  DefaultPublicURL,
		},
		Storage: StorageConfig{
			Type:      StorageREST,
			KeyPrefix: DefaultKeyPrefix,
			REST:      RESTStorageConfig{Timeout: 5 * time.Second},
			Valkey:    ValkeyStorageConfig{Timeout: 5 * time.Second},
		},
		Plugin: PluginConfig{
			TokenTTL: time.Hour,
			CodeTTL:  10 * time.Minute,
		},
		Refresh: RefreshConfig{
			ExpiryMargin: 60 * time.Second,
			Timeout:      10 * time.Second,
			LockTTL:      15 * time.Second,
		},
		Plans: PlansConfig{
			DefaultTier: "free",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// defaultTiers is used when the file defines no tiers. Tiers are not part of
// GetDefaultConfig because YAML decoding merges maps instead of replacing them.
func defaultTiers() map[string]map[string]int64 {
	return map[string]map[string]int64{
		"free": {"query": 50, "properties": 200},
		"pro":  {"query": 5000, "properties": -1},
	}
}
