package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"gavault/pkg/logging"
)

// LookupFunc reads an environment variable. os.LookupEnv in production.
type LookupFunc func(key string) (string, bool)

// Environment variables applied on top of the file.
const (
	EnvEncryptionKey      = "GAVAULT_ENCRYPTION_KEY"
	EnvStorageType        = "GAVAULT_STORAGE_TYPE"
	EnvKVRestURL          = "GAVAULT_KV_REST_URL"
	EnvKVRestToken        = "GAVAULT_KV_REST_TOKEN"
	EnvValkeyAddress      = "GAVAULT_VALKEY_ADDRESS"
	EnvValkeyPassword     = "GAVAULT_VALKEY_PASSWORD"
	EnvGoogleClientID     = "GAVAULT_GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "GAVAULT_GOOGLE_CLIENT_SECRET"
	EnvPluginClientID     = "GAVAULT_PLUGIN_CLIENT_ID"
	EnvPluginClientSecret = "GAVAULT_PLUGIN_CLIENT_SECRET"
	EnvPluginSigningKey   = "GAVAULT_PLUGIN_SIGNING_KEY"
	EnvPublicURL          = "GAVAULT_PUBLIC_URL"
	EnvListenAddr         = "GAVAULT_LISTEN_ADDR"
	EnvLogLevel           = "GAVAULT_LOG_LEVEL"
	EnvSecureCookies      = "GAVAULT_SECURE_COOKIES"
)

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then the environment read through lookup. The result
// is not validated.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := GetDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			logging.Info("Config", "No config file at %s, using defaults and environment", path)
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("error loading config from %s: %w", path, err)
			}
			logging.Info("Config", "Loaded configuration from %s", path)
		}
	}
	if len(cfg.Plans.Tiers) == 0 {
		cfg.Plans.Tiers = defaultTiers()
	}

	if lookup != nil {
		if err := applyEnv(&cfg, lookup); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadPlans re-reads only the plans section of the file at path.
func LoadPlans(path string) (PlansConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PlansConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file struct {
		Plans PlansConfig `yaml:"plans"`
	}
	file.Plans.DefaultTier = GetDefaultConfig().Plans.DefaultTier
	if err := yaml.Unmarshal(data, &file); err != nil {
		return PlansConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	if len(file.Plans.Tiers) == 0 {
		file.Plans.Tiers = defaultTiers()
	}
	if err := file.Plans.Validate(); err != nil {
		return PlansConfig{}, err
	}
	return file.Plans, nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	vars := []struct {
		key string
		dst *string
	}{
		{EnvEncryptionKey, &cfg.EncryptionKey},
		{EnvStorageType, &cfg.Storage.Type},
		{EnvKVRestURL, &cfg.Storage.REST.URL},
		{EnvKVRestToken, &cfg.Storage.REST.Token},
		{EnvValkeyAddress, &cfg.Storage.Valkey.Address},
		{EnvValkeyPassword, &cfg.Storage.Valkey.Password},
		{EnvGoogleClientID, &cfg.Google.ClientID},
		{EnvGoogleClientSecret, &cfg.Google.ClientSecret},
		{EnvPluginClientID, &cfg.Plugin.ClientID},
		{EnvPluginClientSecret, &cfg.Plugin.ClientSecret},
		{EnvPluginSigningKey, &cfg.Plugin.SigningKey},
		{EnvPublicURL, &cfg.Server.PublicURL},
		{EnvListenAddr, &cfg.Server.ListenAddr},
		{EnvLogLevel, &cfg.Logging.Level},
	}
	for _, s := range vars {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	if v, ok := lookup(EnvSecureCookies); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvSecureCookies, err)
		}
		cfg.Server.SecureCookies = b
	}
	return nil
}
