package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const (
	encryptionKeySize    = 32
	minSigningKeyLength  = 32
	unlimitedLimitMarker = -1
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	errs := c.storeErrors()

	if err := validateHTTPSRequirement(c.Server.PublicURL); err != nil {
		errs = append(errs, err)
	}
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listenAddr is required"))
	}

	if c.Google.ClientID == "" {
		errs = append(errs, fmt.Errorf("google.clientId is required (%s)", EnvGoogleClientID))
	}
	if c.Google.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("google client secret is required (%s)", EnvGoogleClientSecret))
	}

	if c.Plugin.ClientID == "" {
		errs = append(errs, fmt.Errorf("plugin.clientId is required (%s)", EnvPluginClientID))
	}
	if c.Plugin.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("plugin client secret is required (%s)", EnvPluginClientSecret))
	}
	if len(c.Plugin.SigningKey) < minSigningKeyLength {
		errs = append(errs, fmt.Errorf("plugin signing key must be at least %d characters (%s)", minSigningKeyLength, EnvPluginSigningKey))
	}
	for _, uri := range c.Plugin.RedirectURIs {
		if u, err := url.Parse(uri); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("plugin redirect URI %q is not an absolute URL", uri))
		}
	}

	if c.Refresh.LockTTL > 0 && c.Refresh.Timeout > 0 && c.Refresh.LockTTL <= c.Refresh.Timeout {
		errs = append(errs, errors.New("refresh.lockTtl must be longer than refresh.timeout"))
	}

	if err := c.Plans.Validate(); err != nil {
		errs = append(errs, err)
	}

	return invalid(errs)
}

// ValidateStore checks only what is needed to open the vault: the
// encryption key and the storage section. Used by diagnostic commands.
func (c *Config) ValidateStore() error {
	return invalid(c.storeErrors())
}

func (c *Config) storeErrors() []error {
	var errs []error
	if c.EncryptionKey == "" {
		errs = append(errs, fmt.Errorf("encryption key is required (%s)", EnvEncryptionKey))
	} else if key, err := base64.StdEncoding.DecodeString(c.EncryptionKey); err != nil || len(key) != encryptionKeySize {
		errs = append(errs, fmt.Errorf("encryption key must be base64 of %d bytes", encryptionKeySize))
	}
	return append(errs, c.Storage.validate()...)
}

func invalid(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n%w", ErrInvalid, errors.Join(errs...))
}

func (s StorageConfig) validate() []error {
	var errs []error
	switch s.Type {
	case StorageREST:
		if s.REST.URL == "" {
			errs = append(errs, fmt.Errorf("storage.rest.url is required (%s)", EnvKVRestURL))
		}
		if s.REST.Token == "" {
			errs = append(errs, fmt.Errorf("storage REST token is required (%s)", EnvKVRestToken))
		}
	case StorageValkey:
		if s.Valkey.Address == "" {
			errs = append(errs, fmt.Errorf("storage.valkey.address is required (%s)", EnvValkeyAddress))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported storage type %q (supported: %s, %s, %s)",
			s.Type, StorageREST, StorageValkey, StorageMemory))
	}
	return errs
}

// Validate checks the plan tiers.
func (p PlansConfig) Validate() error {
	var errs []error
	if _, ok := p.Tiers[p.DefaultTier]; !ok {
		errs = append(errs, fmt.Errorf("plans.defaultTier %q is not defined", p.DefaultTier))
	}

	tiers := make([]string, 0, len(p.Tiers))
	for tier := range p.Tiers {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	for _, tier := range tiers {
		for feature, limit := range p.Tiers[tier] {
			if limit < unlimitedLimitMarker {
				errs = append(errs, fmt.Errorf("plans.tiers.%s.%s: limit %d is invalid (use -1 for unlimited)", tier, feature, limit))
			}
		}
	}
	return errors.Join(errs...)
}

// GoogleRedirectURL is the callback URL registered with Google.
func (c *Config) GoogleRedirectURL() string {
	return strings.TrimSuffix(c.Server.PublicURL, "/") + CallbackPath
}

// validateHTTPSRequirement allows plain HTTP only for loopback addresses.
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return errors.New("server.publicUrl cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid server.publicUrl: %w", err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("server.publicUrl must use HTTPS outside localhost (got: %s)", baseURL)
		}
	default:
		return fmt.Errorf("server.publicUrl must use http or https scheme (got: %s)", baseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("server.publicUrl must include a host (got: %s)", baseURL)
	}
	return nil
}
