package config

import "time"

// Config is the gavault configuration file.
type Config struct {
	// EncryptionKey is the base64 AES-256 key for credential records.
	// Usually supplied through GAVAULT_ENCRYPTION_KEY.
	EncryptionKey string `yaml:"encryptionKey,omitempty"`

	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Google  GoogleConfig  `yaml:"google"`
	Plugin  PluginConfig  `yaml:"plugin"`
	Refresh RefreshConfig `yaml:"refresh"`
	Plans   PlansConfig   `yaml:"plans"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// PublicURL is the externally reachable base URL. The Google redirect
	// URL is derived from it.
	PublicURL       string `yaml:"publicUrl"`
	CookieName      string `yaml:"cookieName,omitempty"`
	SecureCookies   bool   `yaml:"secureCookies"`
	AfterConnectURL string `yaml:"afterConnectUrl,omitempty"`
	UpgradeURL      string `yaml:"upgradeUrl,omitempty"`
	// OAuthRateLimit is requests per minute per IP on /oauth/*.
	OAuthRateLimit int `yaml:"oauthRateLimit,omitempty"`
}

// StorageConfig selects and configures the key-value store.
type StorageConfig struct {
	// Type is "rest", "valkey" or "memory".
	Type      string              `yaml:"type"`
	KeyPrefix string              `yaml:"keyPrefix"`
	REST      RESTStorageConfig   `yaml:"rest,omitempty"`
	Valkey    ValkeyStorageConfig `yaml:"valkey,omitempty"`
}

// RESTStorageConfig configures an Upstash-compatible REST store.
type RESTStorageConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ValkeyStorageConfig configures a Valkey or Redis store.
type ValkeyStorageConfig struct {
	Address    string        `yaml:"address"`
	Password   string        `yaml:"password,omitempty"`
	DB         int           `yaml:"db,omitempty"`
	TLSEnabled bool          `yaml:"tlsEnabled,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// GoogleConfig configures the Google OAuth client and the Analytics APIs.
type GoogleConfig struct {
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
	// AuthURL and TokenURL override Google's endpoints.
	AuthURL  string `yaml:"authUrl,omitempty"`
	TokenURL string `yaml:"tokenUrl,omitempty"`
	// AdminEndpoint and DataEndpoint override the Analytics API hosts.
	AdminEndpoint string `yaml:"adminEndpoint,omitempty"`
	DataEndpoint  string `yaml:"dataEndpoint,omitempty"`
}

// PluginConfig configures the single static plugin client.
type PluginConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
	// SigningKey signs plugin access tokens (HS256).
	SigningKey   string        `yaml:"signingKey,omitempty"`
	TokenTTL     time.Duration `yaml:"tokenTtl,omitempty"`
	CodeTTL      time.Duration `yaml:"codeTtl,omitempty"`
	RedirectURIs []string      `yaml:"redirectUris,omitempty"`
}

// RefreshConfig tunes the refresh engine.
type RefreshConfig struct {
	ExpiryMargin time.Duration `yaml:"expiryMargin,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	LockTTL      time.Duration `yaml:"lockTtl,omitempty"`
}

// PlansConfig maps tiers to monthly per-feature limits. A negative limit
// is unlimited. This is the only section reloaded at runtime.
type PlansConfig struct {
	DefaultTier string                      `yaml:"defaultTier"`
	Tiers       map[string]map[string]int64 `yaml:"tiers"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
