package config

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validEnv() map[string]string {
	return map[string]string{
		EnvEncryptionKey:      base64.StdEncoding.EncodeToString(make([]byte, 32)),
		EnvKVRestURL:          "https://kv.example",
		EnvKVRestToken:        "kv-token",
		EnvGoogleClientID:     "google-client",
		EnvGoogleClientSecret: "google-secret",
		EnvPluginClientID:     "plugin-client",
		EnvPluginClientSecret: "plugin-secret",
		EnvPluginSigningKey:   strings.Repeat("k", 32),
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.Server.ListenAddr)
	assert.Equal(t, StorageREST, cfg.Storage.Type)
	assert.Equal(t, DefaultKeyPrefix, cfg.Storage.KeyPrefix)
	assert.Equal(t, 10*time.Second, cfg.Refresh.Timeout)
	assert.Equal(t, "free", cfg.Plans.DefaultTier)
	assert.Contains(t, cfg.Plans.Tiers, "pro")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddr, cfg.Server.ListenAddr)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
server:
  listenAddr: ":9000"
  publicUrl: "https://gavault.example"
storage:
  type: valkey
  keyPrefix: "ga:"
  valkey:
    address: "valkey:6379"
    timeout: 2s
refresh:
  timeout: 5s
  lockTtl: 8s
plans:
  defaultTier: basic
  tiers:
    basic: {query: 3}
`)

	cfg, err := Load(path, envMap(map[string]string{
		EnvListenAddr:     ":9100",
		EnvValkeyPassword: "secret",
		EnvSecureCookies:  "true",
		EnvLogLevel:       "",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.ListenAddr)
	assert.Equal(t, "https://gavault.example", cfg.Server.PublicURL)
	assert.True(t, cfg.Server.SecureCookies)
	assert.Equal(t, StorageValkey, cfg.Storage.Type)
	assert.Equal(t, "ga:", cfg.Storage.KeyPrefix)
	assert.Equal(t, "secret", cfg.Storage.Valkey.Password)
	assert.Equal(t, 2*time.Second, cfg.Storage.Valkey.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Refresh.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Refresh.ExpiryMargin)
	assert.Equal(t, "info", cfg.Logging.Level)

	// File tiers replace the defaults instead of merging with them.
	assert.Equal(t, map[string]map[string]int64{"basic": {"query": 3}}, cfg.Plans.Tiers)
}

func TestLoad_Errors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "server: [not, a, map]")
	_, err := Load(path, nil)
	assert.Error(t, err)

	_, err = Load("", envMap(map[string]string{EnvSecureCookies: "maybe"}))
	assert.ErrorContains(t, err, EnvSecureCookies)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("", envMap(validEnv()))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:8080/auth/google/callback", cfg.GoogleRedirectURL())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{
		EnvEncryptionKey:    "too-short",
		EnvPublicURL:        "http://gavault.example",
		EnvPluginSigningKey: "short",
	}))
	require.NoError(t, err)
	cfg.Refresh.LockTTL = cfg.Refresh.Timeout
	cfg.Plans.DefaultTier = "missing"

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"encryption key must be base64",
		"must use HTTPS",
		"storage.rest.url is required",
		"google.clientId is required",
		"plugin.clientId is required",
		"plugin signing key",
		"lockTtl must be longer",
		`defaultTier "missing"`,
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestValidate_Storage(t *testing.T) {
	tests := []struct {
		storage StorageConfig
		wantErr string
	}{
		{StorageConfig{Type: StorageMemory}, ""},
		{StorageConfig{Type: StorageValkey, Valkey: ValkeyStorageConfig{Address: "localhost:6379"}}, ""},
		{StorageConfig{Type: StorageValkey}, "valkey.address"},
		{StorageConfig{Type: StorageREST, REST: RESTStorageConfig{URL: "https://kv"}}, "REST token"},
		{StorageConfig{Type: "etcd"}, "unsupported storage type"},
	}
	for _, tt := range tests {
		t.Run(tt.storage.Type, func(t *testing.T) {
			errs := tt.storage.validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.wantErr)
		})
	}
}

func TestValidateHTTPSRequirement(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://gavault.example", false},
		{"http://localhost:8080", false},
		{"http://127.0.0.1:8080", false},
		{"http://[::1]:8080", false},
		{"http://gavault.example", true},
		{"ftp://gavault.example", true},
		{"https://", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := validateHTTPSRequirement(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPlansValidate(t *testing.T) {
	assert.NoError(t, PlansConfig{DefaultTier: "free", Tiers: map[string]map[string]int64{"free": {"query": -1}}}.Validate())
	assert.ErrorContains(t,
		PlansConfig{DefaultTier: "free", Tiers: map[string]map[string]int64{"free": {"query": -2}}}.Validate(),
		"plans.tiers.free.query")
}

func TestLoadPlans(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, `
plans:
  defaultTier: team
  tiers:
    team: {query: 100, properties: -1}
`)
	plans, err := LoadPlans(path)
	require.NoError(t, err)
	assert.Equal(t, "team", plans.DefaultTier)
	assert.Equal(t, int64(100), plans.Tiers["team"]["query"])

	writeFile(t, dir, "plans:\n  defaultTier: gone\n  tiers:\n    team: {query: 1}\n")
	_, err = LoadPlans(path)
	assert.Error(t, err)
}

func TestWatch_ReloadsPlans(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plans:\n  defaultTier: free\n  tiers:\n    free: {query: 1}\n")

	var (
		mu  sync.Mutex
		got []PlansConfig
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, path, 10*time.Millisecond, func(p PlansConfig) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, p)
		})
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)

	// An invalid change is ignored.
	writeFile(t, dir, "plans:\n  defaultTier: nope\n  tiers:\n    free: {query: 1}\n")
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "plans:\n  defaultTier: free\n  tiers:\n    free: {query: 7}\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1].Tiers["free"]["query"] == 7
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, p := range got {
		assert.Equal(t, "free", p.DefaultTier)
	}
}

func TestValidateStore(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{
		EnvEncryptionKey: base64.StdEncoding.EncodeToString(make([]byte, 32)),
		EnvStorageType:   StorageMemory,
	}))
	require.NoError(t, err)

	// The Google and plugin sections are not needed to open the store.
	assert.NoError(t, cfg.ValidateStore())
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)

	cfg.EncryptionKey = ""
	assert.ErrorIs(t, cfg.ValidateStore(), ErrInvalid)
}
