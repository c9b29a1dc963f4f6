package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedEnv = []string{
	"APPINV_APP_ENV",
	"APPINV_APP_PLATFORM",
	"APPINV_API_BASE_URL",
	"API_URL",
	"APPINV_API_TIMEOUT",
	"APPINV_AUTH_STORE",
	"APPINV_AUTH_PASSPHRASE",
	"APPINV_LIST_DEFAULT_PER_PAGE",
	"APPINV_LIST_STALE_POLICY",
	"APPINV_TELEMETRY_SAMPLING_RATIO",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedEnv {
		// t.Setenv restores the original value after the test
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "appinv", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, PlatformDesktop, cfg.App.Platform)
		assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
		assert.Equal(t, 30*time.Second, cfg.API.Timeout)
		assert.Equal(t, StoreFile, cfg.Auth.Store)
		assert.Equal(t, 10, cfg.List.DefaultPerPage)
		assert.Equal(t, StaleLatest, cfg.List.StalePolicy)
		assert.Equal(t, 6379, cfg.Redis.Port)
	})

	t.Run("android platform uses emulator loopback", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APPINV_APP_PLATFORM", "Android")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultAndroidBaseURL, cfg.API.BaseURL)
	})

	t.Run("API_URL overrides the base url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("API_URL", "https://api.example.com/v1/")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://api.example.com/v1", cfg.API.BaseURL)
	})

	t.Run("prefixed env wins over API_URL", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("API_URL", "https://a.example.com")
		t.Setenv("APPINV_API_BASE_URL", "https://b.example.com")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://b.example.com", cfg.API.BaseURL)
	})

	t.Run("rejects unknown stale policy", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APPINV_LIST_STALE_POLICY", "random")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stale_policy")
	})

	t.Run("rejects per page out of range", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APPINV_LIST_DEFAULT_PER_PAGE", "500")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default_per_page")
	})

	t.Run("rejects non http base url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APPINV_API_BASE_URL", "ftp://files.example.com")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http or https")
	})

	t.Run("production requires passphrase for file store", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APPINV_APP_ENV", "production")
		t.Setenv("APPINV_API_BASE_URL", "https://api.example.com")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "passphrase")

		t.Setenv("APPINV_AUTH_PASSPHRASE", "correct horse battery staple")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("validates sampling ratio", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APPINV_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[app]
platform = "ios"

[api]
base_url = "https://erp.example.com/api"
timeout = "5s"
rate_limit_qps = 4

[auth]
store = "memory"

[list]
default_per_page = 25
stale_policy = "last_response"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, PlatformIOS, cfg.App.Platform)
	assert.Equal(t, "https://erp.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 4.0, cfg.API.RateLimitQPS)
	assert.Equal(t, 1, cfg.API.RateLimitBurst)
	assert.Equal(t, StoreMemory, cfg.Auth.Store)
	assert.Equal(t, 25, cfg.List.DefaultPerPage)
	assert.Equal(t, StaleLastResponse, cfg.List.StalePolicy)
}

func TestLoadFile_ReadsDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APPINV_API_TIMEOUT=7s\nAPPINV_AUTH_STORE=memory\n"), 0o600))
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api]\ntimeout = \"5s\"\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, cfg.API.Timeout)
	assert.Equal(t, StoreMemory, cfg.Auth.Store)
}

func TestDefaultBaseURLFor(t *testing.T) {
	assert.Equal(t, DefaultAndroidBaseURL, DefaultBaseURLFor(PlatformAndroid))
	assert.Equal(t, DefaultBaseURL, DefaultBaseURLFor(PlatformIOS))
	assert.Equal(t, DefaultBaseURL, DefaultBaseURLFor(""))
}

func TestRedisAddr(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: 6380}.Addr())
}
