package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Platforms with a dedicated default API address
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformDesktop = "desktop"
)

// Default API base URLs. The Android emulator reaches the host loopback via 10.0.2.2.
const (
	DefaultBaseURL        = "http://localhost:5000/api"
	DefaultAndroidBaseURL = "http://10.0.2.2:5000/api"
)

// Token store kinds
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Stale response policies of list controllers
const (
	StaleLatest       = "latest"
	StaleLastResponse = "last_response"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	API       APIConfig
	Auth      AuthConfig
	Redis     RedisConfig
	List      ListConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Mock      MockConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name     string
	Env      string
	Platform string // android, ios, desktop
}

// APIConfig holds the REST API connection settings
type APIConfig struct {
	BaseURL        string
	Timeout        time.Duration
	UserAgent      string
	RateLimitQPS   float64 // 0 disables client-side rate limiting
	RateLimitBurst int
}

// AuthConfig selects where the bearer token and user are persisted
type AuthConfig struct {
	Store      string // memory, file, redis
	FilePath   string
	Passphrase string // seals the file store
	DeviceID   string // namespaces the redis store
	// AllowMemoryFallback lets a redis store degrade to memory when redis is unreachable
	AllowMemoryFallback bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ListConfig holds defaults for list controllers
type ListConfig struct {
	DefaultPerPage int
	StalePolicy    string // latest, last_response
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// TelemetryConfig holds tracing and metrics settings
type TelemetryConfig struct {
	TracingEnabled    bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsAddr       string // empty disables the /metrics listener
}

// MockConfig holds settings of the sandbox API server
type MockConfig struct {
	Addr          string
	JWTSecret     string
	TokenTTL      time.Duration
	SeedCount     int
	AdminUser     string
	AdminPassword string
}

// Load loads configuration from an optional .env file, config.toml and
// environment variables.
// Priority (highest to lowest):
// 1. Environment variables with APPINV_ prefix (e.g., APPINV_API_BASE_URL)
// 2. API_URL for the base URL
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home + "/.appinv")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

// LoadFile loads configuration from an explicit TOML file plus the .env file
// and environment overrides
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	// .env only fills variables that are not already set
	_ = godotenv.Load()

	v.SetEnvPrefix("APPINV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api.base_url", "APPINV_API_BASE_URL", "API_URL")

	cfg := &Config{
		App: AppConfig{
			Name:     v.GetString("app.name"),
			Env:      v.GetString("app.env"),
			Platform: strings.ToLower(v.GetString("app.platform")),
		},
		API: APIConfig{
			BaseURL:        v.GetString("api.base_url"),
			Timeout:        v.GetDuration("api.timeout"),
			UserAgent:      v.GetString("api.user_agent"),
			RateLimitQPS:   v.GetFloat64("api.rate_limit_qps"),
			RateLimitBurst: v.GetInt("api.rate_limit_burst"),
		},
		Auth: AuthConfig{
			Store:               strings.ToLower(v.GetString("auth.store")),
			FilePath:            v.GetString("auth.file_path"),
			Passphrase:          v.GetString("auth.passphrase"),
			DeviceID:            v.GetString("auth.device_id"),
			AllowMemoryFallback: v.GetBool("auth.allow_memory_fallback"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		List: ListConfig{
			DefaultPerPage: v.GetInt("list.default_per_page"),
			StalePolicy:    strings.ToLower(v.GetString("list.stale_policy")),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			TracingEnabled:    v.GetBool("telemetry.tracing_enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsAddr:       v.GetString("telemetry.metrics_addr"),
		},
		Mock: MockConfig{
			Addr:          v.GetString("mock.addr"),
			JWTSecret:     v.GetString("mock.jwt_secret"),
			TokenTTL:      v.GetDuration("mock.token_ttl"),
			SeedCount:     v.GetInt("mock.seed_count"),
			AdminUser:     v.GetString("mock.admin_user"),
			AdminPassword: v.GetString("mock.admin_password"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or env
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// DefaultBaseURLFor returns the platform-conditional default API address
func DefaultBaseURLFor(platform string) string {
	if platform == PlatformAndroid {
		return DefaultAndroidBaseURL
	}
	return DefaultBaseURL
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "appinv"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Platform == "" {
		cfg.App.Platform = PlatformDesktop
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURLFor(cfg.App.Platform)
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = "appinv-client/1.0"
	}
	if cfg.API.RateLimitQPS > 0 && cfg.API.RateLimitBurst == 0 {
		cfg.API.RateLimitBurst = 1
	}
	if cfg.Auth.Store == "" {
		cfg.Auth.Store = StoreFile
	}
	if cfg.Auth.FilePath == "" {
		cfg.Auth.FilePath = defaultSessionPath()
	}
	if cfg.Auth.DeviceID == "" {
		cfg.Auth.DeviceID = "default"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.List.DefaultPerPage == 0 {
		cfg.List.DefaultPerPage = 10
	}
	if cfg.List.StalePolicy == "" {
		cfg.List.StalePolicy = StaleLatest
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "appinv-client"
	}
	if cfg.Mock.Addr == "" {
		cfg.Mock.Addr = ":5000"
	}
	if cfg.Mock.JWTSecret == "" {
		cfg.Mock.JWTSecret = "appinv-sandbox-secret"
	}
	if cfg.Mock.TokenTTL == 0 {
		cfg.Mock.TokenTTL = 24 * time.Hour
	}
	if cfg.Mock.SeedCount == 0 {
		cfg.Mock.SeedCount = 25
	}
	if cfg.Mock.AdminUser == "" {
		cfg.Mock.AdminUser = "admin"
	}
	if cfg.Mock.AdminPassword == "" {
		cfg.Mock.AdminPassword = "admin123"
	}
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".appinv-session"
	}
	return dir + "/appinv/session.bin"
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", c.API.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("api.base_url must include a host, got %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout cannot be negative")
	}
	if c.API.RateLimitQPS < 0 {
		return fmt.Errorf("api.rate_limit_qps cannot be negative")
	}

	switch c.Auth.Store {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		return fmt.Errorf("auth.store must be one of memory, file, redis, got %q", c.Auth.Store)
	}

	if c.List.DefaultPerPage < 1 || c.List.DefaultPerPage > 100 {
		return fmt.Errorf("list.default_per_page must be between 1 and 100, got %d", c.List.DefaultPerPage)
	}
	switch c.List.StalePolicy {
	case StaleLatest, StaleLastResponse:
	default:
		return fmt.Errorf("list.stale_policy must be latest or last_response, got %q", c.List.StalePolicy)
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" {
		if c.Auth.Store == StoreFile && c.Auth.Passphrase == "" {
			return fmt.Errorf("auth.passphrase is required in production when auth.store=file")
		}
		if u.Scheme != "https" {
			return fmt.Errorf("api.base_url must use https in production")
		}
		if c.Telemetry.Insecure {
			return fmt.Errorf("telemetry.insecure must be false in production")
		}
	}
	return nil
}
