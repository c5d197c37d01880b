package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	BaseURL    string `yaml:"base_url"`
	LogLevel   string `yaml:"log_level"`

	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`

	Auth struct {
		// TokenSecret signs login tokens.
		TokenSecret string        `yaml:"token_secret"`
		TokenTTL    time.Duration `yaml:"token_ttl"`
		BcryptCost  int           `yaml:"bcrypt_cost"`
	} `yaml:"auth"`

	// OAuth enables OIDC sign-in when ClientID is set.
	OAuth struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		IssuerURL    string `yaml:"issuer_url"`
		DiscoveryURL string `yaml:"discovery_url"`
		RedirectPath string `yaml:"redirect_path"`
	} `yaml:"oauth"`

	Session struct {
		Secret string `yaml:"secret"`
	} `yaml:"session"`

	RateLimit struct {
		LoginPerSecond float64 `yaml:"login_per_second"`
		LoginBurst     int     `yaml:"login_burst"`
		APIPerSecond   float64 `yaml:"api_per_second"`
		APIBurst       int     `yaml:"api_burst"`
	} `yaml:"rate_limit"`

	Jobs struct {
		TokenSweepCron string `yaml:"token_sweep_cron"`
	} `yaml:"jobs"`

	PrometheusEnabled bool     `yaml:"prometheus_enabled"`
	TrustedProxies    []string `yaml:"trusted_proxies"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{
		ListenAddr: ":8080",
		BaseURL:    "http://localhost:8080",
		LogLevel:   "info",
	}
	cfg.Auth.TokenTTL = 7 * 24 * time.Hour
	cfg.Auth.BcryptCost = 10
	cfg.OAuth.RedirectPath = "/auth/oidc/callback"
	cfg.RateLimit.LoginPerSecond = 1
	cfg.RateLimit.LoginBurst = 5
	cfg.RateLimit.APIPerSecond = 20
	cfg.RateLimit.APIBurst = 50
	cfg.Jobs.TokenSweepCron = "@hourly"
	return cfg
}

// OAuthEnabled reports whether OIDC sign-in is configured.
func (c *Config) OAuthEnabled() bool {
	return c.OAuth.ClientID != ""
}

// Load reads the optional YAML file named by APP_CONFIG_FILE and applies
// APP_* environment variables on top of it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("APP_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", cfg.ListenAddr)
	cfg.BaseURL = getenvDefault("APP_BASE_URL", cfg.BaseURL)
	cfg.LogLevel = getenvDefault("APP_LOG_LEVEL", cfg.LogLevel)
	cfg.DB.DSN = getenvDefault("APP_DB_DSN", cfg.DB.DSN)

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")
		if host != "" && name != "" && user != "" && password != "" {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.Auth.TokenSecret = getenvDefault("APP_TOKEN_SECRET", cfg.Auth.TokenSecret)
	ttl, err := getenvDuration("APP_TOKEN_TTL", cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	cfg.Auth.TokenTTL = ttl
	cost, err := getenvInt("APP_BCRYPT_COST", cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	cfg.Auth.BcryptCost = cost

	cfg.OAuth.ClientID = getenvDefault("APP_OAUTH_CLIENT_ID", cfg.OAuth.ClientID)
	cfg.OAuth.ClientSecret = getenvDefault("APP_OAUTH_CLIENT_SECRET", cfg.OAuth.ClientSecret)
	cfg.OAuth.IssuerURL = getenvDefault("APP_OAUTH_ISSUER_URL", cfg.OAuth.IssuerURL)
	cfg.OAuth.DiscoveryURL = getenvDefault("APP_OAUTH_DISCOVERY_URL", cfg.OAuth.DiscoveryURL)
	cfg.OAuth.RedirectPath = getenvDefault("APP_OAUTH_REDIRECT_PATH", cfg.OAuth.RedirectPath)
	cfg.Session.Secret = getenvDefault("APP_SESSION_SECRET", cfg.Session.Secret)

	cfg.Jobs.TokenSweepCron = getenvDefault("APP_TOKEN_SWEEP_CRON", cfg.Jobs.TokenSweepCron)
	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", cfg.PrometheusEnabled)
	if proxies := getenvList("APP_TRUSTED_PROXIES"); proxies != nil {
		cfg.TrustedProxies = proxies
	}
	return nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.DB.DSN == "" {
		return errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if len(c.Auth.TokenSecret) < 32 {
		return fmt.Errorf("APP_TOKEN_SECRET must be at least 32 characters long (got %d)", len(c.Auth.TokenSecret))
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("APP_TOKEN_TTL must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("APP_BCRYPT_COST must be between 4 and 31 (got %d)", c.Auth.BcryptCost)
	}
	if c.OAuthEnabled() {
		if c.OAuth.ClientSecret == "" {
			return errors.New("APP_OAUTH_CLIENT_SECRET is required when APP_OAUTH_CLIENT_ID is set")
		}
		if c.OAuth.DiscoveryURL == "" && c.OAuth.IssuerURL == "" {
			return errors.New("APP_OAUTH_DISCOVERY_URL or APP_OAUTH_ISSUER_URL is required")
		}
		if len(c.Session.Secret) < 32 {
			return fmt.Errorf("APP_SESSION_SECRET must be at least 32 characters long (got %d)", len(c.Session.Secret))
		}
	}
	if c.RateLimit.LoginPerSecond <= 0 || c.RateLimit.APIPerSecond <= 0 {
		return errors.New("rate limits must be positive")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
