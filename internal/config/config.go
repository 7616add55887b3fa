package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Live        LiveConfig        `mapstructure:"live"`
	UI          UIConfig          `mapstructure:"ui"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Send        SendConfig        `mapstructure:"send"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CredentialsConfig selects where the "token" credential is persisted.
// Backend is one of "file", "sqlite", "postgres", "redis" or "memory".
type CredentialsConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	DSN       string `mapstructure:"dsn"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
	Namespace string `mapstructure:"namespace"`
}

type LiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type UIConfig struct {
	NarrowWidth int    `mapstructure:"narrow_width"`
	LogFile     string `mapstructure:"log_file"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type SendConfig struct {
	// PerMinute caps sends per minute; 0 disables the limiter.
	PerMinute int `mapstructure:"per_minute"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("credentials.backend", "file")
	v.SetDefault("credentials.path", defaultCredentialsPath())
	v.SetDefault("credentials.namespace", "marketchat")
	v.SetDefault("live.enabled", false)
	v.SetDefault("live.url", "")
	v.SetDefault("ui.narrow_width", 80)
	v.SetDefault("ui.log_file", "marketchat.log")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("send.per_minute", 0)
}

// Load reads the YAML file at path when given, then applies environment
// overrides. A missing path yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("MARKETCHAT_API_URL", c.API.BaseURL)
	c.API.Timeout = getEnvDuration("MARKETCHAT_TIMEOUT", c.API.Timeout)

	c.Credentials.Backend = getEnv("MARKETCHAT_CRED_BACKEND", c.Credentials.Backend)
	c.Credentials.Path = getEnv("MARKETCHAT_CRED_PATH", c.Credentials.Path)
	c.Credentials.DSN = getEnv("MARKETCHAT_CRED_DSN", c.Credentials.DSN)
	c.Credentials.RedisAddr = getEnv("MARKETCHAT_REDIS_ADDR", c.Credentials.RedisAddr)
	c.Credentials.RedisDB = getEnvInt("MARKETCHAT_REDIS_DB", c.Credentials.RedisDB)

	c.Live.Enabled = getEnvBool("MARKETCHAT_LIVE", c.Live.Enabled)
	c.Live.URL = getEnv("MARKETCHAT_LIVE_URL", c.Live.URL)

	c.UI.NarrowWidth = getEnvInt("MARKETCHAT_NARROW_WIDTH", c.UI.NarrowWidth)
	c.UI.LogFile = getEnv("MARKETCHAT_LOG_FILE", c.UI.LogFile)

	c.Metrics.Addr = getEnv("MARKETCHAT_METRICS_ADDR", c.Metrics.Addr)
	c.Send.PerMinute = getEnvInt("MARKETCHAT_SEND_PER_MINUTE", c.Send.PerMinute)
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".marketchat-credentials.yaml"
	}
	return dir + "/marketchat/credentials.yaml"
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
