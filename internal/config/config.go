package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/cryptoforum/internal/logging"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Forum    ForumConfig    `mapstructure:"forum"`
	News     NewsConfig     `mapstructure:"news"`
	Presence PresenceConfig `mapstructure:"presence"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Log      logging.Config `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type AuthConfig struct {
	SigningSecret string        `mapstructure:"signing_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	SigningKey    []byte        `mapstructure:"-"`
}

type StorageConfig struct {
	Driver      string      `mapstructure:"driver"`
	SQLitePath  string      `mapstructure:"sqlite_path"`
	PostgresDSN string      `mapstructure:"postgres_dsn"`
	Redis       RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type ForumConfig struct {
	Moderators []string `mapstructure:"moderators"`
}

type NewsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	APIKey       string        `mapstructure:"api_key"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MinInterval  time.Duration `mapstructure:"min_interval"`
}

type PresenceConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type AnalysisConfig struct {
	URL        string        `mapstructure:"url"`
	DailyLimit int           `mapstructure:"daily_limit"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "localhost:8000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("storage.driver", StorageSQLite)
	v.SetDefault("storage.sqlite_path", "cryptoforum.db")
	v.SetDefault("storage.redis.address", "localhost:6379")
	v.SetDefault("storage.redis.prefix", "cryptoforum")
	v.SetDefault("forum.moderators", []string{"CryptoAdmin"})
	v.SetDefault("news.enabled", true)
	v.SetDefault("news.url", "https://min-api.cryptocompare.com/data/v2/news/?lang=EN")
	v.SetDefault("news.poll_interval", "1m")
	v.SetDefault("news.min_interval", "20m")
	v.SetDefault("presence.enabled", true)
	v.SetDefault("presence.interval", "20s")
	v.SetDefault("analysis.url", "http://localhost:3001/api/analyze")
	v.SetDefault("analysis.daily_limit", 5)
	v.SetDefault("analysis.timeout", "15s")
	v.SetDefault("analysis.max_retries", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "cryptoforum")
}

// Load reads the configuration from an optional YAML file in configPath,
// environment variables prefixed with CRYPTOFORUM_ and built-in defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("cryptoforum")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	v.BindEnv("auth.signing_secret", "SIGNING_SECRET")
	v.BindEnv("storage.postgres_dsn", "DATABASE_URL")
	v.BindEnv("news.api_key", "NEWS_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

// Validate checks the configuration and decodes the signing secret.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.Auth.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(c.Auth.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.Auth.SigningKey = signingKey

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("database DSN cannot be empty")
		}
	case StorageRedis:
		if c.Storage.Redis.Address == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.News.Enabled && c.News.URL == "" {
		return fmt.Errorf("news url cannot be empty")
	}
	if c.News.PollInterval <= 0 || c.Presence.Interval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.Analysis.DailyLimit < 0 {
		return fmt.Errorf("analysis daily limit cannot be negative")
	}

	return nil
}
