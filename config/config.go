// Package config loads the relay configuration from defaults, an optional
// config file, a .env file and PRICES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PRICES"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Binance    BinanceConfig    `mapstructure:"binance"`
	Kraken     KrakenConfig     `mapstructure:"kraken"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Path            string        `mapstructure:"path"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// EagerStart starts ingestion at boot instead of on the first client.
	EagerStart bool `mapstructure:"eager_start"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type SupervisorConfig struct {
	IsolateFeeds bool          `mapstructure:"isolate_feeds"`
	RestartDelay time.Duration `mapstructure:"restart_delay"`
	Buffer       int           `mapstructure:"buffer"`
}

type BinanceConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

type KrakenConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	WSURL            string        `mapstructure:"ws_url"`
	RESTURL          string        `mapstructure:"rest_url"`
	RESTTimeout      time.Duration `mapstructure:"rest_timeout"`
	BatchSize        int           `mapstructure:"batch_size"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	BackoffUnit      time.Duration `mapstructure:"backoff_unit"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	StableAfter      time.Duration `mapstructure:"stable_after"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.path", "/ws/prices/")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.eager_start", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "logs/prices.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("supervisor.isolate_feeds", true)
	v.SetDefault("supervisor.restart_delay", 5*time.Second)
	v.SetDefault("supervisor.buffer", 1000)

	v.SetDefault("binance.enabled", true)
	v.SetDefault("binance.url", "wss://stream.binance.com:9443/ws/!ticker@arr")
	v.SetDefault("binance.handshake_timeout", 10*time.Second)

	v.SetDefault("kraken.enabled", true)
	v.SetDefault("kraken.ws_url", "wss://ws.kraken.com")
	v.SetDefault("kraken.rest_url", "https://api.kraken.com")
	v.SetDefault("kraken.rest_timeout", 15*time.Second)
	v.SetDefault("kraken.batch_size", 50)
	v.SetDefault("kraken.ping_interval", 20*time.Second)
	v.SetDefault("kraken.handshake_timeout", 10*time.Second)
	v.SetDefault("kraken.backoff_unit", time.Second)
	v.SetDefault("kraken.max_backoff", 30*time.Second)
	v.SetDefault("kraken.retry_delay", 5*time.Second)
	v.SetDefault("kraken.stable_after", time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "prices")
	v.SetDefault("redis.interval", time.Second)
}

// Load reads configuration. path may be empty, in which case only defaults,
// .env and the environment are used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with /: %q", c.Server.Path)
	}
	if !c.Binance.Enabled && !c.Kraken.Enabled {
		return errors.New("at least one exchange must be enabled")
	}
	if c.Binance.Enabled && c.Binance.URL == "" {
		return errors.New("binance.url is required")
	}
	if c.Kraken.Enabled {
		if c.Kraken.WSURL == "" || c.Kraken.RESTURL == "" {
			return errors.New("kraken.ws_url and kraken.rest_url are required")
		}
		if c.Kraken.BatchSize <= 0 {
			return fmt.Errorf("invalid kraken.batch_size: %d", c.Kraken.BatchSize)
		}
		if c.Kraken.BackoffUnit <= 0 || c.Kraken.MaxBackoff <= 0 || c.Kraken.RetryDelay <= 0 {
			return errors.New("kraken backoff durations must be positive")
		}
	}
	if c.Supervisor.RestartDelay < 0 {
		return fmt.Errorf("invalid supervisor.restart_delay: %s", c.Supervisor.RestartDelay)
	}
	if c.Redis.Addr != "" && c.Redis.Interval <= 0 {
		return fmt.Errorf("invalid redis.interval: %s", c.Redis.Interval)
	}
	return nil
}
