package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"metric-anomaly-engine/models"
)

const envPrefix = "ANOMALY"

type Config struct {
	Server    ServerConfig                     `mapstructure:"server"`
	Redis     RedisConfig                      `mapstructure:"redis"`
	Engine    EngineConfig                     `mapstructure:"engine"`
	Logging   LoggingConfig                    `mapstructure:"logging"`
	Detectors map[string]models.DetectorConfig `mapstructure:"detectors"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	ResultTTL    time.Duration `mapstructure:"result_ttl"`
}

type EngineConfig struct {
	// Workers <= 0 picks 2×NumCPU clamped to [4, 16].
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	DetectionTimeout time.Duration `mapstructure:"detection_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Preset returns the named detector preset.
func (c *Config) Preset(name string) (models.DetectorConfig, bool) {
	p, ok := c.Detectors[strings.ToLower(name)]
	return p, ok
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.result_ttl", time.Hour)

	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.queue_size", 1000)
	v.SetDefault("engine.detection_timeout", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"addr":      "server.addr",
	"redis":     "redis.addr",
	"workers":   "engine.workers",
	"log-level": "logging.level",
}

// Flags returns the command-line flags Load understands.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("anomaly-engine", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("addr", "", "HTTP listen address")
	fs.String("redis", "", "Redis address")
	fs.Int("workers", 0, "detection workers (0 picks from CPU count)")
	fs.String("log-level", "", "debug, info, warn or error")
	return fs
}

// Load reads configuration from defaults, an optional YAML file, a .env file
// in the working directory, ANOMALY_* environment variables and flags that
// were explicitly set, in increasing order of precedence. An empty path
// searches ./config.yaml and /etc/anomaly-engine/config.yaml.
func Load(path string, flags *pflag.FlagSet) (*Config, *viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/anomaly-engine/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, v, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Engine.QueueSize < 1 {
		return fmt.Errorf("engine.queue_size must be positive, got %d", c.Engine.QueueSize)
	}
	if c.Engine.DetectionTimeout <= 0 {
		return fmt.Errorf("engine.detection_timeout must be positive, got %s", c.Engine.DetectionTimeout)
	}
	if c.Redis.ResultTTL <= 0 {
		return fmt.Errorf("redis.result_ttl must be positive, got %s", c.Redis.ResultTTL)
	}
	for name, preset := range c.Detectors {
		if _, err := preset.ToSpec(); err != nil {
			return fmt.Errorf("detectors.%s: %w", name, err)
		}
	}
	return nil
}
