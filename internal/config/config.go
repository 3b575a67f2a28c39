// Package config loads relayqd's TOML configuration (spec.md §6): the
// [server] block, [redis], and any number of pre-declared [queue.<name>]
// sections, via viper the way flyingrobots-go-redis-work-queue's config
// loader does — per-field SetDefault calls followed by ReadInConfig and
// Unmarshal into a typed struct, adapted from YAML to TOML.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/relayq/relayq/internal/logger"
	"github.com/relayq/relayq/internal/model"
)

// Server holds [server] in the TOML file.
type Server struct {
	Host                 string            `mapstructure:"host"`
	Port                 int               `mapstructure:"port"`
	Threads              int               `mapstructure:"threads"`
	MaxBodySize          model.ByteSize    `mapstructure:"max_body_size"`
	TimeoutCheckInterval model.Duration    `mapstructure:"timeout_check_interval"`
	RetryCheckInterval   model.Duration    `mapstructure:"retry_check_interval"`
	ExpiryCheckInterval  model.Duration    `mapstructure:"expiry_check_interval"`
	ExpiryCheckStatuses  []model.Status    `mapstructure:"expiry_check_statuses"`
	ShutdownTimeout      model.Duration    `mapstructure:"shutdown_timeout"`
	NextJobDelay         model.Duration    `mapstructure:"next_job_delay"`
	LogLevel             logger.Level      `mapstructure:"log_level"`
}

// Redis holds [redis].
type Redis struct {
	URL string `mapstructure:"url"`
}

// Config is the fully resolved, validated configuration.
type Config struct {
	Server Server              `mapstructure:"server"`
	Redis  Redis               `mapstructure:"redis"`
	Queues map[string]model.Settings `mapstructure:"queue"`
}

func defaultConfig() *Config {
	return &Config{
		Server: Server{
			Host:                 "127.0.0.1",
			Port:                 8023,
			Threads:              runtime.NumCPU(),
			MaxBodySize:          model.ByteSize(256_000),
			TimeoutCheckInterval: model.Duration(30 * time.Second),
			RetryCheckInterval:   model.Duration(60 * time.Second),
			ExpiryCheckInterval:  model.Duration(5 * time.Minute),
			ExpiryCheckStatuses: []model.Status{
				model.StatusFailed, model.StatusCompleted, model.StatusCancelled, model.StatusTimedOut,
			},
			ShutdownTimeout: model.Duration(30 * time.Second),
			NextJobDelay:    0,
			LogLevel:        logger.LevelInfo,
		},
		Redis: Redis{
			URL: "redis://127.0.0.1",
		},
	}
}

// shutdownTimeoutCapSeconds is spec.md §6's cap on shutdown_timeout.
const shutdownTimeoutCapSeconds = 65535

// decodeHook lets mapstructure decode TOML strings into any field whose type
// implements encoding.TextUnmarshaler (model.Duration, model.ByteSize; a
// model.Status decodes as its underlying string), plus a bare string into
// the expiry_check_statuses slice so
// a single status name in the file doesn't have to be written as a
// one-element array.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// Load reads path over the defaults and validates the result; a path that
// does not exist is an error. path == "" loads defaults only, matching the
// optional positional CLI argument in spec.md §6.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	def := defaultConfig()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.threads", def.Server.Threads)
	v.SetDefault("server.max_body_size", def.Server.MaxBodySize.String())
	v.SetDefault("server.timeout_check_interval", def.Server.TimeoutCheckInterval.String())
	v.SetDefault("server.retry_check_interval", def.Server.RetryCheckInterval.String())
	v.SetDefault("server.expiry_check_interval", def.Server.ExpiryCheckInterval.String())
	v.SetDefault("server.expiry_check_statuses", statusesToStrings(def.Server.ExpiryCheckStatuses))
	v.SetDefault("server.shutdown_timeout", def.Server.ShutdownTimeout.String())
	v.SetDefault("server.next_job_delay", def.Server.NextJobDelay.String())
	v.SetDefault("server.log_level", string(def.Server.LogLevel))
	v.SetDefault("redis.url", def.Redis.URL)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func statusesToStrings(statuses []model.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Validate checks the constraints spec.md §6 names explicitly, plus the
// per-queue settings every [queue.<name>] section must satisfy.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1..65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.Threads < 1 {
		return fmt.Errorf("server.threads must be >= 1")
	}
	if time.Duration(cfg.Server.ShutdownTimeout) > shutdownTimeoutCapSeconds*time.Second {
		return fmt.Errorf("server.shutdown_timeout must not exceed %ds", shutdownTimeoutCapSeconds)
	}
	switch logger.Level(cfg.Server.LogLevel) {
	case logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, logger.LevelError:
	default:
		return fmt.Errorf("server.log_level must be one of debug, info, warn, error, got %q", cfg.Server.LogLevel)
	}
	if len(cfg.Server.ExpiryCheckStatuses) == 0 {
		return fmt.Errorf("server.expiry_check_statuses must be non-empty")
	}
	for _, s := range cfg.Server.ExpiryCheckStatuses {
		if !model.ValidStatus(string(s)) {
			return fmt.Errorf("server.expiry_check_statuses: unknown status %q", s)
		}
	}
	for name, settings := range cfg.Queues {
		if err := model.ValidateQueueName(name); err != nil {
			return fmt.Errorf("queue.%s: %w", name, err)
		}
		if err := settings.Validate(); err != nil {
			return fmt.Errorf("queue.%s: %w", name, err)
		}
	}
	return nil
}

// LoggerConfig derives the two-tier logger configuration from [server], the
// way the teacher's loadLoggingConfig built a *logger.Config from its own
// flat environment-variable namespace.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = logger.Level(c.Server.LogLevel)
	return lc
}
