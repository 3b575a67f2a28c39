package logger

import "fmt"

// Level is the severity of a log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format is the console output rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Component identifies which part of relayqd produced a log line.
type Component string

const (
	ComponentAPI     Component = "api"
	ComponentEngine  Component = "engine"
	ComponentControl Component = "control"
	ComponentWAL     Component = "wal"
	ComponentConfig  Component = "config"
)

// ConsoleConfig configures Tier 1 (always enabled).
type ConsoleConfig struct {
	Color  bool
	Format Format
}

// FileConfig configures Tier 2, disabled by default; config.LoggerConfig
// sets only the level, so no [server] key enables it.
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config holds the logger's complete configuration.
type Config struct {
	Level   Level
	Console ConsoleConfig
	File    FileConfig
}

// DefaultConfig matches the server's log_level default of "info", console
// output only.
func DefaultConfig() *Config {
	return &Config{
		Level: LevelInfo,
		Console: ConsoleConfig{
			Color:  true,
			Format: FormatText,
		},
		File: FileConfig{
			Enabled:    false,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Validate checks the logging configuration.
func (c *Config) Validate() error {
	switch c.Level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	switch c.Console.Format {
	case FormatJSON, FormatText:
	default:
		return fmt.Errorf("invalid log format: %s", c.Console.Format)
	}
	if c.File.Enabled {
		if c.File.Path == "" {
			return fmt.Errorf("file logging enabled but path is empty")
		}
		if c.File.MaxSizeMB <= 0 {
			return fmt.Errorf("file max size must be > 0")
		}
	}
	return nil
}
