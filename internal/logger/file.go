package logger

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger is Tier 2: rotating JSON-lines file logging via lumberjack.
type FileLogger struct {
	logger *lumberjack.Logger
}

// NewFileLogger builds the file tier from Config.
func NewFileLogger(config *Config) (*FileLogger, error) {
	if !config.File.Enabled {
		return nil, fmt.Errorf("file logging is not enabled")
	}
	return &FileLogger{
		logger: &lumberjack.Logger{
			Filename:   config.File.Path,
			MaxSize:    config.File.MaxSizeMB,
			MaxBackups: config.File.MaxBackups,
			MaxAge:     config.File.MaxAgeDays,
			Compress:   config.File.Compress,
		},
	}, nil
}

func (fl *FileLogger) log(level Level, msg string, component Component, fields map[string]interface{}) {
	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Component: component,
		Fields:    fields,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, _ = fl.logger.Write(append(data, '\n'))
}

// Close closes the underlying rotating file.
func (fl *FileLogger) Close() error {
	return fl.logger.Close()
}
