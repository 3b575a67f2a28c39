package logger

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level to be info, got %s", cfg.Level)
	}
	if cfg.Console.Format != FormatText {
		t.Errorf("expected default console format to be text, got %s", cfg.Console.Format)
	}
	if cfg.File.Enabled {
		t.Error("expected file logging to be disabled by default")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "valid default config", config: DefaultConfig(), wantErr: false},
		{
			name: "invalid log level",
			config: &Config{
				Level:   "invalid",
				Console: ConsoleConfig{Format: FormatText},
			},
			wantErr: true,
		},
		{
			name: "invalid console format",
			config: &Config{
				Level:   LevelInfo,
				Console: ConsoleConfig{Format: "invalid"},
			},
			wantErr: true,
		},
		{
			name: "file enabled without path",
			config: &Config{
				Level:   LevelInfo,
				Console: ConsoleConfig{Format: FormatText},
				File:    FileConfig{Enabled: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMultiLoggerDispatch(t *testing.T) {
	cfg := DefaultConfig()
	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer log.Close()

	tagged := log.WithComponent(ComponentEngine).WithFields(map[string]interface{}{"queue": "q1"})
	tagged.Info("job created", "job_id", 1)
	tagged.Error("heartbeat rejected", "reason", "not running")
}

func TestMultiLoggerLevelFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = LevelError
	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer log.Close()

	if log.shouldLog(LevelDebug) {
		t.Error("expected debug to be filtered out at error level")
	}
	if !log.shouldLog(LevelError) {
		t.Error("expected error to pass at error level")
	}
}
