package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// QueueNamePattern is the single source of truth for valid queue names,
// shared by the HTTP adapter and the engine.
var QueueNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateQueueName checks a queue name against QueueNamePattern.
func ValidateQueueName(name string) error {
	if name == "" || !QueueNamePattern.MatchString(name) {
		return fmt.Errorf("invalid queue name %q: must match %s", name, QueueNamePattern.String())
	}
	return nil
}

// Settings is a queue's configuration record. Fields are plain values; the
// pointer-field mirrors settingsFields (below) and Overrides (job.go) are
// what let a partial body distinguish "not present" from "present with zero
// value".
type Settings struct {
	Timeout          Duration   `json:"timeout" toml:"timeout" mapstructure:"timeout"`
	HeartbeatTimeout Duration   `json:"heartbeat_timeout" toml:"heartbeat_timeout" mapstructure:"heartbeat_timeout"`
	ExpiresAfter     Duration   `json:"expires_after" toml:"expires_after" mapstructure:"expires_after"`
	Retries          int        `json:"retries" toml:"retries" mapstructure:"retries"`
	RetryDelays      []Duration `json:"retry_delays" toml:"retry_delays" mapstructure:"retry_delays"`
}

// DefaultSettings returns the queue defaults: the settings of a queue created
// by PUT /queue/{q} with an empty body, and the values ParseSettingsJSON
// fills in for omitted fields.
func DefaultSettings() Settings {
	return Settings{
		Timeout:          Duration(10 * time.Minute),
		HeartbeatTimeout: 0,
		ExpiresAfter:     Duration(24 * time.Hour),
		Retries:          0,
		RetryDelays:      nil,
	}
}

// Validate checks the invariants shared by queue settings and per-job
// overrides: retries must be non-negative; retry_delays may be empty.
func (s *Settings) Validate() error {
	if s.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", s.Retries)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	return nil
}

// RetryDelay returns the delay for the i-th retry (0-indexed): the i-th entry
// of RetryDelays, or the last entry if the list is shorter than i+1, or zero
// if the list is empty.
func (s *Settings) RetryDelay(i int) Duration {
	if len(s.RetryDelays) == 0 {
		return 0
	}
	if i >= len(s.RetryDelays) {
		i = len(s.RetryDelays) - 1
	}
	return s.RetryDelays[i]
}

// unmarshalStrict is shared by Settings/Overrides JSON parsing to reject
// unknown fields, per spec.md §4.B.
func unmarshalStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// settingsFields mirrors Settings with pointer fields so a partial JSON body
// can distinguish "field omitted" from "field present as the zero value".
type settingsFields struct {
	Timeout          *Duration  `json:"timeout"`
	HeartbeatTimeout *Duration  `json:"heartbeat_timeout"`
	ExpiresAfter     *Duration  `json:"expires_after"`
	Retries          *int       `json:"retries"`
	RetryDelays      []Duration `json:"retry_delays"`
}

// ParseSettingsJSON parses a queue Settings record from JSON, rejecting
// unknown fields, and fills any field the body omits from DefaultSettings
// (the original ocypod's queue::Settings does the same via serde defaults,
// so a partial PUT /queue/{q} body never zeroes out the fields it didn't
// mention).
func ParseSettingsJSON(data []byte) (Settings, error) {
	var raw settingsFields
	if err := unmarshalStrict(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}

	s := DefaultSettings()
	if raw.Timeout != nil {
		s.Timeout = *raw.Timeout
	}
	if raw.HeartbeatTimeout != nil {
		s.HeartbeatTimeout = *raw.HeartbeatTimeout
	}
	if raw.ExpiresAfter != nil {
		s.ExpiresAfter = *raw.ExpiresAfter
	}
	if raw.Retries != nil {
		s.Retries = *raw.Retries
	}
	if raw.RetryDelays != nil {
		s.RetryDelays = raw.RetryDelays
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
