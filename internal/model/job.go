package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is one of the six disjoint job lifecycle states (spec.md §3
// Invariant 1).
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ValidStatus reports whether s is one of the six known statuses.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusQueued, StatusRunning, StatusFailed, StatusTimedOut, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Job is the full record stored in the job:<id> hash.
type Job struct {
	ID       int64           `json:"id"`
	Queue    string          `json:"queue"`
	Status   Status          `json:"status"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	Tags     []string        `json:"tags,omitempty"`

	Timeout          Duration   `json:"timeout"`
	HeartbeatTimeout Duration   `json:"heartbeat_timeout"`
	ExpiresAfter     Duration   `json:"expires_after"`
	Retries          int        `json:"retries"`
	RetryDelays      []Duration `json:"retry_delays,omitempty"`
	RetriesAttempted int        `json:"retries_attempted"`

	CreatedAt     time.Time `json:"created_at"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	EndedAt       time.Time `json:"ended_at,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
	EndsAt        time.Time `json:"ends_at,omitempty"`
}

// EffectiveSettings returns the job's own settings as a Settings record,
// which the engine flattens into the job hash's settings fields.
func (j *Job) EffectiveSettings() Settings {
	return Settings{
		Timeout:          j.Timeout,
		HeartbeatTimeout: j.HeartbeatTimeout,
		ExpiresAfter:     j.ExpiresAfter,
		Retries:          j.Retries,
		RetryDelays:      j.RetryDelays,
	}
}

// Overrides is the subset of Settings a CreateRequest may supply, each field
// a pointer so "absent" and "zero value" are distinguishable for the merge
// policy in spec.md §4.B.
type Overrides struct {
	Timeout          *Duration   `json:"timeout,omitempty"`
	HeartbeatTimeout *Duration   `json:"heartbeat_timeout,omitempty"`
	ExpiresAfter     *Duration   `json:"expires_after,omitempty"`
	Retries          *int        `json:"retries,omitempty"`
	RetryDelays      []Duration  `json:"retry_delays,omitempty"`
}

// Validate applies the same per-field rules as Settings.Validate to whichever
// fields are present.
func (o *Overrides) Validate() error {
	if o.Retries != nil && *o.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", *o.Retries)
	}
	if o.Timeout != nil && *o.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	return nil
}

// Merge resolves effective settings for a new job: queue settings overridden
// field-by-field by whichever fields the request supplied (spec.md §4.B).
func (o *Overrides) Merge(base Settings) Settings {
	eff := base
	if o == nil {
		return eff
	}
	if o.Timeout != nil {
		eff.Timeout = *o.Timeout
	}
	if o.HeartbeatTimeout != nil {
		eff.HeartbeatTimeout = *o.HeartbeatTimeout
	}
	if o.ExpiresAfter != nil {
		eff.ExpiresAfter = *o.ExpiresAfter
	}
	if o.Retries != nil {
		eff.Retries = *o.Retries
	}
	if o.RetryDelays != nil {
		eff.RetryDelays = o.RetryDelays
	}
	return eff
}

// CreateRequest is the body of POST /queue/{q}/job.
type CreateRequest struct {
	Input json.RawMessage `json:"input,omitempty"`
	Tags  []string        `json:"tags,omitempty"`
	Overrides
}

// dedupeTags removes duplicate tags, preserving first-seen order.
func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// PatchRequest is the body of PATCH /job/{id}: any combination of a status
// transition, an output value, and a heartbeat signal. The handler applies
// them heartbeat first, then output, then status.
type PatchRequest struct {
	Status    *Status         `json:"status,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Heartbeat bool            `json:"heartbeat,omitempty"`
}

// ParsePatchRequestJSON parses and validates a PatchRequest, rejecting
// unknown fields and any status outside the client-settable set
// (Completed/Cancelled/Failed — Running/Queued/TimedOut are engine-only).
func ParsePatchRequestJSON(data []byte) (PatchRequest, error) {
	var raw struct {
		Status    *string         `json:"status"`
		Output    json.RawMessage `json:"output"`
		Heartbeat bool            `json:"heartbeat"`
	}
	if err := unmarshalStrict(data, &raw); err != nil {
		return PatchRequest{}, fmt.Errorf("invalid patch request: %w", err)
	}

	req := PatchRequest{Output: raw.Output, Heartbeat: raw.Heartbeat}
	if raw.Status != nil {
		s := Status(*raw.Status)
		switch s {
		case StatusCompleted, StatusCancelled, StatusFailed:
		default:
			return PatchRequest{}, fmt.Errorf("status must be one of completed, cancelled, failed, got %q", s)
		}
		req.Status = &s
	}
	if req.Status == nil && req.Output == nil && !req.Heartbeat {
		return PatchRequest{}, fmt.Errorf("patch request must set at least one of status, output, heartbeat")
	}
	return req, nil
}

// ParseCreateRequestJSON parses and validates a CreateRequest, rejecting
// unknown fields and deduping tags.
func ParseCreateRequestJSON(data []byte) (CreateRequest, error) {
	var raw struct {
		Input            json.RawMessage `json:"input"`
		Tags             []string        `json:"tags"`
		Timeout          *Duration       `json:"timeout"`
		HeartbeatTimeout *Duration       `json:"heartbeat_timeout"`
		ExpiresAfter     *Duration       `json:"expires_after"`
		Retries          *int            `json:"retries"`
		RetryDelays      []Duration      `json:"retry_delays"`
	}
	if err := unmarshalStrict(data, &raw); err != nil {
		return CreateRequest{}, fmt.Errorf("invalid create request: %w", err)
	}

	req := CreateRequest{
		Input: raw.Input,
		Tags:  dedupeTags(raw.Tags),
		Overrides: Overrides{
			Timeout:          raw.Timeout,
			HeartbeatTimeout: raw.HeartbeatTimeout,
			ExpiresAfter:     raw.ExpiresAfter,
			Retries:          raw.Retries,
			RetryDelays:      raw.RetryDelays,
		},
	}
	if err := req.Overrides.Validate(); err != nil {
		return CreateRequest{}, err
	}
	return req, nil
}
