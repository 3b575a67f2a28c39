// Package engine is the Redis state engine (spec component C): every atomic
// multi-key transition a job or queue can undergo, expressed as server-side
// Lua scripts so concurrent adapters and control loops observe only whole
// transitions, never a partial one.
//
// Job records are stored as Redis hashes, one field per Job struct field,
// rather than as a JSON blob — so every script here only ever calls native
// Redis hash/list/set/zset commands, with no cjson dependency.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/model"
)

// Engine is the sole authoritative accessor of queue/job state in Redis.
type Engine struct {
	rdb *redis.Client
}

// New wraps an already-configured go-redis client.
func New(rdb *redis.Client) *Engine {
	return &Engine{rdb: rdb}
}

// Ping checks Redis reachability, used by the /health endpoint.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.rdb.Ping(ctx).Err(); err != nil {
		return RedisConnection(err)
	}
	return nil
}

func nowMS() int64 { return time.Now().UnixMilli() }

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func timeToMS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// durationsToCSV/csvToDurations convert a RetryDelays slice to/from the
// comma-joined millisecond list stored in the job hash.
func durationsToCSV(ds []model.Duration) string {
	if len(ds) == 0 {
		return ""
	}
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = strconv.FormatInt(int64(time.Duration(d)/time.Millisecond), 10)
	}
	return strings.Join(parts, ",")
}

func csvToDurations(s string) []model.Duration {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]model.Duration, 0, len(parts))
	for _, p := range parts {
		ms, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, model.Duration(time.Duration(ms)*time.Millisecond))
	}
	return out
}

// settingsHashArgs flattens a Settings record into field,value pairs for
// HSET, using the same field names settingsFromMap reads back.
func settingsHashArgs(s model.Settings) []interface{} {
	return []interface{}{
		"timeout_ms", int64(time.Duration(s.Timeout) / time.Millisecond),
		"heartbeat_timeout_ms", int64(time.Duration(s.HeartbeatTimeout) / time.Millisecond),
		"expires_after_ms", int64(time.Duration(s.ExpiresAfter) / time.Millisecond),
		"retries", s.Retries,
		"retry_delays_ms", durationsToCSV(s.RetryDelays),
	}
}

func settingsFromMap(m map[string]string) model.Settings {
	retries, _ := strconv.Atoi(m["retries"])
	return model.Settings{
		Timeout:          model.Duration(parseMS(m["timeout_ms"]) * int64(time.Millisecond)),
		HeartbeatTimeout: model.Duration(parseMS(m["heartbeat_timeout_ms"]) * int64(time.Millisecond)),
		ExpiresAfter:     model.Duration(parseMS(m["expires_after_ms"]) * int64(time.Millisecond)),
		Retries:          retries,
		RetryDelays:      csvToDurations(m["retry_delays_ms"]),
	}
}

func parseMS(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

// jobHashArgs flattens a Job into field,value pairs for HSET.
func jobHashArgs(j *model.Job) []interface{} {
	args := []interface{}{
		"id", j.ID,
		"queue", j.Queue,
		"status", string(j.Status),
		"input", string(j.Input),
		"output", string(j.Output),
		"tags", strings.Join(j.Tags, ","),
		"retries_attempted", j.RetriesAttempted,
		"created_at_ms", timeToMS(j.CreatedAt),
		"started_at_ms", timeToMS(j.StartedAt),
		"ended_at_ms", timeToMS(j.EndedAt),
		"last_heartbeat_ms", timeToMS(j.LastHeartbeat),
		"ends_at_ms", timeToMS(j.EndsAt),
	}
	return append(args, settingsHashArgs(j.EffectiveSettings())...)
}

func jobFromMap(m map[string]string) (*model.Job, error) {
	if len(m) == 0 {
		return nil, nil
	}
	id, err := strconv.ParseInt(m["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt job hash: bad id %q", m["id"])
	}
	retriesAttempted, _ := strconv.Atoi(m["retries_attempted"])
	var tags []string
	if m["tags"] != "" {
		tags = strings.Split(m["tags"], ",")
	}
	s := settingsFromMap(m)
	j := &model.Job{
		ID:               id,
		Queue:            m["queue"],
		Status:           model.Status(m["status"]),
		Tags:             tags,
		Timeout:          s.Timeout,
		HeartbeatTimeout: s.HeartbeatTimeout,
		ExpiresAfter:     s.ExpiresAfter,
		Retries:          s.Retries,
		RetryDelays:      s.RetryDelays,
		RetriesAttempted: retriesAttempted,
		CreatedAt:        msToTime(parseMS(m["created_at_ms"])),
		StartedAt:        msToTime(parseMS(m["started_at_ms"])),
		EndedAt:          msToTime(parseMS(m["ended_at_ms"])),
		LastHeartbeat:    msToTime(parseMS(m["last_heartbeat_ms"])),
		EndsAt:           msToTime(parseMS(m["ends_at_ms"])),
	}
	if m["input"] != "" {
		j.Input = []byte(m["input"])
	}
	if m["output"] != "" {
		j.Output = []byte(m["output"])
	}
	return j, nil
}

// keyFragmentArgs returns the literal key fragments a Lua script needs to
// build job:<id>, job:<id>:tags and tag:<t> keys for ids only known inside
// the script (e.g. the members of a list), centralizing the pattern in
// package keys.
func keyFragmentArgs() []interface{} {
	return []interface{}{keys.JobPrefix, keys.JobTagsSuffix, keys.TagPrefix}
}
