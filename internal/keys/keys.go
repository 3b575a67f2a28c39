// Package keys is the single source of truth for every Redis key string the
// engine touches. The engine never constructs one of these keys by hand; the
// control loops' lock keys are defined in package control.
package keys

import "strconv"

// Prefix/suffix fragments exported so Lua scripts run by the engine can
// build a job or tag key for an id only known inside the script (e.g. the
// id just produced by INCR), without duplicating these literal strings in
// the script source.
const (
	JobPrefix       = "job:"
	JobTagsSuffix   = ":tags"
	TagPrefix       = "tag:"
	QueuePrefix     = "queue:"
	QueueJobsSuffix = ":jobs"
)

// Queues is the set of all known queue names.
func Queues() string { return "queues" }

// QueueSettings is the hash of a queue's configuration.
func QueueSettings(queue string) string { return "queue:" + queue + ":settings" }

// QueueJobs is the FIFO list of queued job ids awaiting reservation.
func QueueJobs(queue string) string { return "queue:" + queue + ":jobs" }

// JobsRunning is the sorted set of reserved jobs, scored by ends_at.
func JobsRunning() string { return "jobs:running" }

// JobsFailed is the sorted set of non-terminal failed jobs awaiting retry,
// scored by the retry-ready moment.
func JobsFailed() string { return "jobs:failed" }

// JobsEnded is the sorted set of terminal jobs awaiting expiry, scored by
// ends_at.
func JobsEnded() string { return "jobs:ended" }

// Job is the hash holding a single job's fields.
func Job(id int64) string { return "job:" + strconv.FormatInt(id, 10) }

// JobTags is the set of tag strings attached to a job.
func JobTags(id int64) string { return "job:" + strconv.FormatInt(id, 10) + ":tags" }

// Tag is the inverse index: the set of job ids carrying a given tag.
func Tag(tag string) string { return "tag:" + tag }

// NextID is the integer counter backing monotonic job id allocation.
func NextID() string { return "job:next_id" }
