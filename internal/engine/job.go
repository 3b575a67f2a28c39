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

// createJobScript implements 4.C.3. It re-checks queue existence inside the
// script so a concurrent delete_queue cannot race a create_job into leaving
// an orphaned job hash referencing a gone queue.
//
// KEYS: 1=queues 2=queue:<q>:jobs 3=job:next_id
// ARGV: 1=queue name, 2=job-prefix, 3=job-tags-suffix, 4=tag-prefix,
//
//	5=tags csv, then field,value... pairs for the job hash (sans id).
var createJobScript = redis.NewScript(`
local queues = KEYS[1]
local jobsList = KEYS[2]
local nextIDKey = KEYS[3]
local name = ARGV[1]
local jobPrefix = ARGV[2]
local jobTagsSuffix = ARGV[3]
local tagPrefix = ARGV[4]
local tagsCSV = ARGV[5]

if redis.call('SISMEMBER', queues, name) == 0 then
	return redis.error_reply('NoSuchQueue')
end

local id = redis.call('INCR', nextIDKey)
local jobKey = jobPrefix .. id

redis.call('HSET', jobKey, 'id', id)
for i = 6, #ARGV, 2 do
	redis.call('HSET', jobKey, ARGV[i], ARGV[i+1])
end

if tagsCSV ~= '' then
	local tagsKey = jobKey .. jobTagsSuffix
	for tag in string.gmatch(tagsCSV, '([^,]+)') do
		redis.call('SADD', tagsKey, tag)
		redis.call('SADD', tagPrefix .. tag, id)
	end
end

redis.call('LPUSH', jobsList, id)
return id
`)

// CreateJob implements 4.C.3: loads queue settings, merges the request's
// overrides, allocates a new id, and writes the job atomically.
func (e *Engine) CreateJob(ctx context.Context, queue string, req model.CreateRequest) (int64, error) {
	if err := model.ValidateQueueName(queue); err != nil {
		return 0, BadRequest(err)
	}

	settings, err := e.GetQueueSettings(ctx, queue)
	if err != nil {
		return 0, err
	}
	eff := req.Overrides.Merge(settings)

	job := &model.Job{
		Queue:            queue,
		Status:           model.StatusQueued,
		Input:            req.Input,
		Tags:             req.Tags,
		Timeout:          eff.Timeout,
		HeartbeatTimeout: eff.HeartbeatTimeout,
		ExpiresAfter:     eff.ExpiresAfter,
		Retries:          eff.Retries,
		RetryDelays:      eff.RetryDelays,
		CreatedAt:        time.Now(),
	}
	fields := jobHashArgs(job)
	// id is assigned by the script itself; drop the placeholder pair.
	fields = fields[2:]

	args := append([]interface{}{queue, keys.JobPrefix, keys.JobTagsSuffix, keys.TagPrefix, strings.Join(req.Tags, ",")}, fields...)
	res, err := createJobScript.Run(ctx, e.rdb, []string{keys.Queues(), keys.QueueJobs(queue), keys.NextID()}, args...).Result()
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchQueue") {
			return 0, NoSuchQueue(nil)
		}
		return 0, RedisConnection(err)
	}
	id, ok := res.(int64)
	if !ok {
		return 0, Internal(fmt.Errorf("unexpected create_job result %T", res))
	}
	return id, nil
}

// nextQueuedJobScript implements 4.C.4.
//
// KEYS: 1=queues 2=queue:<q>:jobs 3=jobs:running
// ARGV: 1=queue name, 2=job-prefix, 3=now_ms
var nextQueuedJobScript = redis.NewScript(`
local queues = KEYS[1]
local jobsList = KEYS[2]
local running = KEYS[3]
local name = ARGV[1]
local jobPrefix = ARGV[2]
local nowMS = ARGV[3]

if redis.call('SISMEMBER', queues, name) == 0 then
	return redis.error_reply('NoSuchQueue')
end

local id = redis.call('RPOP', jobsList)
if not id then
	return nil
end

local jobKey = jobPrefix .. id
local heartbeatTimeout = tonumber(redis.call('HGET', jobKey, 'heartbeat_timeout_ms'))
local timeout = tonumber(redis.call('HGET', jobKey, 'timeout_ms'))

local endsAt
if heartbeatTimeout and heartbeatTimeout > 0 then
	endsAt = tonumber(nowMS) + heartbeatTimeout
else
	endsAt = tonumber(nowMS) + timeout
end

redis.call('HSET', jobKey, 'status', 'running', 'started_at_ms', nowMS, 'last_heartbeat_ms', nowMS, 'ends_at_ms', endsAt)
redis.call('ZADD', running, endsAt, id)

return redis.call('HGETALL', jobKey)
`)

// NextQueuedJob implements 4.C.4. Returns (nil, nil) when the queue is
// empty.
func (e *Engine) NextQueuedJob(ctx context.Context, queue string) (*model.Job, error) {
	res, err := nextQueuedJobScript.Run(ctx, e.rdb,
		[]string{keys.Queues(), keys.QueueJobs(queue), keys.JobsRunning()},
		queue, keys.JobPrefix, strconv.FormatInt(nowMS(), 10),
	).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		if strings.Contains(err.Error(), "NoSuchQueue") {
			return nil, NoSuchQueue(nil)
		}
		return nil, RedisConnection(err)
	}
	if res == nil {
		return nil, nil
	}
	m, err := flatResultToMap(res)
	if err != nil {
		return nil, Internal(err)
	}
	return jobFromMap(m)
}

// heartbeatScript implements 4.C.5.
var heartbeatScript = redis.NewScript(`
local jobKey = KEYS[1]
local running = KEYS[2]
local nowMS = ARGV[1]

local status = redis.call('HGET', jobKey, 'status')
if status ~= 'running' then
	return redis.error_reply('BadRequest')
end

local heartbeatTimeout = tonumber(redis.call('HGET', jobKey, 'heartbeat_timeout_ms'))
local startedAt = tonumber(redis.call('HGET', jobKey, 'started_at_ms'))
local timeout = tonumber(redis.call('HGET', jobKey, 'timeout_ms'))

local endsAt
if heartbeatTimeout and heartbeatTimeout > 0 then
	endsAt = tonumber(nowMS) + heartbeatTimeout
else
	endsAt = startedAt + timeout
end

redis.call('HSET', jobKey, 'last_heartbeat_ms', nowMS, 'ends_at_ms', endsAt)
redis.call('ZADD', running, endsAt, ARGV[2])
return 1
`)

// Heartbeat implements 4.C.5.
func (e *Engine) Heartbeat(ctx context.Context, id int64) error {
	idStr := strconv.FormatInt(id, 10)
	_, err := heartbeatScript.Run(ctx, e.rdb,
		[]string{keys.Job(id), keys.JobsRunning()},
		strconv.FormatInt(nowMS(), 10), idStr,
	).Result()
	if err != nil {
		if strings.Contains(err.Error(), "BadRequest") {
			return BadRequest(fmt.Errorf("job %d is not running", id))
		}
		return RedisConnection(err)
	}
	return nil
}

// updateJobStatusScript implements 4.C.6 and the retry decision of 4.C.7 for
// the direct PATCH path (target is always Completed, Cancelled, or Failed;
// the reconciliation loops call a near-identical script in reconcile.go that
// additionally distinguishes TimedOut).
//
// KEYS: 1=job 2=jobs:running 3=jobs:failed 4=jobs:ended
// ARGV: 1=id 2=target status 3=now_ms 4=queue-key-prefix 5=queue-jobs-suffix
var updateJobStatusScript = redis.NewScript(`
local jobKey = KEYS[1]
local running = KEYS[2]
local failed = KEYS[3]
local ended = KEYS[4]
local id = ARGV[1]
local target = ARGV[2]
local nowMS = ARGV[3]
local queuePrefix = ARGV[4]
local queueJobsSuffix = ARGV[5]

local status = redis.call('HGET', jobKey, 'status')
if not status then
	return redis.error_reply('NoSuchJob')
end

if target == 'cancelled' then
	if status ~= 'running' and status ~= 'queued' then
		return redis.error_reply('BadRequest')
	end
else
	if status ~= 'running' then
		return redis.error_reply('BadRequest')
	end
end

if status == 'queued' then
	local queue = redis.call('HGET', jobKey, 'queue')
	redis.call('LREM', queuePrefix .. queue .. queueJobsSuffix, 0, id)
else
	redis.call('ZREM', running, id)
end

if target == 'completed' or target == 'cancelled' then
	local expiresAfter = tonumber(redis.call('HGET', jobKey, 'expires_after_ms'))
	local endsAt = tonumber(nowMS) + expiresAfter
	redis.call('HSET', jobKey, 'status', target, 'ended_at_ms', nowMS, 'ends_at_ms', endsAt)
	redis.call('ZADD', ended, endsAt, id)
	return 'terminal'
end

-- target == 'failed': retry decision (4.C.7)
local retries = tonumber(redis.call('HGET', jobKey, 'retries'))
local attempted = tonumber(redis.call('HGET', jobKey, 'retries_attempted'))
redis.call('HSET', jobKey, 'status', 'failed', 'ended_at_ms', nowMS)

if attempted < retries then
	local delaysCSV = redis.call('HGET', jobKey, 'retry_delays_ms')
	local delay = 0
	if delaysCSV and delaysCSV ~= '' then
		local delays = {}
		for d in string.gmatch(delaysCSV, '([^,]+)') do
			table.insert(delays, tonumber(d))
		end
		local idx = attempted + 1
		if idx > #delays then idx = #delays end
		if idx >= 1 then delay = delays[idx] end
	end
	local readyAt = tonumber(nowMS) + delay
	redis.call('ZADD', failed, readyAt, id)
	return 'retry_scheduled'
else
	local expiresAfter = tonumber(redis.call('HGET', jobKey, 'expires_after_ms'))
	local endsAt = tonumber(nowMS) + expiresAfter
	redis.call('HSET', jobKey, 'ends_at_ms', endsAt)
	redis.call('ZADD', ended, endsAt, id)
	return 'terminal'
end
`)

// UpdateJobStatus implements 4.C.6: the direct client-driven transition
// (Completed, Cancelled, Failed). Failed additionally applies the retry
// decision of 4.C.7.
func (e *Engine) UpdateJobStatus(ctx context.Context, id int64, target model.Status) error {
	if target != model.StatusCompleted && target != model.StatusCancelled && target != model.StatusFailed {
		return BadRequest(fmt.Errorf("illegal target status %q", target))
	}
	idStr := strconv.FormatInt(id, 10)
	_, err := updateJobStatusScript.Run(ctx, e.rdb,
		[]string{keys.Job(id), keys.JobsRunning(), keys.JobsFailed(), keys.JobsEnded()},
		idStr, string(target), strconv.FormatInt(nowMS(), 10), keys.QueuePrefix, keys.QueueJobsSuffix,
	).Result()
	if err != nil {
		return translateTransitionErr(err, id)
	}
	return nil
}

func translateTransitionErr(err error, id int64) error {
	switch {
	case strings.Contains(err.Error(), "NoSuchJob"):
		return NoSuchJob(fmt.Errorf("job %d not found", id))
	case strings.Contains(err.Error(), "BadRequest"):
		return BadRequest(fmt.Errorf("job %d cannot transition from its current status", id))
	default:
		return RedisConnection(err)
	}
}

// SetOutput implements the output half of 4.C.8.
func (e *Engine) SetOutput(ctx context.Context, id int64, value []byte) error {
	n, err := e.rdb.Exists(ctx, keys.Job(id)).Result()
	if err != nil {
		return RedisConnection(err)
	}
	if n == 0 {
		return NoSuchJob(fmt.Errorf("job %d not found", id))
	}
	if err := e.rdb.HSet(ctx, keys.Job(id), "output", string(value)).Err(); err != nil {
		return RedisConnection(err)
	}
	return nil
}

// GetJob implements the read half of 4.C.8.
func (e *Engine) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	m, err := e.rdb.HGetAll(ctx, keys.Job(id)).Result()
	if err != nil {
		return nil, RedisConnection(err)
	}
	if len(m) == 0 {
		return nil, NoSuchJob(fmt.Errorf("job %d not found", id))
	}
	return jobFromMap(m)
}

// deleteJobScript implements hard deletion (4.C.8): removes the job from
// whichever status container currently holds it, from every tag's inverse
// index, and the job hash itself.
var deleteJobScript = redis.NewScript(`
local jobKey = KEYS[1]
local tagsKey = KEYS[2]
local jobsList = KEYS[3]
local running = KEYS[4]
local failed = KEYS[5]
local ended = KEYS[6]
local id = ARGV[1]
local tagPrefix = ARGV[2]

local status = redis.call('HGET', jobKey, 'status')
if not status then
	return 0
end

redis.call('LREM', jobsList, 0, id)
redis.call('ZREM', running, id)
redis.call('ZREM', failed, id)
redis.call('ZREM', ended, id)

local tags = redis.call('SMEMBERS', tagsKey)
for _, t in ipairs(tags) do
	redis.call('SREM', tagPrefix .. t, id)
end

redis.call('DEL', jobKey, tagsKey)
return 1
`)

// DeleteJob implements hard deletion from 4.C.8. The queue's ready list key
// is looked up from the job's own 'queue' field first since the caller may
// not know it.
func (e *Engine) DeleteJob(ctx context.Context, id int64) error {
	job, err := e.GetJob(ctx, id)
	if err != nil {
		return err
	}
	idStr := strconv.FormatInt(id, 10)
	res, err := deleteJobScript.Run(ctx, e.rdb,
		[]string{keys.Job(id), keys.JobTags(id), keys.QueueJobs(job.Queue), keys.JobsRunning(), keys.JobsFailed(), keys.JobsEnded()},
		idStr, keys.TagPrefix,
	).Int()
	if err != nil {
		return RedisConnection(err)
	}
	if res == 0 {
		return NoSuchJob(fmt.Errorf("job %d not found", id))
	}
	return nil
}

// GetTagged implements the tag-index accessor of 4.C.8: the ids carrying a
// given tag.
func (e *Engine) GetTagged(ctx context.Context, tag string) ([]int64, error) {
	strs, err := e.rdb.SMembers(ctx, keys.Tag(tag)).Result()
	if err != nil {
		return nil, RedisConnection(err)
	}
	ids := make([]int64, 0, len(strs))
	for _, s := range strs {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// flatResultToMap converts the []interface{} HGETALL returns inside a Lua
// script result (field, value, field, value, ...) into a map.
func flatResultToMap(res interface{}) (map[string]string, error) {
	flat, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script result type %T", res)
	}
	m := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, ok := flat[i].(string)
		if !ok {
			continue
		}
		v := flat[i+1]
		switch vv := v.(type) {
		case string:
			m[k] = vv
		case int64:
			m[k] = strconv.FormatInt(vv, 10)
		case nil:
			m[k] = ""
		}
	}
	return m, nil
}
