package engine

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/model"
)

// checkRunningTimeoutsScript implements 4.C.9's timeout reconciler: every
// job in jobs:running whose ends_at has passed is reaped. Whether it lands
// as Failed or TimedOut distinguishes a hard timeout from an expired
// heartbeat, per Invariant 3's definition of ends_at; both then apply the
// same retry decision (4.C.7). Returns {reaped, toFailed, toTimedOut} so the
// caller can keep its running-count metric in sync with the actual target
// of every reap, not just the total.
//
// KEYS: 1=jobs:running 2=jobs:failed 3=jobs:ended
// ARGV: 1=now_ms 2=job-prefix
var checkRunningTimeoutsScript = redis.NewScript(`
local running = KEYS[1]
local failed = KEYS[2]
local ended = KEYS[3]
local nowMS = tonumber(ARGV[1])
local jobPrefix = ARGV[2]

local due = redis.call('ZRANGEBYSCORE', running, '-inf', nowMS)
local reaped = 0
local toFailed = 0
local toTimedOut = 0

for _, id in ipairs(due) do
	local jobKey = jobPrefix .. id
	local status = redis.call('HGET', jobKey, 'status')
	if status == 'running' then
		redis.call('ZREM', running, id)

		local heartbeatTimeout = tonumber(redis.call('HGET', jobKey, 'heartbeat_timeout_ms'))
		local target = 'failed'
		if heartbeatTimeout and heartbeatTimeout > 0 then
			target = 'timed_out'
		end

		local retries = tonumber(redis.call('HGET', jobKey, 'retries'))
		local attempted = tonumber(redis.call('HGET', jobKey, 'retries_attempted'))
		redis.call('HSET', jobKey, 'status', target, 'ended_at_ms', nowMS)

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
			redis.call('ZADD', failed, nowMS + delay, id)
		else
			local expiresAfter = tonumber(redis.call('HGET', jobKey, 'expires_after_ms'))
			redis.call('HSET', jobKey, 'ends_at_ms', nowMS + expiresAfter)
			redis.call('ZADD', ended, nowMS + expiresAfter, id)
		end
		reaped = reaped + 1
		if target == 'timed_out' then
			toTimedOut = toTimedOut + 1
		else
			toFailed = toFailed + 1
		end
	else
		-- stale score from a job already moved on; drop it
		redis.call('ZREM', running, id)
	end
end

return {reaped, toFailed, toTimedOut}
`)

// CheckRunningTimeouts implements 4.C.9's first reconciler. Returns the
// total count of jobs reaped, plus the split between jobs that landed
// Failed and jobs that landed TimedOut.
func (e *Engine) CheckRunningTimeouts(ctx context.Context, now int64) (reaped, toFailed, toTimedOut int, err error) {
	res, err := checkRunningTimeoutsScript.Run(ctx, e.rdb,
		[]string{keys.JobsRunning(), keys.JobsFailed(), keys.JobsEnded()},
		now, keys.JobPrefix,
	).Result()
	if err != nil {
		return 0, 0, 0, RedisConnection(err)
	}
	vals, err := toIntSlice(res)
	if err != nil {
		return 0, 0, 0, Internal(err)
	}
	return vals[0], vals[1], vals[2], nil
}

// checkRetriesScript implements 4.C.9's retry reconciler: every job in
// jobs:failed whose retry-ready score has passed goes back onto its queue's
// ready list if the queue still exists, otherwise becomes terminal. Only the
// first branch is a status transition (failed -> queued); the terminal
// branch leaves status untouched and just schedules the expiry reconciler,
// so the script reports that count separately.
var checkRetriesScript = redis.NewScript(`
local failed = KEYS[1]
local ended = KEYS[2]
local queues = KEYS[3]
local nowMS = tonumber(ARGV[1])
local jobPrefix = ARGV[2]
local queuePrefix = ARGV[3]
local queueJobsSuffix = ARGV[4]

local due = redis.call('ZRANGEBYSCORE', failed, '-inf', nowMS)
local processed = 0
local rescheduled = 0

for _, id in ipairs(due) do
	local jobKey = jobPrefix .. id
	local queue = redis.call('HGET', jobKey, 'queue')
	redis.call('ZREM', failed, id)

	if queue and redis.call('SISMEMBER', queues, queue) == 1 then
		local attempted = tonumber(redis.call('HGET', jobKey, 'retries_attempted'))
		redis.call('HSET', jobKey, 'status', 'queued', 'output', '', 'retries_attempted', attempted + 1)
		redis.call('LPUSH', queuePrefix .. queue .. queueJobsSuffix, id)
		rescheduled = rescheduled + 1
	else
		local expiresAfter = tonumber(redis.call('HGET', jobKey, 'expires_after_ms'))
		redis.call('HSET', jobKey, 'ends_at_ms', nowMS + expiresAfter)
		redis.call('ZADD', ended, nowMS + expiresAfter, id)
	end
	processed = processed + 1
end

return {processed, rescheduled}
`)

// CheckRetries implements 4.C.9's second reconciler. Returns the total count
// of jobs processed (rescheduled or terminated for a deleted queue), plus
// how many of those actually transitioned back to Queued.
func (e *Engine) CheckRetries(ctx context.Context, now int64) (processed, rescheduled int, err error) {
	res, err := checkRetriesScript.Run(ctx, e.rdb,
		[]string{keys.JobsFailed(), keys.JobsEnded(), keys.Queues()},
		now, keys.JobPrefix, keys.QueuePrefix, keys.QueueJobsSuffix,
	).Result()
	if err != nil {
		return 0, 0, RedisConnection(err)
	}
	vals, err := toIntSlice(res)
	if err != nil {
		return 0, 0, Internal(err)
	}
	return vals[0], vals[1], nil
}

// checkExpiryScript implements 4.C.9's expiry reconciler: every job in
// jobs:ended whose expiry score has passed and whose status is in the
// configured expiry_check_statuses set is deleted outright. Returns the
// total removed plus a per-status breakdown, since deleting a job removes
// it from whichever status bucket it held, not just one fixed bucket.
var checkExpiryScript = redis.NewScript(`
local ended = KEYS[1]
local nowMS = tonumber(ARGV[1])
local jobPrefix = ARGV[2]
local tagPrefix = ARGV[3]
local jobTagsSuffix = ARGV[4]

local statusSet = {}
for i = 5, #ARGV do
	statusSet[ARGV[i]] = true
end

local due = redis.call('ZRANGEBYSCORE', ended, '-inf', nowMS)
local removed = 0
local perStatus = {}

for _, id in ipairs(due) do
	local jobKey = jobPrefix .. id
	local status = redis.call('HGET', jobKey, 'status')
	if status and statusSet[status] then
		local tagsKey = jobKey .. jobTagsSuffix
		local tags = redis.call('SMEMBERS', tagsKey)
		for _, t in ipairs(tags) do
			redis.call('SREM', tagPrefix .. t, id)
		end
		redis.call('DEL', jobKey, tagsKey)
		redis.call('ZREM', ended, id)
		removed = removed + 1
		perStatus[status] = (perStatus[status] or 0) + 1
	end
end

local result = {removed}
for status, count in pairs(perStatus) do
	table.insert(result, status)
	table.insert(result, count)
end
return result
`)

// CheckExpiry implements 4.C.9's third reconciler. statuses is the
// configured expiry_check_statuses set; a terminal job outside that set is
// left in place indefinitely (S6). The returned map tallies how many jobs
// of each status were actually removed, for the caller to keep
// jobs_by_status in sync.
func (e *Engine) CheckExpiry(ctx context.Context, now int64, statuses []model.Status) (removed int, byStatus map[model.Status]int, err error) {
	args := []interface{}{now, keys.JobPrefix, keys.TagPrefix, keys.JobTagsSuffix}
	for _, s := range statuses {
		args = append(args, string(s))
	}
	res, err := checkExpiryScript.Run(ctx, e.rdb, []string{keys.JobsEnded()}, args...).Result()
	if err != nil {
		return 0, nil, RedisConnection(err)
	}

	rows, ok := res.([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil, Internal(fmt.Errorf("unexpected expiry script reply: %v", res))
	}
	total, err := toInt(rows[0])
	if err != nil {
		return 0, nil, Internal(err)
	}

	byStatus = make(map[model.Status]int, (len(rows)-1)/2)
	for i := 1; i+1 < len(rows); i += 2 {
		status, ok := rows[i].(string)
		if !ok {
			return 0, nil, Internal(fmt.Errorf("unexpected expiry script status entry: %v", rows[i]))
		}
		count, err := toInt(rows[i+1])
		if err != nil {
			return 0, nil, Internal(err)
		}
		byStatus[model.Status(status)] = count
	}
	return total, byStatus, nil
}

// toIntSlice converts a Lua array reply of integers into a []int.
func toIntSlice(res interface{}) ([]int, error) {
	rows, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script reply: %v", res)
	}
	out := make([]int, len(rows))
	for i, v := range rows {
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// toInt converts a single Lua integer reply element (always int64 from
// go-redis) into an int.
func toInt(v interface{}) (int, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script reply element: %v", v)
	}
	return int(n), nil
}
