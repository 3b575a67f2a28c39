package engine

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/model"
)

// createOrUpdateQueueScript implements 4.C.1: if the settings hash does not
// yet exist, add the name to the queues set and write it (Created); else
// overwrite in place (Updated). Existing jobs are untouched either way.
var createOrUpdateQueueScript = redis.NewScript(`
local queues = KEYS[1]
local settingsKey = KEYS[2]
local name = ARGV[1]

local existed = redis.call('SISMEMBER', queues, name)
redis.call('SADD', queues, name)
redis.call('DEL', settingsKey)
for i = 2, #ARGV, 2 do
	redis.call('HSET', settingsKey, ARGV[i], ARGV[i+1])
end
if existed == 1 then
	return 0
end
return 1
`)

// CreateOrUpdateQueue implements 4.C.1. created is true on first declaration
// of this queue name, false when overwriting an existing one.
func (e *Engine) CreateOrUpdateQueue(ctx context.Context, name string, settings model.Settings) (created bool, err error) {
	if err := model.ValidateQueueName(name); err != nil {
		return false, BadRequest(err)
	}
	if err := settings.Validate(); err != nil {
		return false, BadRequest(err)
	}

	args := append([]interface{}{name}, settingsHashArgs(settings)...)
	res, err := createOrUpdateQueueScript.Run(ctx, e.rdb, []string{keys.Queues(), keys.QueueSettings(name)}, args...).Int()
	if err != nil {
		return false, RedisConnection(err)
	}
	return res == 1, nil
}

// deleteQueueScript implements 4.C.2: removes every queued job's hash and tag
// linkages, the queue's ready list, its settings hash, and its membership in
// the queues set. Running/failed/ended jobs of this queue are untouched.
var deleteQueueScript = redis.NewScript(`
local queues = KEYS[1]
local settingsKey = KEYS[2]
local jobsList = KEYS[3]
local name = ARGV[1]
local jobPrefix = ARGV[2]
local jobTagsSuffix = ARGV[3]
local tagPrefix = ARGV[4]

local existed = redis.call('SISMEMBER', queues, name)
if existed == 0 then
	return 0
end

local ids = redis.call('LRANGE', jobsList, 0, -1)
for _, id in ipairs(ids) do
	local jobKey = jobPrefix .. id
	local tagsKey = jobKey .. jobTagsSuffix
	local tags = redis.call('SMEMBERS', tagsKey)
	for _, t in ipairs(tags) do
		redis.call('SREM', tagPrefix .. t, id)
	end
	redis.call('DEL', jobKey, tagsKey)
end

redis.call('DEL', jobsList)
redis.call('DEL', settingsKey)
redis.call('SREM', queues, name)
return 1
`)

// DeleteQueue implements 4.C.2.
func (e *Engine) DeleteQueue(ctx context.Context, name string) (existed bool, err error) {
	args := append([]interface{}{name}, keyFragmentArgs()...)
	res, err := deleteQueueScript.Run(ctx, e.rdb,
		[]string{keys.Queues(), keys.QueueSettings(name), keys.QueueJobs(name)},
		args...,
	).Int()
	if err != nil {
		return false, RedisConnection(err)
	}
	return res == 1, nil
}

// ListQueues returns every declared queue name.
func (e *Engine) ListQueues(ctx context.Context) ([]string, error) {
	names, err := e.rdb.SMembers(ctx, keys.Queues()).Result()
	if err != nil {
		return nil, RedisConnection(err)
	}
	return names, nil
}

// GetQueueSettings implements the GET /queue/{q} accessor.
func (e *Engine) GetQueueSettings(ctx context.Context, name string) (model.Settings, error) {
	m, err := e.rdb.HGetAll(ctx, keys.QueueSettings(name)).Result()
	if err != nil {
		return model.Settings{}, RedisConnection(err)
	}
	if len(m) == 0 {
		return model.Settings{}, NoSuchQueue(nil)
	}
	return settingsFromMap(m), nil
}

// QueueExists reports whether name is in the queues set. QueueSize and
// QueueJobIDs use it; job creation and reservation do their own existence
// check inside their Lua scripts instead.
func (e *Engine) QueueExists(ctx context.Context, name string) (bool, error) {
	ok, err := e.rdb.SIsMember(ctx, keys.Queues(), name).Result()
	if err != nil {
		return false, RedisConnection(err)
	}
	return ok, nil
}

// QueueSize returns the number of jobs currently queued (not reserved).
func (e *Engine) QueueSize(ctx context.Context, name string) (int64, error) {
	exists, err := e.QueueExists(ctx, name)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, NoSuchQueue(nil)
	}
	n, err := e.rdb.LLen(ctx, keys.QueueJobs(name)).Result()
	if err != nil {
		return 0, RedisConnection(err)
	}
	return n, nil
}

// QueueJobIDs returns the ids still waiting in a queue's ready list, in
// reservation order (the next RPOP target first).
func (e *Engine) QueueJobIDs(ctx context.Context, name string) ([]string, error) {
	exists, err := e.QueueExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, NoSuchQueue(nil)
	}
	ids, err := e.rdb.LRange(ctx, keys.QueueJobs(name), 0, -1).Result()
	if err != nil {
		return nil, RedisConnection(err)
	}
	// LRANGE returns left-to-right (push order); reverse so index 0 is the
	// next id RPOP will hand out.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids, nil
}
