package queue

import "github.com/redis/go-redis/v9"

// Ordering within the waiting set: score = priority * 1e12 + seq. The
// monotonic sequence keeps FIFO order inside one priority tier and the
// multiplier keeps tiers disjoint. Both fit a float64 exactly.

// enqueueScript inserts a job unless a non-terminal job with the same id
// already exists.
//
// KEYS[1] job hash, KEYS[2] waiting zset, KEYS[3] completed zset,
// KEYS[4] failed zset, KEYS[5] sequence counter.
// ARGV[1] job id, ARGV[2] data JSON, ARGV[3] priority value,
// ARGV[4] max attempts, ARGV[5] now (unix ms).
// Returns 1 when a new job was inserted, 0 when deduplicated.
var enqueueScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == 'waiting' or state == 'active' or state == 'delayed' then
  return 0
end
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
local seq = redis.call('INCR', KEYS[5])
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
  'data', ARGV[2],
  'state', 'waiting',
  'progress', 0,
  'attempts', 0,
  'max_attempts', ARGV[4],
  'priority', ARGV[3],
  'seq', seq,
  'created_at', ARGV[5])
redis.call('ZADD', KEYS[2], tonumber(ARGV[3]) * 1e12 + seq, ARGV[1])
return 1
`)

// dequeueScript promotes due delayed jobs, then atomically pops the best
// waiting job and marks it active. Only one caller can win a given job.
//
// KEYS[1] waiting, KEYS[2] delayed, KEYS[3] active, KEYS[4] paused flag.
// ARGV[1] job key prefix, ARGV[2] now (unix ms), ARGV[3] stall deadline
// (unix ms).
// Returns {id, data, attempts} or nil when nothing is ready.
var dequeueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[4]) == 1 then
  return false
end
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[2])
for _, id in ipairs(due) do
  local jk = ARGV[1] .. id
  local prio = tonumber(redis.call('HGET', jk, 'priority')) or 5
  local seq = tonumber(redis.call('HGET', jk, 'seq')) or 0
  redis.call('ZADD', KEYS[1], prio * 1e12 + seq, id)
  redis.call('HSET', jk, 'state', 'waiting')
  redis.call('ZREM', KEYS[2], id)
end
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
  return false
end
local id = popped[1]
local jk = ARGV[1] .. id
redis.call('HSET', jk, 'state', 'active')
redis.call('ZADD', KEYS[3], tonumber(ARGV[3]), id)
return {id, redis.call('HGET', jk, 'data'), redis.call('HGET', jk, 'attempts')}
`)

// completeScript records a successful terminal result. The caller must have
// finished the upload before invoking it.
//
// KEYS[1] job hash, KEYS[2] active, KEYS[3] completed.
// ARGV[1] job id, ARGV[2] result JSON, ARGV[3] now (unix ms).
var completeScript = redis.NewScript(`
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1],
  'state', 'completed',
  'progress', 100,
  'result', ARGV[2],
  'finished_at', ARGV[3])
redis.call('ZADD', KEYS[3], tonumber(ARGV[3]), ARGV[1])
return 1
`)

// failScript records a failed attempt. Retryable failures below the attempt
// limit move to delayed with exponential backoff; everything else is
// terminal failed.
//
// KEYS[1] job hash, KEYS[2] active, KEYS[3] delayed, KEYS[4] failed.
// ARGV[1] job id, ARGV[2] failure reason, ARGV[3] now (unix ms),
// ARGV[4] backoff base ms, ARGV[5] retryable flag ("1"/"0"),
// ARGV[6] result JSON.
// Returns {state, attempts, delayMs}.
var failScript = redis.NewScript(`
redis.call('ZREM', KEYS[2], ARGV[1])
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
local max = tonumber(redis.call('HGET', KEYS[1], 'max_attempts')) or 3
redis.call('HSET', KEYS[1], 'failed_reason', ARGV[2])
if ARGV[5] == '1' and attempts < max then
  local delay = tonumber(ARGV[4]) * 2 ^ (attempts - 1)
  redis.call('HSET', KEYS[1], 'state', 'delayed')
  redis.call('ZADD', KEYS[3], tonumber(ARGV[3]) + delay, ARGV[1])
  return {'delayed', attempts, delay}
end
redis.call('HSET', KEYS[1],
  'state', 'failed',
  'result', ARGV[6],
  'finished_at', ARGV[3])
redis.call('ZADD', KEYS[4], tonumber(ARGV[3]), ARGV[1])
return {'failed', attempts, 0}
`)

// reclaimScript moves stalled active jobs (deadline passed, worker
// presumed dead) back to waiting at their original position.
//
// KEYS[1] active, KEYS[2] waiting.
// ARGV[1] job key prefix, ARGV[2] now (unix ms).
// Returns the number of reclaimed jobs.
var reclaimScript = redis.NewScript(`
local stalled = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
for _, id in ipairs(stalled) do
  local jk = ARGV[1] .. id
  redis.call('ZREM', KEYS[1], id)
  local prio = tonumber(redis.call('HGET', jk, 'priority')) or 5
  local seq = tonumber(redis.call('HGET', jk, 'seq')) or 0
  redis.call('HSET', jk, 'state', 'waiting', 'progress', 0)
  redis.call('ZADD', KEYS[2], prio * 1e12 + seq, id)
end
return #stalled
`)

// heartbeatScript extends an active job's stall deadline while its worker
// is still alive.
//
// KEYS[1] active. ARGV[1] job id, ARGV[2] new deadline (unix ms).
var heartbeatScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) == false then
  return 0
end
redis.call('ZADD', KEYS[1], tonumber(ARGV[2]), ARGV[1])
return 1
`)
