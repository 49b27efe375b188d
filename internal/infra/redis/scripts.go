package redis

import "github.com/redis/go-redis/v9"

// Each script is one atomic step; the Go side only reads and decodes.
// Negative integer replies are status codes mapped to domain errors.

// KEYS: code, session
// ARGV: session id, ttl seconds, then field/value pairs for the session hash
var createSessionScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') == false then
  return 0
end
redis.call('HSET', KEYS[2], unpack(ARGV, 3))
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
  redis.call('EXPIRE', KEYS[2], ttl)
end
return 1
`)

// KEYS: session, code, finished index
// ARGV: from, fromIndex, to, toIndex, startedAt ('' keeps the old value),
// session id, created-at score, ttl seconds
var transitionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local cur = redis.call('HMGET', KEYS[1], 'status', 'question_index')
if cur[1] ~= ARGV[1] or cur[2] ~= ARGV[2] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[3], 'question_index', ARGV[4])
if ARGV[5] ~= '' then
  redis.call('HSET', KEYS[1], 'question_started_at', ARGV[5])
end
redis.call('HINCRBY', KEYS[1], 'version', 1)
local ttl = tonumber(ARGV[8])
if ARGV[3] == 'finished' then
  if redis.call('GET', KEYS[2]) == ARGV[6] then
    redis.call('DEL', KEYS[2])
  end
  redis.call('ZADD', KEYS[3], ARGV[7], ARGV[6])
elseif ttl > 0 then
  redis.call('EXPIRE', KEYS[2], ttl)
end
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
end
return redis.call('HGETALL', KEYS[1])
`)

// KEYS: session, participant, roster
// ARGV: participant id, session id, display name, joined at, ttl seconds
var addParticipantScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return -1
end
if status == 'finished' then
  return -2
end
if status ~= 'waiting' then
  return -3
end
local seq = redis.call('HINCRBY', KEYS[1], 'participant_seq', 1)
redis.call('HSET', KEYS[2], 'id', ARGV[1], 'session_id', ARGV[2], 'name', ARGV[3],
  'joined_at', ARGV[4], 'seq', seq, 'score', 0)
redis.call('RPUSH', KEYS[3], ARGV[1])
redis.call('HINCRBY', KEYS[1], 'participant_count', 1)
redis.call('HINCRBY', KEYS[1], 'version', 1)
local ttl = tonumber(ARGV[5])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[2], ttl)
  redis.call('EXPIRE', KEYS[3], ttl)
end
return redis.call('HGETALL', KEYS[1])
`)

// KEYS: session, answers, ledger, participant
// ARGV: answer field, answer json, question index, score awarded, session id, ttl seconds
var recordAnswerScript = redis.NewScript(`
if redis.call('HGET', KEYS[4], 'session_id') ~= ARGV[5] then
  return {-2}
end
local existing = redis.call('HGET', KEYS[2], ARGV[1])
if existing then
  return {0, existing}
end
local cur = redis.call('HMGET', KEYS[1], 'status', 'question_index')
if cur[1] ~= 'active' or cur[2] ~= ARGV[3] then
  return {-1}
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[1])
redis.call('HINCRBY', KEYS[4], 'score', ARGV[4])
local ttl = tonumber(ARGV[6])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[2], ttl)
  redis.call('EXPIRE', KEYS[3], ttl)
end
return {1}
`)
