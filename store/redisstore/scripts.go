package redisstore

import "github.com/redis/go-redis/v9"

const createAccountScript = `
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[2], unpack(ARGV, 2))
return 1
`

var createAccountLua = redis.NewScript(createAccountScript)

const updateAccountScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`

var updateAccountLua = redis.NewScript(updateAccountScript)

// verifyOTPScript replies {verdict, attempts}; verdict codes follow
// account.OTPVerdict.
const verifyOTPScript = `
local f = redis.call("HMGET", KEYS[1], "otp_digest", "otp_exp", "otp_attempts")
local digest = f[1]
if not digest or digest ~= ARGV[1] then
  return {4, 0}
end
local attempts = tonumber(f[3] or "0")
if attempts >= tonumber(ARGV[3]) then
  return {2, attempts}
end
if tonumber(f[2] or "0") <= tonumber(ARGV[4]) then
  return {3, attempts}
end
if ARGV[2] ~= digest then
  return {1, redis.call("HINCRBY", KEYS[1], "otp_attempts", 1)}
end
redis.call("HDEL", KEYS[1], "otp_digest", "otp_exp", "otp_attempts")
redis.call("HSET", KEYS[1], "verified", "1", "updated_at", ARGV[4])
return {0, attempts}
`

var verifyOTPLua = redis.NewScript(verifyOTPScript)

const saveResetScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local previous = redis.call("HGET", KEYS[1], "reset_id")
if previous then
  redis.call("DEL", ARGV[6] .. previous)
end
redis.call("HSET", KEYS[1], "reset_id", ARGV[2], "reset_digest", ARGV[3], "reset_exp", ARGV[4], "updated_at", ARGV[7])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[5])
return 1
`

var saveResetLua = redis.NewScript(saveResetScript)

const consumeResetScript = `
local current = redis.call("HGET", KEYS[1], "reset_id")
if not current or current ~= ARGV[1] then
  return 0
end
redis.call("HDEL", KEYS[1], "reset_id", "reset_digest", "reset_exp")
redis.call("HSET", KEYS[1], "pw", ARGV[2], "updated_at", ARGV[3])
redis.call("DEL", KEYS[2], KEYS[3])
return 1
`

var consumeResetLua = redis.NewScript(consumeResetScript)

// Timestamps stay strings inside the script so large millisecond values are
// never re-formatted by Lua number conversion.
const loginFailureScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0, 0, "0"}
end
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local failed = tonumber(redis.call("HGET", KEYS[1], "failed") or "0")
local lockedRaw = redis.call("HGET", KEYS[1], "locked_until") or "0"
local locked = tonumber(lockedRaw)
if locked > 0 and locked <= now then
  failed = 1
  lockedRaw = "0"
  locked = 0
else
  failed = failed + 1
end
if failed >= threshold and locked <= now then
  lockedRaw = ARGV[3]
end
redis.call("HSET", KEYS[1], "failed", tostring(failed), "locked_until", lockedRaw, "updated_at", ARGV[1])
return {1, failed, lockedRaw}
`

var loginFailureLua = redis.NewScript(loginFailureScript)

// Refresh set members are stored as field=<token hash>, value=<seq>:<issued>:<expires>.
// seq is a per-account counter, so eviction order is deterministic even when
// several tokens share an issue millisecond.
const trimRefreshFunc = `
local function trim(key, limit)
  if limit <= 0 then
    return
  end
  local raw = redis.call("HGETALL", key)
  local n = #raw / 2
  if n <= limit then
    return
  end
  local items = {}
  for i = 1, #raw, 2 do
    local seq = tonumber(string.match(raw[i + 1], "^(%d+)")) or 0
    table.insert(items, {field = raw[i], seq = seq})
  end
  table.sort(items, function(a, b) return a.seq < b.seq end)
  for i = 1, n - limit do
    redis.call("HDEL", key, items[i].field)
  end
end
`

const addRefreshScript = trimRefreshFunc + `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local seq = redis.call("HINCRBY", KEYS[1], "rt_seq", 1)
redis.call("HSET", KEYS[2], ARGV[1], seq .. ":" .. ARGV[2])
trim(KEYS[2], tonumber(ARGV[3]))
return 1
`

var addRefreshLua = redis.NewScript(addRefreshScript)

const rotateRefreshScript = trimRefreshFunc + `
if redis.call("HEXISTS", KEYS[2], ARGV[1]) == 0 then
  return 0
end
redis.call("HDEL", KEYS[2], ARGV[1])
local seq = redis.call("HINCRBY", KEYS[1], "rt_seq", 1)
redis.call("HSET", KEYS[2], ARGV[2], seq .. ":" .. ARGV[3])
trim(KEYS[2], tonumber(ARGV[4]))
return 1
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)
