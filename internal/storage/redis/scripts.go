package redis

const (
	// saveSessionScript atomically stores a session and its start index entry
	saveSessionScript = `
local session_key = KEYS[1]   -- timerflow:session:{id}
local started_index = KEYS[2] -- timerflow:sessions:started

local id = ARGV[1]
local timer_name = ARGV[2]
local outcome = ARGV[3]
local start_time = ARGV[4]
local start_score = ARGV[5]
local data = ARGV[6]

redis.call('HSET', session_key,
  'id', id,
  'timer_name', timer_name,
  'outcome', outcome,
  'start_time', start_time,
  'data', data
)
redis.call('ZADD', started_index, start_score, id)

return 'OK'
`

	// renameSessionScript updates the name of an existing session
	renameSessionScript = `
local session_key = KEYS[1]   -- timerflow:session:{id}

if redis.call('EXISTS', session_key) == 0 then
  return 0
end
redis.call('HSET', session_key, 'timer_name', ARGV[1])

return 1
`

	// deleteSessionScript removes a session and its index entry
	deleteSessionScript = `
local session_key = KEYS[1]   -- timerflow:session:{id}
local started_index = KEYS[2] -- timerflow:sessions:started

local removed = redis.call('DEL', session_key)
redis.call('ZREM', started_index, ARGV[1])

return removed
`

	// deleteSessionsBeforeScript removes every session started before a cutoff
	deleteSessionsBeforeScript = `
local started_index = KEYS[1] -- timerflow:sessions:started

local cutoff = '(' .. ARGV[1]
local prefix = ARGV[2]

local ids = redis.call('ZRANGEBYSCORE', started_index, '-inf', cutoff)
local deleted = 0
for _, id in ipairs(ids) do
  deleted = deleted + redis.call('DEL', prefix .. id)
end
redis.call('ZREMRANGEBYSCORE', started_index, '-inf', cutoff)

return deleted
`

	// incrementDailyScript atomically increments (or creates) a daily summary
	incrementDailyScript = `
local daily_key = KEYS[1]     -- timerflow:daily:{date}
local daily_index = KEYS[2]   -- timerflow:daily:index

local date = ARGV[1]
local date_score = ARGV[2]

redis.call('HSET', daily_key, 'date', date)
redis.call('HINCRBY', daily_key, 'sessions', tonumber(ARGV[3]))
redis.call('HINCRBY', daily_key, 'completed', tonumber(ARGV[4]))
redis.call('HINCRBY', daily_key, 'active_seconds', tonumber(ARGV[5]))
redis.call('HINCRBY', daily_key, 'pause_seconds', tonumber(ARGV[6]))
redis.call('HINCRBY', daily_key, 'overage_seconds', tonumber(ARGV[7]))
redis.call('ZADD', daily_index, date_score, date)

return 'OK'
`

	// deleteDailyBeforeScript removes daily summaries dated before a cutoff
	deleteDailyBeforeScript = `
local daily_index = KEYS[1]   -- timerflow:daily:index

local cutoff = '(' .. ARGV[1]
local prefix = ARGV[2]

local dates = redis.call('ZRANGEBYSCORE', daily_index, '-inf', cutoff)
local deleted = 0
for _, date in ipairs(dates) do
  deleted = deleted + redis.call('DEL', prefix .. date)
end
redis.call('ZREMRANGEBYSCORE', daily_index, '-inf', cutoff)

return deleted
`
)
